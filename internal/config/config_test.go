package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	rtmsmodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/rtms"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ZOOM_OAUTH_URL", "ZOOM_API_BASE_URL", "ZOOM_RTMS_URL", "RTMS_STREAMS_FILE", "RTMS_READ_TIMEOUT", "RTMS_READ_LIMIT", "MONITOR_INTERVAL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Zoom.OAuthURL != "https://zoom.us/oauth/token" {
		t.Fatalf("unexpected oauth url: %s", cfg.Zoom.OAuthURL)
	}
	if cfg.Zoom.RTMSURL != "wss://rtms.zoom.us/v1" {
		t.Fatalf("unexpected rtms url: %s", cfg.Zoom.RTMSURL)
	}
	if cfg.RTMS.ReadTimeout != 0 {
		t.Fatalf("expected no read timeout by default, got %s", cfg.RTMS.ReadTimeout)
	}
	if cfg.RTMS.ReadLimit != 16<<20 {
		t.Fatalf("unexpected default read limit: %d", cfg.RTMS.ReadLimit)
	}
	if len(cfg.RTMS.Streams) != 3 || cfg.RTMS.Streams[0].Options["quality"] != "high" {
		t.Fatalf("unexpected default streams: %+v", cfg.RTMS.Streams)
	}
	if cfg.Monitor.Interval != time.Minute {
		t.Fatalf("unexpected monitor interval: %s", cfg.Monitor.Interval)
	}
}

func TestLoadZoomCredentials(t *testing.T) {
	t.Setenv("ZOOM_ACCOUNT_ID", " acct ")
	t.Setenv("ZOOM_CLIENT_ID", "client")
	t.Setenv("ZOOM_CLIENT_SECRET", "secret")
	t.Setenv("ZOOM_API_BASE_URL", "http://localhost:9000/v2/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	cred := cfg.Zoom.Credential()
	if cred.AccountID != "acct" || cred.ClientID != "client" || cred.ClientSecret != "secret" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	if cfg.Zoom.APIBaseURL != "http://localhost:9000/v2" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.Zoom.APIBaseURL)
	}
	if err := cfg.Zoom.Validate(); err != nil {
		t.Fatalf("Validate err: %v", err)
	}
}

func TestZoomValidateMissing(t *testing.T) {
	cases := []struct {
		name string
		cfg  ZoomConfig
		want error
	}{
		{name: "account", cfg: ZoomConfig{ClientID: "c", ClientSecret: "s"}, want: ErrMissingAccountID},
		{name: "client", cfg: ZoomConfig{AccountID: "a", ClientSecret: "s"}, want: ErrMissingClientID},
		{name: "secret", cfg: ZoomConfig{AccountID: "a", ClientID: "c"}, want: ErrMissingClientSecret},
	}

	for _, tc := range cases {
		if err := tc.cfg.Validate(); !errors.Is(err, tc.want) {
			t.Errorf("%s: Validate() = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{key: "PORT", value: "80 80"},
		{key: "RTMS_READ_TIMEOUT", value: "soon"},
		{key: "RTMS_WRITE_TIMEOUT", value: "-1"},
		{key: "RTMS_READ_LIMIT", value: "0"},
		{key: "RTMS_READ_LIMIT", value: "big"},
		{key: "MONITOR_ENABLED", value: "maybe"},
		{key: "MONITOR_INTERVAL", value: "0"},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

func TestLoadReadLimit(t *testing.T) {
	t.Setenv("RTMS_READ_LIMIT", "1048576")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.RTMS.ReadLimit != 1<<20 {
		t.Fatalf("unexpected read limit: %d", cfg.RTMS.ReadLimit)
	}
}

func TestLoadStreamProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streams.yaml")
	content := `streams:
  - type: video
    options:
      quality: low
  - type: transcript
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	t.Setenv("RTMS_STREAMS_FILE", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if len(cfg.RTMS.Streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(cfg.RTMS.Streams))
	}
	if cfg.RTMS.Streams[0].Type != rtmsmodel.KindVideo || cfg.RTMS.Streams[0].Options["quality"] != "low" {
		t.Fatalf("unexpected video stream: %+v", cfg.RTMS.Streams[0])
	}
	if cfg.RTMS.Streams[1].Type != rtmsmodel.KindTranscript {
		t.Fatalf("unexpected second stream: %+v", cfg.RTMS.Streams[1])
	}
}

func TestLoadStreamProfileRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streams.yaml")
	if err := os.WriteFile(path, []byte("streams:\n  - type: chat\n"), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	if _, err := LoadStreamProfile(path); err == nil {
		t.Fatal("expected error for unsupported stream type")
	}
}

func TestAIConfigEnabled(t *testing.T) {
	if (AIConfig{APIKey: "k"}).Enabled() {
		t.Fatal("model is required")
	}
	if !(AIConfig{APIKey: "k", Model: "m"}).Enabled() {
		t.Fatal("api key + model should enable AI")
	}
	if !(AIConfig{AccessKey: "a", SecretKey: "s", Model: "m"}).Enabled() {
		t.Fatal("ak/sk + model should enable AI")
	}
}
