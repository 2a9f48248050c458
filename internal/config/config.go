package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"gopkg.in/yaml.v3"

	rtmsmodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/rtms"
	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
)

var (
	ErrMissingAccountID    = errors.New("ZOOM_ACCOUNT_ID is required")
	ErrMissingClientID     = errors.New("ZOOM_CLIENT_ID is required")
	ErrMissingClientSecret = errors.New("ZOOM_CLIENT_SECRET is required")
)

// Config aggregates the configuration of the whole service.
type Config struct {
	Server  ServerConfig
	Zoom    ZoomConfig
	RTMS    RTMSConfig
	Frames  FramesConfig
	Monitor MonitorConfig
	Log     LogConfig
	AI      AIConfig
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	zoom, err := loadZoomConfig()
	if err != nil {
		return nil, err
	}

	rtms, err := loadRTMSConfig()
	if err != nil {
		return nil, err
	}

	frames, err := loadFramesConfig()
	if err != nil {
		return nil, err
	}

	monitor, err := loadMonitorConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Zoom:    zoom,
		RTMS:    rtms,
		Frames:  frames,
		Monitor: monitor,
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		AI: loadAIConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as given.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// ZoomConfig holds the OAuth app credentials and API endpoints.
type ZoomConfig struct {
	AccountID         string
	ClientID          string
	ClientSecret      string
	VerificationToken string
	OAuthURL          string
	APIBaseURL        string
	RTMSURL           string
	HTTPTimeout       time.Duration
}

// Credential returns the OAuth credential triple.
func (c ZoomConfig) Credential() zoommodel.Credential {
	return zoommodel.Credential{
		AccountID:    c.AccountID,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
	}
}

// Validate rejects missing credentials.
func (c ZoomConfig) Validate() error {
	switch {
	case c.AccountID == "":
		return ErrMissingAccountID
	case c.ClientID == "":
		return ErrMissingClientID
	case c.ClientSecret == "":
		return ErrMissingClientSecret
	}
	return nil
}

func loadZoomConfig() (ZoomConfig, error) {
	timeout, err := parseSecondsEnv("ZOOM_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return ZoomConfig{}, err
	}

	return ZoomConfig{
		AccountID:         strings.TrimSpace(os.Getenv("ZOOM_ACCOUNT_ID")),
		ClientID:          strings.TrimSpace(os.Getenv("ZOOM_CLIENT_ID")),
		ClientSecret:      strings.TrimSpace(os.Getenv("ZOOM_CLIENT_SECRET")),
		VerificationToken: strings.TrimSpace(os.Getenv("ZOOM_VERIFICATION_TOKEN")),
		OAuthURL:          getEnvOrDefault("ZOOM_OAUTH_URL", "https://zoom.us/oauth/token"),
		APIBaseURL:        strings.TrimRight(getEnvOrDefault("ZOOM_API_BASE_URL", "https://api.zoom.us/v2"), "/"),
		RTMSURL:           getEnvOrDefault("ZOOM_RTMS_URL", "wss://rtms.zoom.us/v1"),
		HTTPTimeout:       timeout,
	}, nil
}

// RTMSConfig controls the media stream transport.
type RTMSConfig struct {
	Streams          []rtmsmodel.StreamSpec
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout bounds the wait for the next message; zero waits forever.
	ReadTimeout time.Duration
	// ReadLimit caps one inbound message in bytes.
	ReadLimit int64
}

const defaultReadLimit = 16 << 20

type streamProfile struct {
	Streams []rtmsmodel.StreamSpec `yaml:"streams"`
}

func loadRTMSConfig() (RTMSConfig, error) {
	handshake, err := parseSecondsEnv("RTMS_HANDSHAKE_TIMEOUT", 30*time.Second)
	if err != nil {
		return RTMSConfig{}, err
	}
	write, err := parseSecondsEnv("RTMS_WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return RTMSConfig{}, err
	}
	read, err := parseSecondsEnv("RTMS_READ_TIMEOUT", 0)
	if err != nil {
		return RTMSConfig{}, err
	}
	limit, err := parseOptionalIntEnv("RTMS_READ_LIMIT")
	if err != nil {
		return RTMSConfig{}, err
	}
	readLimit := int64(defaultReadLimit)
	if limit != nil {
		if *limit <= 0 {
			return RTMSConfig{}, fmt.Errorf("invalid RTMS_READ_LIMIT value %d: must be positive", *limit)
		}
		readLimit = int64(*limit)
	}

	streams := rtmsmodel.DefaultStreams()
	if path := strings.TrimSpace(os.Getenv("RTMS_STREAMS_FILE")); path != "" {
		streams, err = LoadStreamProfile(path)
		if err != nil {
			return RTMSConfig{}, err
		}
	}

	return RTMSConfig{
		Streams:          streams,
		HandshakeTimeout: handshake,
		WriteTimeout:     write,
		ReadTimeout:      read,
		ReadLimit:        readLimit,
	}, nil
}

// LoadStreamProfile reads a YAML subscription profile of the form
//
//	streams:
//	  - type: video
//	    options: {quality: high}
//	  - type: transcript
func LoadStreamProfile(path string) ([]rtmsmodel.StreamSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream profile %s: %w", path, err)
	}

	var profile streamProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse stream profile %s: %w", path, err)
	}

	if len(profile.Streams) == 0 {
		return nil, fmt.Errorf("stream profile %s declares no streams", path)
	}

	for i, s := range profile.Streams {
		switch s.Type {
		case rtmsmodel.KindVideo, rtmsmodel.KindAudio, rtmsmodel.KindTranscript:
		default:
			return nil, fmt.Errorf("stream profile %s: streams[%d] has unsupported type %q", path, i, s.Type)
		}
	}

	return profile.Streams, nil
}

// FramesConfig controls where decoded video frames are written.
type FramesConfig struct {
	OutputDir     string
	StatsInterval time.Duration
}

func loadFramesConfig() (FramesConfig, error) {
	interval, err := parseSecondsEnv("FRAMES_STATS_INTERVAL", 5*time.Second)
	if err != nil {
		return FramesConfig{}, err
	}
	return FramesConfig{
		OutputDir:     getEnvOrDefault("FRAMES_OUTPUT_DIR", "video_output"),
		StatsInterval: interval,
	}, nil
}

// MonitorConfig controls the live meeting poller.
type MonitorConfig struct {
	Enabled    bool
	Interval   time.Duration
	AutoStream bool
}

func loadMonitorConfig() (MonitorConfig, error) {
	enabled, err := parseBoolEnv("MONITOR_ENABLED", false)
	if err != nil {
		return MonitorConfig{}, err
	}
	auto, err := parseBoolEnv("MONITOR_AUTO_STREAM", false)
	if err != nil {
		return MonitorConfig{}, err
	}
	interval, err := parseSecondsEnv("MONITOR_INTERVAL", 60*time.Second)
	if err != nil {
		return MonitorConfig{}, err
	}
	if interval <= 0 {
		return MonitorConfig{}, fmt.Errorf("invalid MONITOR_INTERVAL: must be positive")
	}
	return MonitorConfig{Enabled: enabled, Interval: interval, AutoStream: auto}, nil
}

// LogConfig selects logrus level and formatter.
type LogConfig struct {
	Level  string
	Format string
}

// AIConfig describes the Ark chat model used for summaries.
type AIConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
}

// Enabled reports whether a model and its credentials are configured.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + Model or an AK/SK pair")
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	})
}

func loadAIConfig() AIConfig {
	return AIConfig{
		APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:     strings.TrimSpace(os.Getenv("Model")),
		BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseSecondsEnv reads a whole number of seconds.
func parseSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	seconds, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if seconds == nil {
		return defaultValue, nil
	}
	if *seconds < 0 {
		return 0, fmt.Errorf("invalid %s value %d: must not be negative", key, *seconds)
	}
	return time.Duration(*seconds) * time.Second, nil
}
