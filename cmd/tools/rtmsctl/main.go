package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/zoom-rtms/backend/internal/config"
	rtmsmodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/rtms"
	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/frames"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/monitor"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/rtms"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/zoom"
	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
)

func main() {
	mode := flag.String("mode", "", "mode: token, meetings, monitor or stream")
	meetingID := flag.String("meeting", "", "meeting ID to stream (stream mode)")
	meetingType := flag.String("type", zoommodel.MeetingTypeLive, "meeting list filter (meetings mode)")
	user := flag.String("user", "me", "user whose meetings are listed (meetings mode)")
	timeout := flag.Duration("timeout", 30*time.Second, "timeout for one-shot requests")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		applog.Warnf("failed to load .env file, using system environment variables: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		applog.Fatalf("failed to load configuration: %v", err)
	}
	applog.Init(cfg.Log.Level, "text")

	if err := cfg.Zoom.Validate(); err != nil {
		applog.Fatalf("invalid zoom configuration: %v", err)
	}

	httpClient := &http.Client{Timeout: cfg.Zoom.HTTPTimeout}
	oauth := zoom.NewOAuthClient(httpClient, cfg.Zoom.OAuthURL, nil)
	tokens := zoom.NewTokenSource(oauth, cfg.Zoom.Credential())
	client := zoom.NewClient(httpClient, cfg.Zoom.APIBaseURL, tokens)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "token":
		runToken(ctx, tokens, *timeout)
	case "meetings":
		runMeetings(ctx, client, *user, *meetingType, *timeout)
	case "monitor":
		runMonitor(ctx, client, cfg.Monitor.Interval)
	case "stream":
		exchange := zoom.NewStreamTokenExchange(httpClient, cfg.Zoom.APIBaseURL, tokens, nil)
		runStream(ctx, cfg, exchange, *meetingID)
	default:
		flag.Usage()
		applog.Fatalf("select a mode with -mode=token|meetings|monitor|stream")
	}
}

func runToken(ctx context.Context, tokens *zoom.TokenSource, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token, err := tokens.Token(ctx)
	if err != nil {
		applog.Fatalf("failed to fetch access token: %v", err)
	}
	applog.Infof("access token ok: token=%s type=%s expires_at=%s",
		mask(token.Value), token.TokenType, token.ExpiresAt.Format(time.RFC3339))
}

func runMeetings(ctx context.Context, client *zoom.Client, user, meetingType string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	list, err := client.ListMeetings(ctx, user, meetingType)
	if err != nil {
		applog.Fatalf("failed to list meetings: %v", err)
	}
	applog.Infof("found %d %s meetings", len(list.Meetings), meetingType)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list.Meetings); err != nil {
		applog.Fatalf("failed to write meetings: %v", err)
	}
}

func runMonitor(ctx context.Context, client *zoom.Client, interval time.Duration) {
	mon := monitor.New(client, interval, func(_ context.Context, lm monitor.LiveMeeting) {
		applog.Infof("meeting %s is live: topic=%q participants=%d", lm.MeetingID, lm.Topic, lm.Participants)
	})
	if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		applog.Fatalf("monitor stopped: %v", err)
	}
}

func runStream(ctx context.Context, cfg *config.Config, exchange *zoom.StreamTokenExchange, meetingID string) {
	if meetingID == "" {
		applog.Fatalf("stream mode needs -meeting")
	}

	processor, err := frames.NewVideoProcessor(cfg.Frames)
	if err != nil {
		applog.Fatalf("failed to initialize video processor: %v", err)
	}

	session := rtms.NewSession(rtms.Options{
		URL:              cfg.Zoom.RTMSURL,
		Tokens:           exchange,
		Streams:          cfg.RTMS.Streams,
		HandshakeTimeout: cfg.RTMS.HandshakeTimeout,
		WriteTimeout:     cfg.RTMS.WriteTimeout,
		ReadTimeout:      cfg.RTMS.ReadTimeout,
		ReadLimit:        cfg.RTMS.ReadLimit,
	})
	session.OnVideoFrame(processor.ProcessFrame)
	session.AddListener(func(ev rtmsmodel.Event) {
		switch ev.Kind {
		case rtmsmodel.KindTranscript:
			applog.Infof("transcript: %s", ev.Text)
		case rtmsmodel.KindError:
			applog.Warnf("stream error: %s", ev.Text)
		}
	})
	defer session.Close()

	if err := session.Connect(ctx, meetingID); err != nil {
		applog.Fatalf("failed to connect: %v", err)
	}
	if err := session.Subscribe(ctx); err != nil {
		applog.Fatalf("failed to subscribe: %v", err)
	}
	applog.Infof("streaming meeting %s, press Ctrl-C to stop", meetingID)

	runErr := session.Run(ctx)
	stats := processor.Stats()
	applog.Infof("stream ended: state=%s frames_saved=%d skipped=%d", session.State(), stats.Saved, stats.Skipped)
	if runErr != nil {
		applog.Fatalf("stream failed: %v", runErr)
	}
}

func mask(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
