package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/zoom-rtms/backend/internal/config"
	"github.com/zhouzirui/zoom-rtms/backend/internal/handler"
	"github.com/zhouzirui/zoom-rtms/backend/internal/handler/meeting"
	"github.com/zhouzirui/zoom-rtms/backend/internal/metrics"
	rtmsmodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/rtms"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/frames"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/insight"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/monitor"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/rtms"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/webhook"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/zoom"
	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
)

const (
	summaryTimeout  = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		applog.Warnf("failed to load .env file: %v", err)
		applog.Infof("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		applog.Fatalf("failed to load configuration: %v", err)
	}
	applog.Init(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Zoom.Validate(); err != nil {
		applog.Fatalf("invalid zoom configuration: %v", err)
	}

	m := metrics.NewMetrics()

	httpClient := &http.Client{Timeout: cfg.Zoom.HTTPTimeout}
	oauth := zoom.NewOAuthClient(httpClient, cfg.Zoom.OAuthURL, m)
	tokens := zoom.NewTokenSource(oauth, cfg.Zoom.Credential())
	exchange := zoom.NewStreamTokenExchange(httpClient, cfg.Zoom.APIBaseURL, tokens, m)
	client := zoom.NewClient(httpClient, cfg.Zoom.APIBaseURL, tokens)

	processor, err := frames.NewVideoProcessor(cfg.Frames)
	if err != nil {
		applog.Fatalf("failed to initialize video processor: %v", err)
	}

	insightSvc := newInsightService(ctx, cfg.AI)

	manager := rtms.NewManager(rtms.ManagerOptions{
		Session: rtms.Options{
			URL:              cfg.Zoom.RTMSURL,
			Tokens:           exchange,
			Streams:          cfg.RTMS.Streams,
			HandshakeTimeout: cfg.RTMS.HandshakeTimeout,
			WriteTimeout:     cfg.RTMS.WriteTimeout,
			ReadTimeout:      cfg.RTMS.ReadTimeout,
			ReadLimit:        cfg.RTMS.ReadLimit,
			Recorder:         m,
		},
		Sink:      processor.ProcessFrame,
		Listeners: []rtms.Listener{insightSvc.Observe},
		OnEnd: func(info rtmsmodel.SessionInfo, _ error) {
			summaryCtx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
			defer cancel()
			insightSvc.Summarize(summaryCtx, info.MeetingID, info.ID)
		},
	})

	webhookSvc := webhook.NewService(webhook.Options{
		Secret:     cfg.Zoom.VerificationToken,
		Recordings: client,
		Recorder:   m,
	})

	deps := handler.Dependencies{
		Webhook:    webhookSvc,
		Recordings: webhookSvc.Store(),
		Meetings:   client,
		Sessions:   manager,
		Summaries:  insightSvc,
		Metrics:    m.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Monitor.Enabled {
		mon := monitor.New(client, cfg.Monitor.Interval, autoStream(manager, cfg.Monitor.AutoStream))
		deps.Live = meeting.LiveSource(mon)
		g.Go(func() error {
			if err := mon.Run(gctx); err != nil {
				applog.Errorf("live meeting monitor stopped: %v", err)
			}
			return nil
		})
	} else {
		applog.Infof("live meeting monitor disabled by configuration")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Cancels open event streams on shutdown.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		applog.Infof("zoom rtms backend listening on %s", cfg.Server.Addr)
		return runServer(gctx, srv)
	})

	err = g.Wait()

	manager.CloseAll()
	webhookSvc.Close()

	if err != nil {
		applog.Fatalf("server error: %v", err)
	}
	applog.Infof("shutdown complete")
}

func newInsightService(ctx context.Context, cfg config.AIConfig) *insight.Service {
	var chatModel model.ChatModel
	if cfg.Enabled() {
		cm, err := cfg.NewChatModel(ctx)
		if err != nil {
			applog.Warnf("failed to initialize chat model: %v", err)
			applog.Infof("continuing with heuristic meeting summaries")
		} else {
			chatModel = cm
		}
	} else {
		applog.Infof("Ark credentials not configured, meeting summaries use heuristics")
	}

	svc, err := insight.NewService(ctx, chatModel, insight.Config{})
	if err != nil {
		applog.Warnf("failed to initialize summary chain: %v", err)
		svc, _ = insight.NewService(ctx, nil, insight.Config{})
	}
	return svc
}

// autoStream starts a session for every newly live meeting when enabled.
func autoStream(manager *rtms.Manager, enabled bool) monitor.LiveFunc {
	if !enabled {
		return nil
	}
	logger := applog.WithComponent("auto-stream")
	return func(ctx context.Context, lm monitor.LiveMeeting) {
		if _, err := manager.Start(ctx, lm.MeetingID); err != nil && !errors.Is(err, rtms.ErrSessionExists) {
			logger.WithError(err).WithField("meeting_id", lm.MeetingID).Warn("failed to start media stream")
		}
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
