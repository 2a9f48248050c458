package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/zoom-rtms/backend/internal/handler/meeting"
	"github.com/zhouzirui/zoom-rtms/backend/internal/handler/session"
	"github.com/zhouzirui/zoom-rtms/backend/internal/handler/webhook"
	middlewarePkg "github.com/zhouzirui/zoom-rtms/backend/internal/middleware"
	"github.com/zhouzirui/zoom-rtms/backend/pkg/utils"
)

// Dependencies are the services exposed over HTTP. Nil optional members
// disable their routes.
type Dependencies struct {
	Webhook    webhook.Processor
	Recordings webhook.RecordingReader
	Meetings   meeting.Lister
	Live       meeting.LiveSource
	Sessions   session.Manager
	Summaries  session.SummaryReader
	Metrics    http.Handler
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	if deps.Webhook != nil && deps.Recordings != nil {
		webhook.New(deps.Webhook, deps.Recordings).RegisterRoutes(r)
	}
	if deps.Meetings != nil {
		meeting.New(deps.Meetings, deps.Live).RegisterRoutes(r)
	}
	if deps.Sessions != nil {
		session.New(deps.Sessions, deps.Summaries).RegisterRoutes(r)
	}

	return r
}
