package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	rtmsmodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/rtms"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/insight"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/rtms"
	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
	"github.com/zhouzirui/zoom-rtms/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Manager controls media stream sessions.
type Manager interface {
	Start(ctx context.Context, meetingID string) (rtmsmodel.SessionInfo, error)
	Stop(meetingID string) error
	Get(meetingID string) (rtmsmodel.SessionInfo, bool)
	List() []rtmsmodel.SessionInfo
	Events(meetingID string) (<-chan rtmsmodel.Event, func())
}

// SummaryReader returns stored meeting summaries.
type SummaryReader interface {
	Summary(meetingID string) (insight.Summary, bool)
}

// Handler serves session control, live events and summaries.
type Handler struct {
	sessions  Manager
	summaries SummaryReader
	heartbeat time.Duration
	logger    *logrus.Entry
}

// New creates a session handler. summaries may be nil.
func New(sessions Manager, summaries SummaryReader) *Handler {
	return &Handler{
		sessions:  sessions,
		summaries: summaries,
		heartbeat: defaultHeartbeat,
		logger:    applog.WithComponent("session-handler"),
	}
}

// RegisterRoutes mounts the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{meetingID}", h.handleGet)
		r.Post("/{meetingID}", h.handleStart)
		r.Delete("/{meetingID}", h.handleStop)
		r.Get("/{meetingID}/events", h.handleEvents)
		r.Get("/{meetingID}/summary", h.handleSummary)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": h.sessions.List()})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	info, ok := h.sessions.Get(chi.URLParam(r, "meetingID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, info)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")

	info, err := h.sessions.Start(r.Context(), meetingID)
	if err != nil {
		h.logger.WithError(err).WithField("meeting_id", meetingID).Warn("failed to start session")
		switch {
		case errors.Is(err, rtms.ErrSessionExists):
			utils.RespondError(w, http.StatusConflict, "session already running")
		case errors.Is(err, rtms.ErrInvalidState):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, rtms.ErrTokenMissing):
			utils.RespondError(w, http.StatusBadGateway, "no stream token available")
		case errors.Is(err, rtms.ErrHandshake):
			utils.RespondError(w, http.StatusBadGateway, "media stream handshake failed")
		default:
			utils.RespondError(w, http.StatusInternalServerError, "failed to start session")
		}
		return
	}

	utils.RespondJSON(w, http.StatusCreated, info)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Stop(chi.URLParam(r, "meetingID")); err != nil {
		if errors.Is(err, rtms.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// handleEvents streams session events until the session ends or the client
// goes away.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	meetingID := chi.URLParam(r, "meetingID")
	events, unsubscribe := h.sessions.Events(meetingID)
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ready := map[string]any{"meeting_id": meetingID}
	if info, ok := h.sessions.Get(meetingID); ok {
		ready["session_id"] = info.ID
		ready["state"] = info.State
	}
	if !utils.SendSSEEvent(w, flusher, "ready", ready) {
		return
	}

	log := h.logger.WithField("meeting_id", meetingID)
	log.Debug("event stream opened")
	defer log.Debug("event stream closed")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !utils.SendSSEEvent(w, flusher, string(ev.Kind), ev) {
				return
			}
			if ev.Kind == rtmsmodel.KindState && ev.State.Terminal() {
				return
			}
		case <-ticker.C:
			if !utils.SendSSEComment(w, flusher, "heartbeat") {
				return
			}
		}
	}
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	if h.summaries == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "summaries disabled")
		return
	}
	summary, ok := h.summaries.Summary(chi.URLParam(r, "meetingID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "summary not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, summary)
}
