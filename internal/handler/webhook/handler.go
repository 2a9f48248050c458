package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
	webhookService "github.com/zhouzirui/zoom-rtms/backend/internal/service/webhook"
	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
	"github.com/zhouzirui/zoom-rtms/backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// Processor handles decoded webhook events.
type Processor interface {
	Handle(ctx context.Context, event zoommodel.WebhookEvent) (any, error)
}

// RecordingReader looks up recording jobs.
type RecordingReader interface {
	Get(ctx context.Context, meetingID string) (webhookService.RecordingJob, error)
}

// Handler serves the webhook endpoint and recording lookups.
type Handler struct {
	processor  Processor
	recordings RecordingReader
}

// New creates a webhook handler.
func New(processor Processor, recordings RecordingReader) *Handler {
	return &Handler{processor: processor, recordings: recordings}
}

// RegisterRoutes mounts the webhook routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook", h.handleWebhook)
	r.Get("/recordings/{meetingID}", h.handleGetRecording)
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var event zoommodel.WebhookEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&event); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(event.Event) == "" {
		utils.RespondError(w, http.StatusBadRequest, "event is required")
		return
	}

	resp, err := h.processor.Handle(r.Context(), event)
	if err != nil {
		switch {
		case errors.Is(err, webhookService.ErrInvalidPayload):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, webhookService.ErrSecretMissing):
			applog.WithComponent("webhook").WithError(err).Error("cannot answer endpoint validation")
			utils.RespondError(w, http.StatusInternalServerError, "webhook secret not configured")
		default:
			utils.RespondError(w, http.StatusInternalServerError, "failed to process event")
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")

	job, err := h.recordings.Get(r.Context(), meetingID)
	if err != nil {
		if errors.Is(err, webhookService.ErrRecordingNotFound) {
			utils.RespondError(w, http.StatusNotFound, "recording not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, job)
}
