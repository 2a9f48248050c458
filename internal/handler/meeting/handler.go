package meeting

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/monitor"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/zoom"
	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
	"github.com/zhouzirui/zoom-rtms/backend/pkg/utils"
)

// Lister lists the meetings of a user.
type Lister interface {
	ListMeetings(ctx context.Context, userID, meetingType string) (*zoommodel.MeetingList, error)
}

// LiveSource reports meetings seen live by the monitor.
type LiveSource interface {
	Live() []monitor.LiveMeeting
}

// Handler serves meeting listings.
type Handler struct {
	meetings Lister
	live     LiveSource
}

// New creates a meeting handler. live may be nil when monitoring is off.
func New(meetings Lister, live LiveSource) *Handler {
	return &Handler{meetings: meetings, live: live}
}

// RegisterRoutes mounts the meeting routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/meetings", h.handleListMeetings)
	r.Get("/meetings/live", h.handleLiveMeetings)
}

func (h *Handler) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	meetingType := r.URL.Query().Get("type")
	if meetingType == "" {
		meetingType = zoommodel.MeetingTypeScheduled
	}

	list, err := h.meetings.ListMeetings(r.Context(), "me", meetingType)
	if err != nil {
		log := applog.WithComponent("meeting").WithError(err)
		switch {
		case errors.Is(err, zoom.ErrCredential):
			log.Warn("failed to get access token")
			utils.RespondError(w, http.StatusUnauthorized, "failed to get access token")
		case zoom.StatusCode(err) != 0:
			log.Warn("failed to get meetings")
			utils.RespondError(w, zoom.StatusCode(err), "failed to get meetings")
		default:
			log.Error("failed to get meetings")
			utils.RespondError(w, http.StatusBadGateway, "failed to get meetings")
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, list)
}

func (h *Handler) handleLiveMeetings(w http.ResponseWriter, _ *http.Request) {
	if h.live == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "meeting monitor disabled")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"meetings": h.live.Live()})
}
