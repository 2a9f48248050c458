package monitor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
)

const defaultInterval = 60 * time.Second

// API is the subset of the Zoom REST client the monitor polls.
type API interface {
	Me(ctx context.Context) (*zoommodel.User, error)
	ListMeetings(ctx context.Context, userID, meetingType string) (*zoommodel.MeetingList, error)
	ListParticipants(ctx context.Context, meetingID string) (*zoommodel.ParticipantList, error)
}

// LiveMeeting is one observation of a running meeting.
type LiveMeeting struct {
	MeetingID    string    `json:"meeting_id"`
	Topic        string    `json:"topic"`
	Participants int       `json:"participants"`
	ObservedAt   time.Time `json:"observed_at"`
}

// LiveFunc is called for every meeting that was not live on the previous poll.
type LiveFunc func(ctx context.Context, meeting LiveMeeting)

// Monitor polls the account for live meetings.
type Monitor struct {
	api      API
	interval time.Duration
	onLive   LiveFunc
	logger   *logrus.Entry

	mu     sync.RWMutex
	userID string
	live   map[string]LiveMeeting
}

// New creates a monitor. onLive may be nil.
func New(api API, interval time.Duration, onLive LiveFunc) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{
		api:      api,
		interval: interval,
		onLive:   onLive,
		logger:   applog.WithComponent("monitor"),
		live:     make(map[string]LiveMeeting),
	}
}

// Run resolves the account user and polls until ctx is done. Only the user
// lookup is fatal; poll errors are logged and retried on the next tick.
func (m *Monitor) Run(ctx context.Context) error {
	user, err := m.api.Me(ctx)
	if err != nil {
		return fmt.Errorf("failed to get user info: %w", err)
	}

	m.mu.Lock()
	m.userID = user.ID
	m.mu.Unlock()
	m.logger.WithField("user_id", user.ID).Infof("monitoring live meetings every %s", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if err := m.Poll(ctx); err != nil && ctx.Err() == nil {
			m.logger.WithError(err).Warn("error monitoring meetings")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll performs one observation of the live meetings.
func (m *Monitor) Poll(ctx context.Context) error {
	m.mu.RLock()
	userID := m.userID
	m.mu.RUnlock()
	if userID == "" {
		userID = "me"
	}

	list, err := m.api.ListMeetings(ctx, userID, zoommodel.MeetingTypeLive)
	if err != nil {
		return fmt.Errorf("failed to get meetings: %w", err)
	}

	now := time.Now().UTC()
	current := make(map[string]LiveMeeting, len(list.Meetings))
	for _, meeting := range list.Meetings {
		id := strconv.FormatInt(meeting.ID, 10)
		log := m.logger.WithField("meeting_id", id)
		log.Infof("active meeting: %s", meeting.Topic)

		observed := LiveMeeting{MeetingID: id, Topic: meeting.Topic, ObservedAt: now}
		participants, err := m.api.ListParticipants(ctx, id)
		if err != nil {
			log.WithError(err).Warn("failed to get participants")
		} else {
			observed.Participants = len(participants.Participants)
			log.Infof("participants: %d", observed.Participants)
		}
		current[id] = observed
	}

	m.mu.Lock()
	previous := m.live
	m.live = current
	m.mu.Unlock()

	if m.onLive == nil {
		return nil
	}
	for id, meeting := range current {
		if _, seen := previous[id]; !seen {
			m.onLive(ctx, meeting)
		}
	}
	return nil
}

// Live returns the meetings seen on the last poll ordered by meeting ID.
func (m *Monitor) Live() []LiveMeeting {
	m.mu.RLock()
	out := make([]LiveMeeting, 0, len(m.live))
	for _, meeting := range m.live {
		out = append(out, meeting)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].MeetingID < out[j].MeetingID })
	return out
}
