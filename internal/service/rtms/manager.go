package rtms

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	rtmsmodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/rtms"
	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
)

// EndFunc is invoked once a managed session's Run loop has returned.
type EndFunc func(info rtmsmodel.SessionInfo, err error)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Session   Options
	Sink      FrameSink
	Listeners []Listener
	OnEnd     EndFunc
}

type managedSession struct {
	session *Session
	cancel  context.CancelFunc
}

// Manager runs at most one session per meeting, each on its own goroutine.
// Sessions share no state beyond this registry.
type Manager struct {
	opts   ManagerOptions
	hub    *Hub
	logger *logrus.Entry

	base   context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*managedSession
	wg       sync.WaitGroup
}

// NewManager creates a manager. Sessions run until stopped, closed by the
// peer, or CloseAll is called.
func NewManager(opts ManagerOptions) *Manager {
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:     opts,
		hub:      NewHub(0),
		logger:   applog.WithComponent("rtms-manager"),
		base:     base,
		cancel:   cancel,
		sessions: make(map[string]*managedSession),
	}
}

// Start connects, subscribes and runs a session for meetingID in the
// background. ctx bounds the connect and subscribe steps only.
func (m *Manager) Start(ctx context.Context, meetingID string) (rtmsmodel.SessionInfo, error) {
	sess := NewSession(m.opts.Session)
	sess.OnVideoFrame(m.opts.Sink)
	sess.AddListener(m.hub.Publish)
	for _, l := range m.opts.Listeners {
		sess.AddListener(l)
	}

	runCtx, cancel := context.WithCancel(m.base)
	entry := &managedSession{session: sess, cancel: cancel}

	// Registration and wg.Add share the lock with CloseAll's snapshot, so
	// a session is either seen by CloseAll or refused here.
	m.mu.Lock()
	if err := m.base.Err(); err != nil {
		m.mu.Unlock()
		cancel()
		return rtmsmodel.SessionInfo{}, fmt.Errorf("manager closed: %w", err)
	}
	if _, exists := m.sessions[meetingID]; exists {
		m.mu.Unlock()
		cancel()
		return rtmsmodel.SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionExists, meetingID)
	}
	m.sessions[meetingID] = entry
	m.wg.Add(1)
	m.mu.Unlock()

	if err := sess.Connect(ctx, meetingID); err != nil {
		m.remove(meetingID, entry)
		cancel()
		m.wg.Done()
		return sess.Info(), err
	}
	if err := sess.Subscribe(ctx); err != nil {
		m.remove(meetingID, entry)
		cancel()
		_ = sess.Close()
		m.wg.Done()
		return sess.Info(), err
	}

	go func() {
		defer m.wg.Done()
		defer cancel()

		err := sess.Run(runCtx)
		_ = sess.Close()
		m.remove(meetingID, entry)

		info := sess.Info()
		log := m.logger.WithFields(logrus.Fields{
			"meeting_id": meetingID,
			"session_id": info.ID,
			"state":      info.State,
			"frames":     info.Frames,
		})
		if err != nil {
			log.WithError(err).Warn("media stream session ended with error")
		} else {
			log.Info("media stream session ended")
		}

		if m.opts.OnEnd != nil {
			m.opts.OnEnd(info, err)
		}
	}()

	m.logger.WithFields(logrus.Fields{
		"meeting_id": meetingID,
		"session_id": sess.ID(),
	}).Info("media stream session started")
	return sess.Info(), nil
}

// Stop cancels and closes the session for meetingID.
func (m *Manager) Stop(meetingID string) error {
	m.mu.RLock()
	entry, ok := m.sessions[meetingID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, meetingID)
	}

	entry.cancel()
	return entry.session.Close()
}

// Get returns a snapshot of the session for meetingID.
func (m *Manager) Get(meetingID string) (rtmsmodel.SessionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.sessions[meetingID]
	if !ok {
		return rtmsmodel.SessionInfo{}, false
	}
	return entry.session.Info(), true
}

// List returns snapshots of all running sessions ordered by meeting.
func (m *Manager) List() []rtmsmodel.SessionInfo {
	m.mu.RLock()
	infos := make([]rtmsmodel.SessionInfo, 0, len(m.sessions))
	for _, entry := range m.sessions {
		infos = append(infos, entry.session.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].MeetingID < infos[j].MeetingID })
	return infos
}

// Events subscribes to live events of meetingID.
func (m *Manager) Events(meetingID string) (<-chan rtmsmodel.Event, func()) {
	return m.hub.Subscribe(meetingID)
}

// CloseAll stops every session and waits for their loops to return.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()

	m.mu.RLock()
	entries := make([]*managedSession, 0, len(m.sessions))
	for _, entry := range m.sessions {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()

	for _, entry := range entries {
		entry.cancel()
		_ = entry.session.Close()
	}
	m.wg.Wait()
}

// Wait blocks until every running session has ended.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) remove(meetingID string, entry *managedSession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.sessions[meetingID]; ok && current == entry {
		delete(m.sessions, meetingID)
	}
}
