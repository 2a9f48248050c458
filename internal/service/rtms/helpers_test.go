package rtms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	rtmsmodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/rtms"
	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
)

type fakeTokens struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeTokens) FetchStreamToken(_ context.Context, _ zoommodel.AccessToken, meetingID string) (zoommodel.StreamToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, meetingID)
	if f.err != nil {
		return zoommodel.StreamToken{}, f.err
	}
	return zoommodel.StreamToken{MeetingID: meetingID, Value: "tok-" + meetingID}, nil
}

func (f *fakeTokens) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// streamServer is a scripted media stream peer.
type streamServer struct {
	*httptest.Server

	dials     atomic.Int32
	mu        sync.Mutex
	subscribe rtmsmodel.SubscribeRequest
	token     string
}

// newStreamServer starts a peer that reads the subscribe request, writes
// script, and then closes normally unless hold is set, in which case it waits
// for the client to disconnect.
func newStreamServer(t *testing.T, script []string, hold bool) *streamServer {
	t.Helper()

	s := &streamServer{}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.dials.Add(1)
		s.mu.Lock()
		s.token = r.URL.Query().Get("access_token")
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req rtmsmodel.SubscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		s.mu.Lock()
		s.subscribe = req
		s.mu.Unlock()

		for _, msg := range script {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}

		if !hold {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		}

		// Drain until the client goes away.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *streamServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *streamServer) receivedToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *streamServer) receivedSubscribe() rtmsmodel.SubscribeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribe
}

// streamingSession returns a session already connected and subscribed.
func streamingSession(t *testing.T, srv *streamServer, meetingID string) *Session {
	t.Helper()

	sess := NewSession(Options{URL: srv.wsURL(), Tokens: &fakeTokens{}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sess.Connect(ctx, meetingID); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	if err := sess.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe err: %v", err)
	}
	return sess
}

type eventLog struct {
	mu     sync.Mutex
	events []rtmsmodel.Event
}

func (l *eventLog) listener(ev rtmsmodel.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []rtmsmodel.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]rtmsmodel.Kind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (l *eventLog) states() []rtmsmodel.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []rtmsmodel.State
	for _, ev := range l.events {
		if ev.Kind == rtmsmodel.KindState {
			out = append(out, ev.State)
		}
	}
	return out
}
