package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	rtmsmodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/rtms"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/insight"
	"github.com/zhouzirui/zoom-rtms/backend/internal/service/rtms"
)

type fakeManager struct {
	startErr error
	stopErr  error
	sessions map[string]rtmsmodel.SessionInfo
	events   []rtmsmodel.Event
	unsubbed bool
}

func (f *fakeManager) Start(_ context.Context, meetingID string) (rtmsmodel.SessionInfo, error) {
	if f.startErr != nil {
		return rtmsmodel.SessionInfo{MeetingID: meetingID, State: rtmsmodel.StateErrored}, f.startErr
	}
	info := rtmsmodel.SessionInfo{ID: "s-" + meetingID, MeetingID: meetingID, State: rtmsmodel.StateStreaming}
	f.sessions[meetingID] = info
	return info, nil
}

func (f *fakeManager) Stop(meetingID string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	if _, ok := f.sessions[meetingID]; !ok {
		return fmt.Errorf("%w: %s", rtms.ErrSessionNotFound, meetingID)
	}
	delete(f.sessions, meetingID)
	return nil
}

func (f *fakeManager) Get(meetingID string) (rtmsmodel.SessionInfo, bool) {
	info, ok := f.sessions[meetingID]
	return info, ok
}

func (f *fakeManager) List() []rtmsmodel.SessionInfo {
	out := make([]rtmsmodel.SessionInfo, 0, len(f.sessions))
	for _, info := range f.sessions {
		out = append(out, info)
	}
	return out
}

func (f *fakeManager) Events(string) (<-chan rtmsmodel.Event, func()) {
	ch := make(chan rtmsmodel.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	return ch, func() { f.unsubbed = true }
}

type fakeSummaries map[string]insight.Summary

func (f fakeSummaries) Summary(meetingID string) (insight.Summary, bool) {
	s, ok := f[meetingID]
	return s, ok
}

func setupRouter(mgr *fakeManager, summaries SummaryReader) *chi.Mux {
	r := chi.NewRouter()
	New(mgr, summaries).RegisterRoutes(r)
	return r
}

func newManager() *fakeManager {
	return &fakeManager{sessions: make(map[string]rtmsmodel.SessionInfo)}
}

func do(r http.Handler, method, target string) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(method, target, nil))
	return resp
}

func TestStartListAndStop(t *testing.T) {
	mgr := newManager()
	r := setupRouter(mgr, nil)

	resp := do(r, http.MethodPost, "/sessions/m1")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var info rtmsmodel.SessionInfo
	if err := json.Unmarshal(resp.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if info.MeetingID != "m1" || info.State != rtmsmodel.StateStreaming {
		t.Fatalf("unexpected info %+v", info)
	}

	list := do(r, http.MethodGet, "/sessions")
	if list.Code != http.StatusOK || !strings.Contains(list.Body.String(), `"meeting_id":"m1"`) {
		t.Fatalf("unexpected list %d %s", list.Code, list.Body.String())
	}

	if got := do(r, http.MethodGet, "/sessions/m1"); got.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", got.Code)
	}
	if got := do(r, http.MethodDelete, "/sessions/m1"); got.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", got.Code)
	}
	if got := do(r, http.MethodDelete, "/sessions/m1"); got.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", got.Code)
	}
	if got := do(r, http.MethodGet, "/sessions/m1"); got.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", got.Code)
	}
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "exists", err: fmt.Errorf("%w: m1", rtms.ErrSessionExists), code: http.StatusConflict},
		{name: "token", err: fmt.Errorf("%w: denied", rtms.ErrTokenMissing), code: http.StatusBadGateway},
		{name: "handshake", err: fmt.Errorf("%w: 403", rtms.ErrHandshake), code: http.StatusBadGateway},
		{name: "state", err: fmt.Errorf("%w: busy", rtms.ErrInvalidState), code: http.StatusBadRequest},
		{name: "other", err: fmt.Errorf("boom"), code: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := newManager()
			mgr.startErr = tt.err
			if resp := do(setupRouter(mgr, nil), http.MethodPost, "/sessions/m1"); resp.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, resp.Code)
			}
		})
	}
}

func TestEventStream(t *testing.T) {
	mgr := newManager()
	mgr.sessions["m1"] = rtmsmodel.SessionInfo{ID: "s1", MeetingID: "m1", State: rtmsmodel.StateStreaming}
	mgr.events = []rtmsmodel.Event{
		{SessionID: "s1", MeetingID: "m1", Kind: rtmsmodel.KindTranscript, Text: "hello"},
		{SessionID: "s1", MeetingID: "m1", Kind: rtmsmodel.KindState, State: rtmsmodel.StateClosed},
	}

	srv := httptest.NewServer(setupRouter(mgr, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/m1/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request err: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	stream := string(body)
	for _, want := range []string{"event: ready", `"state":"streaming"`, "event: transcript", `"text":"hello"`, "event: state", `"state":"closed"`} {
		if !strings.Contains(stream, want) {
			t.Fatalf("stream missing %q:\n%s", want, stream)
		}
	}
	if strings.Index(stream, "event: transcript") > strings.Index(stream, "event: state") {
		t.Fatalf("events out of order:\n%s", stream)
	}
	if !mgr.unsubbed {
		t.Fatal("expected unsubscribe when the stream ends")
	}
}

func TestSummary(t *testing.T) {
	if resp := do(setupRouter(newManager(), nil), http.MethodGet, "/sessions/m1/summary"); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}

	summaries := fakeSummaries{"m1": {MeetingID: "m1", Source: insight.SourceHeuristic, Text: "2 transcript segments"}}
	r := setupRouter(newManager(), summaries)

	resp := do(r, http.MethodGet, "/sessions/m1/summary")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "2 transcript segments") {
		t.Fatalf("unexpected response %d %s", resp.Code, resp.Body.String())
	}
	if missing := do(r, http.MethodGet, "/sessions/m2/summary"); missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
}
