package zoom

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
)

type staticTokens struct {
	token       zoommodel.AccessToken
	err         error
	calls       int
	invalidated int
}

func (s *staticTokens) Token(context.Context) (zoommodel.AccessToken, error) {
	s.calls++
	return s.token, s.err
}

func (s *staticTokens) Invalidate() { s.invalidated++ }

func TestFetchStreamTokenUsesGivenAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/rtms/meetings/m1/tokens" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
			t.Errorf("unexpected auth header %q", got)
		}
		_, _ = w.Write([]byte(`{"token":"stream-1"}`))
	}))
	defer srv.Close()

	tokens := &staticTokens{token: zoommodel.AccessToken{Value: "unused"}}
	ex := NewStreamTokenExchange(srv.Client(), srv.URL+"/v2/", tokens, nil)

	tok, err := ex.FetchStreamToken(context.Background(), zoommodel.AccessToken{Value: "access-1"}, "m1")
	if err != nil {
		t.Fatalf("FetchStreamToken err: %v", err)
	}
	if tok.Value != "stream-1" || tok.MeetingID != "m1" {
		t.Fatalf("unexpected token %+v", tok)
	}
	if tokens.calls != 0 {
		t.Fatal("provider must not be consulted when an access token is given")
	}
}

func TestFetchStreamTokenLazilyFetchesAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer lazy" {
			t.Errorf("unexpected auth header %q", got)
		}
		_, _ = w.Write([]byte(`{"token":"stream-2","expires_in":60}`))
	}))
	defer srv.Close()

	tokens := &staticTokens{token: zoommodel.AccessToken{Value: "lazy"}}
	ex := NewStreamTokenExchange(srv.Client(), srv.URL, tokens, nil)

	tok, err := ex.FetchStreamToken(context.Background(), zoommodel.AccessToken{}, "m2")
	if err != nil {
		t.Fatalf("FetchStreamToken err: %v", err)
	}
	if tokens.calls != 1 {
		t.Fatalf("expected one lazy fetch, got %d", tokens.calls)
	}
	if tok.ExpiresAt.IsZero() {
		t.Fatal("expected expiry from expires_in")
	}
}

func TestFetchStreamTokenMissingAccessToken(t *testing.T) {
	tokens := &staticTokens{err: &APIError{Op: "fetch access token", StatusCode: 401, kind: ErrCredential}}
	ex := NewStreamTokenExchange(http.DefaultClient, "http://127.0.0.1:0", tokens, nil)

	if _, err := ex.FetchStreamToken(context.Background(), zoommodel.AccessToken{}, "m1"); !errors.Is(err, ErrCredential) {
		t.Fatalf("expected ErrCredential, got %v", err)
	}
}

func TestFetchStreamTokenBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &staticTokens{}
	rec := &fakeRecorder{}
	ex := NewStreamTokenExchange(srv.Client(), srv.URL, tokens, rec)

	_, err := ex.FetchStreamToken(context.Background(), zoommodel.AccessToken{Value: "stale"}, "m1")
	if StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if tokens.invalidated != 1 {
		t.Fatal("expected access token invalidation on 401")
	}
	if len(rec.calls) != 1 || rec.calls[0].kind != "stream" || rec.calls[0].err == nil {
		t.Fatalf("unexpected recorder calls %+v", rec.calls)
	}
}

func TestFetchStreamTokenEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ex := NewStreamTokenExchange(srv.Client(), srv.URL, nil, nil)
	if _, err := ex.FetchStreamToken(context.Background(), zoommodel.AccessToken{Value: "a"}, "m1"); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func TestClientListMeetings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me":
			_, _ = w.Write([]byte(`{"id":"user-1","email":"host@example.com"}`))
		case "/users/user-1/meetings":
			if got := r.URL.Query().Get("type"); got != "live" {
				t.Errorf("unexpected type %q", got)
			}
			_, _ = w.Write([]byte(`{"page_size":30,"total_records":1,"meetings":[{"id":85746065,"topic":"Standup","type":2}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, &staticTokens{token: zoommodel.AccessToken{Value: "tok"}})

	me, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me err: %v", err)
	}
	list, err := client.ListMeetings(context.Background(), me.ID, zoommodel.MeetingTypeLive)
	if err != nil {
		t.Fatalf("ListMeetings err: %v", err)
	}
	if len(list.Meetings) != 1 || list.Meetings[0].ID != 85746065 || list.Meetings[0].Topic != "Standup" {
		t.Fatalf("unexpected meetings %+v", list.Meetings)
	}
}

func TestClientUnauthorizedInvalidatesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &staticTokens{token: zoommodel.AccessToken{Value: "tok"}}
	client := NewClient(srv.Client(), srv.URL, tokens)

	_, err := client.GetRecordings(context.Background(), "m1")
	if StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 error, got %v", err)
	}
	if tokens.invalidated != 1 {
		t.Fatalf("expected invalidation, got %d", tokens.invalidated)
	}
}
