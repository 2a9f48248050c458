package zoom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
)

// StreamTokenExchange trades an access token for a meeting-scoped stream token.
type StreamTokenExchange struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider
	recorder   TokenRecorder
	now        func() time.Time
	logger     *logrus.Entry
}

type streamTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// NewStreamTokenExchange creates an exchange against the REST base URL.
// tokens supplies access tokens when the caller has none.
func NewStreamTokenExchange(httpClient *http.Client, baseURL string, tokens TokenProvider, recorder TokenRecorder) *StreamTokenExchange {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &StreamTokenExchange{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		recorder:   recorder,
		now:        time.Now,
		logger:     applog.WithComponent("zoom-stream-token"),
	}
}

// FetchStreamToken obtains a stream token for meetingID. An empty access token
// is resolved through the token provider first.
func (e *StreamTokenExchange) FetchStreamToken(ctx context.Context, access zoommodel.AccessToken, meetingID string) (token zoommodel.StreamToken, err error) {
	if strings.TrimSpace(meetingID) == "" {
		return zoommodel.StreamToken{}, fmt.Errorf("meeting id is required")
	}

	if access.Empty() {
		if e.tokens == nil {
			return zoommodel.StreamToken{}, fmt.Errorf("%w: no access token available", ErrCredential)
		}
		access, err = e.tokens.Token(ctx)
		if err != nil {
			return zoommodel.StreamToken{}, err
		}
	}

	defer func() {
		if e.recorder != nil {
			e.recorder.RecordTokenRequest("stream", err)
		}
	}()

	endpoint := fmt.Sprintf("%s/rtms/meetings/%s/tokens", e.baseURL, url.PathEscape(meetingID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return zoommodel.StreamToken{}, fmt.Errorf("build stream token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+access.Value)
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return zoommodel.StreamToken{}, fmt.Errorf("fetch stream token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readErrorBody(resp.Body)
		e.logger.WithFields(logrus.Fields{
			"meeting_id": meetingID,
			"status":     resp.StatusCode,
		}).Errorf("failed to get stream token: %s", body)
		if resp.StatusCode == http.StatusUnauthorized && e.tokens != nil {
			e.tokens.Invalidate()
		}
		return zoommodel.StreamToken{}, &APIError{Op: "fetch stream token", StatusCode: resp.StatusCode, Body: body}
	}

	var payload streamTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return zoommodel.StreamToken{}, fmt.Errorf("decode stream token response: %w", err)
	}
	if payload.Token == "" {
		return zoommodel.StreamToken{}, ErrEmptyToken
	}

	token = zoommodel.StreamToken{MeetingID: meetingID, Value: payload.Token}
	if payload.ExpiresIn > 0 {
		token.ExpiresAt = e.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return token, nil
}
