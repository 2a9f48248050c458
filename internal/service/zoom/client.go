package zoom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
)

// Client is a thin wrapper over the Zoom REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider
}

// NewClient creates a REST client authenticating through tokens.
func NewClient(httpClient *http.Client, baseURL string, tokens TokenProvider) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
	}
}

// Me returns the user owning the OAuth app.
func (c *Client) Me(ctx context.Context) (*zoommodel.User, error) {
	var user zoommodel.User
	if err := c.getJSON(ctx, "get user", "/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListMeetings lists userID's meetings. An empty meetingType uses the API default.
func (c *Client) ListMeetings(ctx context.Context, userID, meetingType string) (*zoommodel.MeetingList, error) {
	if userID == "" {
		userID = "me"
	}
	query := url.Values{}
	if meetingType != "" {
		query.Set("type", meetingType)
	}

	var list zoommodel.MeetingList
	path := "/users/" + url.PathEscape(userID) + "/meetings"
	if err := c.getJSON(ctx, "list meetings", path, query, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ListParticipants lists the participants of a live meeting.
func (c *Client) ListParticipants(ctx context.Context, meetingID string) (*zoommodel.ParticipantList, error) {
	query := url.Values{}
	query.Set("type", "live")

	var list zoommodel.ParticipantList
	path := "/metrics/meetings/" + url.PathEscape(meetingID) + "/participants"
	if err := c.getJSON(ctx, "list participants", path, query, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetRecordings fetches the cloud recordings of a meeting.
func (c *Client) GetRecordings(ctx context.Context, meetingID string) (*zoommodel.Recording, error) {
	var rec zoommodel.Recording
	path := "/meetings/" + url.PathEscape(meetingID) + "/recordings"
	if err := c.getJSON(ctx, "get recordings", path, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate()
		}
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
