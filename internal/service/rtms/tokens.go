package rtms

import (
	"context"
	"time"

	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
)

// StreamTokenFetcher is the session token exchange contract.
type StreamTokenFetcher interface {
	FetchStreamToken(ctx context.Context, access zoommodel.AccessToken, meetingID string) (zoommodel.StreamToken, error)
}

// tokenSlot holds at most one stream token. A token for another meeting is
// discarded before a new one is fetched.
type tokenSlot struct {
	token zoommodel.StreamToken
	now   func() time.Time
}

func (t *tokenSlot) resolve(ctx context.Context, fetcher StreamTokenFetcher, meetingID string) (zoommodel.StreamToken, error) {
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	if t.token.UsableFor(meetingID, now()) {
		return t.token, nil
	}

	t.token = zoommodel.StreamToken{}
	if fetcher == nil {
		return zoommodel.StreamToken{}, ErrTokenMissing
	}

	// An empty access token lets the exchange resolve one lazily.
	tok, err := fetcher.FetchStreamToken(ctx, zoommodel.AccessToken{}, meetingID)
	if err != nil {
		return zoommodel.StreamToken{}, err
	}
	if tok.Value == "" {
		return zoommodel.StreamToken{}, ErrTokenMissing
	}
	if tok.MeetingID == "" {
		tok.MeetingID = meetingID
	}
	t.token = tok
	return tok, nil
}

func (t *tokenSlot) current() zoommodel.StreamToken {
	return t.token
}
