package zoom

import (
	"strings"
	"time"
)

// Credential identifies a Server-to-Server OAuth app.
type Credential struct {
	AccountID    string
	ClientID     string
	ClientSecret string
}

// Valid reports whether every field is present.
func (c Credential) Valid() bool {
	return strings.TrimSpace(c.AccountID) != "" &&
		strings.TrimSpace(c.ClientID) != "" &&
		strings.TrimSpace(c.ClientSecret) != ""
}

// AccessToken is a bearer token for the Zoom REST API.
type AccessToken struct {
	Value     string    `json:"access_token"`
	TokenType string    `json:"token_type,omitempty"`
	Scope     string    `json:"scope,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Empty reports whether no bearer value is held.
func (t AccessToken) Empty() bool {
	return t.Value == ""
}

// ExpiredAt reports whether the token is unusable at now, treating tokens
// that expire within skew as already expired. A zero ExpiresAt never expires.
func (t AccessToken) ExpiredAt(now time.Time, skew time.Duration) bool {
	if t.Empty() {
		return true
	}
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(t.ExpiresAt)
}

// StreamToken is a bearer string scoped to a single meeting's media stream.
type StreamToken struct {
	MeetingID string    `json:"meeting_id"`
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// UsableFor reports whether the token may be reused for meetingID at now.
func (t StreamToken) UsableFor(meetingID string, now time.Time) bool {
	if t.Value == "" || t.MeetingID != meetingID {
		return false
	}
	return t.ExpiresAt.IsZero() || now.Before(t.ExpiresAt)
}
