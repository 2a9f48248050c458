package rtms

import (
	"encoding/json"
	"time"
)

// Kind discriminates inbound media stream messages.
type Kind string

const (
	KindVideo      Kind = "video"
	KindAudio      Kind = "audio"
	KindTranscript Kind = "transcript"
	KindError      Kind = "error"
	KindUnknown    Kind = "unknown"
)

// InboundMessage is one decoded transport message. Payload holds the raw
// value bytes for video and audio; Text holds transcript or error text.
type InboundMessage struct {
	Kind    Kind
	Payload []byte
	Text    string
	Raw     json.RawMessage
}

// StreamSpec names one stream kind to subscribe to.
type StreamSpec struct {
	Type    Kind              `json:"type" yaml:"type"`
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// SubscribeRequest is the first message written after the handshake.
type SubscribeRequest struct {
	Action  string       `json:"action"`
	Streams []StreamSpec `json:"streams"`
}

// DefaultStreams subscribes to high quality video plus audio and transcripts.
func DefaultStreams() []StreamSpec {
	return []StreamSpec{
		{Type: KindVideo, Options: map[string]string{"quality": "high"}},
		{Type: KindAudio},
		{Type: KindTranscript},
	}
}

// Event is an observation published by a running session.
type Event struct {
	SessionID string    `json:"session_id"`
	MeetingID string    `json:"meeting_id"`
	Kind      Kind      `json:"kind"`
	Size      int       `json:"size,omitempty"`
	Text      string    `json:"text,omitempty"`
	State     State     `json:"state,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// KindState marks events that report a lifecycle change rather than media.
const KindState Kind = "state"

// SessionInfo summarises a session for listings.
type SessionInfo struct {
	ID        string    `json:"id"`
	MeetingID string    `json:"meeting_id"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Frames    int64     `json:"frames"`
	Messages  int64     `json:"messages"`
}
