package zoom

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Webhook event names handled by the service.
const (
	EventURLValidation      = "endpoint.url_validation"
	EventMeetingStarted     = "meeting.started"
	EventRecordingCompleted = "recording.completed"
)

// WebhookEvent is the envelope of every inbound webhook notification.
type WebhookEvent struct {
	Event   string          `json:"event"`
	EventTS int64           `json:"event_ts,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// URLValidationPayload is the payload of endpoint.url_validation.
type URLValidationPayload struct {
	PlainToken string `json:"plainToken"`
}

// URLValidationResponse echoes the plain token alongside its HMAC.
type URLValidationResponse struct {
	PlainToken     string `json:"plainToken"`
	EncryptedToken string `json:"encryptedToken"`
}

// MeetingPayload is the payload shape shared by meeting and recording events.
type MeetingPayload struct {
	AccountID string        `json:"account_id,omitempty"`
	Object    MeetingObject `json:"object"`
}

// MeetingObject carries the meeting the event refers to.
type MeetingObject struct {
	ID             FlexibleID      `json:"id"`
	UUID           string          `json:"uuid,omitempty"`
	Topic          string          `json:"topic,omitempty"`
	HostID         string          `json:"host_id,omitempty"`
	RecordingFiles []RecordingFile `json:"recording_files,omitempty"`
}

// FlexibleID accepts meeting identifiers sent either as JSON numbers or strings.
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = FlexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("meeting id must be string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("meeting id %s is not an integer: %w", n, err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// String returns the identifier as text.
func (id FlexibleID) String() string {
	return string(id)
}
