package rtms

import "errors"

var (
	// ErrTokenMissing means no stream token could be obtained for the meeting.
	ErrTokenMissing = errors.New("rtms: no usable stream token")
	// ErrHandshake means the transport connection was rejected.
	ErrHandshake = errors.New("rtms: websocket handshake failed")
	// ErrDecode means an inbound message was not a JSON object.
	ErrDecode = errors.New("rtms: undecodable message")
	// ErrSink wraps failures raised by the video frame sink.
	ErrSink = errors.New("rtms: frame sink failed")
	// ErrInvalidState is returned when an operation is not valid in the current state.
	ErrInvalidState = errors.New("rtms: invalid session state")

	ErrSessionExists   = errors.New("rtms: session already running for meeting")
	ErrSessionNotFound = errors.New("rtms: session not found")
)
