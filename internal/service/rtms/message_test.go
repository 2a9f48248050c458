package rtms

import (
	"errors"
	"strings"
	"testing"

	rtmsmodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/rtms"
)

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		kind    rtmsmodel.Kind
		payload string
		text    string
	}{
		{name: "video string", input: `{"video":"aGVsbG8="}`, kind: rtmsmodel.KindVideo, payload: "aGVsbG8="},
		{name: "audio string", input: `{"audio":"AAEC"}`, kind: rtmsmodel.KindAudio, payload: "AAEC"},
		{name: "transcript", input: `{"transcript":"hello"}`, kind: rtmsmodel.KindTranscript, text: "hello"},
		{name: "transcript object", input: `{"transcript": {"text": "hi", "user": 1}}`, kind: rtmsmodel.KindTranscript, text: `{"text":"hi","user":1}`},
		{name: "error", input: `{"error":"rate limited"}`, kind: rtmsmodel.KindError, text: "rate limited"},
		{name: "video wins over transcript", input: `{"transcript":"t","video":"v"}`, kind: rtmsmodel.KindVideo, payload: "v"},
		{name: "audio wins over error", input: `{"error":"e","audio":"a"}`, kind: rtmsmodel.KindAudio, payload: "a"},
		{name: "unknown keys", input: `{"keepalive":true}`, kind: rtmsmodel.KindUnknown},
		{name: "empty object", input: `{}`, kind: rtmsmodel.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.input))
			if err != nil {
				t.Fatalf("DecodeMessage err: %v", err)
			}
			if msg.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, msg.Kind)
			}
			if string(msg.Payload) != tt.payload {
				t.Fatalf("expected payload %q, got %q", tt.payload, msg.Payload)
			}
			if msg.Text != tt.text {
				t.Fatalf("expected text %q, got %q", tt.text, msg.Text)
			}
		})
	}
}

func TestDecodeMessageRejectsNonObjects(t *testing.T) {
	for _, input := range []string{"not json", "null", `"video"`, `[{"video":"x"}]`, `42`, ``} {
		if _, err := DecodeMessage([]byte(input)); !errors.Is(err, ErrDecode) {
			t.Fatalf("input %q: expected ErrDecode, got %v", input, err)
		}
	}
}

func TestDecodeMessageKeepsLargeVideoPayload(t *testing.T) {
	frame := strings.Repeat("A", 500)
	msg, err := DecodeMessage([]byte(`{"video":"` + frame + `"}`))
	if err != nil {
		t.Fatalf("DecodeMessage err: %v", err)
	}
	if len(msg.Payload) != 500 {
		t.Fatalf("expected 500 bytes, got %d", len(msg.Payload))
	}
}
