package rtms

import (
	"bytes"
	"encoding/json"
	"fmt"

	rtmsmodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/rtms"
)

// dispatchOrder is the precedence used when a message carries several keys.
var dispatchOrder = []rtmsmodel.Kind{
	rtmsmodel.KindVideo,
	rtmsmodel.KindAudio,
	rtmsmodel.KindTranscript,
	rtmsmodel.KindError,
}

// DecodeMessage parses one transport message. Anything other than a JSON
// object is a decode failure; objects without a known key decode as
// KindUnknown.
func DecodeMessage(data []byte) (rtmsmodel.InboundMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return rtmsmodel.InboundMessage{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if fields == nil {
		return rtmsmodel.InboundMessage{}, fmt.Errorf("%w: message is null", ErrDecode)
	}

	for _, kind := range dispatchOrder {
		raw, ok := fields[string(kind)]
		if !ok {
			continue
		}

		msg := rtmsmodel.InboundMessage{Kind: kind, Raw: raw}
		switch kind {
		case rtmsmodel.KindVideo, rtmsmodel.KindAudio:
			msg.Payload = payloadBytes(raw)
		default:
			msg.Text = payloadText(raw)
		}
		return msg, nil
	}

	return rtmsmodel.InboundMessage{Kind: rtmsmodel.KindUnknown, Raw: json.RawMessage(data)}, nil
}

// payloadBytes returns the contents of a JSON string, or the raw JSON text
// for any other value.
func payloadBytes(raw json.RawMessage) []byte {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s)
	}
	return bytes.TrimSpace(raw)
}

func payloadText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
