package utils

import (
	"encoding/json"
	"fmt"
	"net/http"

	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
)

// SetupSSEHeaders prepares w for a Server-Sent Events stream.
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SendSSEEvent writes one named event and flushes it. It reports whether
// the write succeeded so callers can stop on a gone client.
func SendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		applog.Warnf("failed to marshal sse event data: %v", err)
		return false
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		applog.Debugf("failed to write sse event: %v", err)
		return false
	}
	flusher.Flush()
	return true
}

// SendSSEComment writes a keep-alive comment line.
func SendSSEComment(w http.ResponseWriter, flusher http.Flusher, comment string) bool {
	if _, err := fmt.Fprintf(w, ": %s\n\n", comment); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
