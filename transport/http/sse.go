// ABOUTME: writeSSE formats one eventbus.Event as a Server-Sent Events frame and
// ABOUTME: flushes it, tagging the frame id with the event's sequence number.
package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dipeo/dipeo-engine/eventbus"
)

// sseEventPayload is the wire shape streamed to subscribers.
type sseEventPayload struct {
	Type        eventbus.EventType `json:"type"`
	ExecutionID string             `json:"execution_id"`
	NodeID      string             `json:"node_id,omitempty"`
	Timestamp   string             `json:"timestamp"`
	Payload     any                `json:"payload,omitempty"`
	SequenceNo  int64              `json:"sequence_no"`
}

// writeSSE writes ev as one "data: <json>\n\n" frame tagged with its
// sequence number as the SSE id, per the W3C EventSource framing.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev eventbus.Event) error {
	payload := sseEventPayload{
		Type:        ev.Type,
		ExecutionID: string(ev.ExecutionID),
		NodeID:      string(ev.NodeID),
		Timestamp:   ev.Timestamp.Format("2006-01-02T15:04:05.999999999Z07:00"),
		Payload:     ev.Payload,
		SequenceNo:  ev.SequenceNo,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("transport/http: marshal sse event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.SequenceNo, data); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// setSSEHeaders marks the response as a Server-Sent Events stream.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}
