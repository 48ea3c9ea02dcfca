// ABOUTME: messagestore defines the append-only event persistence row shape and a codec
// ABOUTME: shared by the sqlite and jsonl adapters.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dipeo/dipeo-engine/domain"
	"github.com/dipeo/dipeo-engine/eventbus"
)

// Row is the persisted shape of one event: (execution_id, sequence_no
// PRIMARY, type, node_id?, ts, payload_json).
type Row struct {
	ExecutionID domain.ExecutionID `json:"execution_id"`
	SequenceNo  int64              `json:"sequence_no"`
	Type        eventbus.EventType `json:"type"`
	NodeID      domain.NodeID      `json:"node_id,omitempty"`
	Timestamp   time.Time          `json:"ts"`
	PayloadJSON []byte             `json:"payload_json"`
}

// RowFromEvent encodes an eventbus.Event into its persisted Row shape.
func RowFromEvent(ev eventbus.Event) (Row, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return Row{}, fmt.Errorf("store: marshal event payload: %w", err)
	}
	return Row{
		ExecutionID: ev.ExecutionID,
		SequenceNo:  ev.SequenceNo,
		Type:        ev.Type,
		NodeID:      ev.NodeID,
		Timestamp:   ev.Timestamp,
		PayloadJSON: payload,
	}, nil
}

// Event decodes a Row back into an eventbus.Event. Payload is decoded as
// a generic any; callers that know a specific event's payload shape
// re-decode PayloadJSON themselves if a typed struct is needed.
func (r Row) Event() eventbus.Event {
	var payload any
	_ = json.Unmarshal(r.PayloadJSON, &payload)
	return eventbus.Event{
		Type:        r.Type,
		ExecutionID: r.ExecutionID,
		NodeID:      r.NodeID,
		Timestamp:   r.Timestamp,
		Payload:     payload,
		SequenceNo:  r.SequenceNo,
	}
}

// timeLayout is the RFC3339 variant used for the sqlite ts column,
// keeping nanosecond precision so range scans by ts stay stable.
const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// encodeRow marshals a Row to the JSON blob that ports.MessageStore's
// payload parameter carries, used by both adapters so Append/Range agree
// on the wire shape regardless of backend.
func encodeRow(row Row) ([]byte, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("store: encode row: %w", err)
	}
	return data, nil
}

// decodeRow is encodeRow's inverse.
func decodeRow(data []byte) (Row, error) {
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return Row{}, fmt.Errorf("store: decode row: %w", err)
	}
	return row, nil
}

// EncodeEvent prepares the (executionID, sequenceNo, payload) triple that
// an ports.MessageStore.Append call expects for ev. Callers wiring the
// event bus to a store (e.g. the composition root) use this rather than
// hand-building the wire format.
func EncodeEvent(ev eventbus.Event) (domain.ExecutionID, int64, []byte, error) {
	row, err := RowFromEvent(ev)
	if err != nil {
		return "", 0, nil, err
	}
	data, err := encodeRow(row)
	if err != nil {
		return "", 0, nil, err
	}
	return ev.ExecutionID, ev.SequenceNo, data, nil
}

// DecodeEvent is EncodeEvent's inverse, used by callers reading back
// ports.MessageStore.Range results.
func DecodeEvent(payload []byte) (eventbus.Event, error) {
	row, err := decodeRow(payload)
	if err != nil {
		return eventbus.Event{}, err
	}
	return row.Event(), nil
}
