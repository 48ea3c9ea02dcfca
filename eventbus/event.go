// ABOUTME: Event is the typed message the bus fans out; EventType enumerates the taxonomy.
package eventbus

import (
	"time"

	"github.com/dipeo/dipeo-engine/domain"
)

// EventType enumerates the execution event taxonomy.
type EventType string

const (
	EventExecutionStarted    EventType = "EXECUTION_STARTED"
	EventExecutionCompleted  EventType = "EXECUTION_COMPLETED"
	EventExecutionError      EventType = "EXECUTION_ERROR"
	EventExecutionAborted    EventType = "EXECUTION_ABORTED"
	EventNodeStarted         EventType = "NODE_STARTED"
	EventNodeCompleted       EventType = "NODE_COMPLETED"
	EventNodeError           EventType = "NODE_ERROR"
	EventNodeOutput          EventType = "NODE_OUTPUT"
	EventExecutionLog        EventType = "EXECUTION_LOG"
	EventInteractivePrompt   EventType = "INTERACTIVE_PROMPT"
	EventInteractiveResponse EventType = "INTERACTIVE_RESPONSE"
	EventSubscriberDropped   EventType = "SUBSCRIBER_DROPPED"
)

// Event is the shape broadcast to every subscriber. SequenceNo is strictly
// increasing per execution so a reconnecting subscriber can detect gaps.
type Event struct {
	Type        EventType
	ExecutionID domain.ExecutionID
	NodeID      domain.NodeID
	Timestamp   time.Time
	Payload     any
	SequenceNo  int64
}
