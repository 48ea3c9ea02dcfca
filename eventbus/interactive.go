// ABOUTME: Interactions brokers the interactive-prompt round-trip: a prompt event out, a
// ABOUTME: blocking wait for the matching response delivered through a paired channel.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dipeo/dipeo-engine/domain"
)

type promptKey struct {
	execID domain.ExecutionID
	nodeID domain.NodeID
}

// Interactions implements the interactive_prompt surface: Ask publishes an
// INTERACTIVE_PROMPT event and blocks until Respond delivers the matching
// answer (or ctx expires). One outstanding prompt per (execution, node)
// pair; a second Ask for the same pair fails rather than queueing.
type Interactions struct {
	bus *Bus

	mu      sync.Mutex
	pending map[promptKey]chan any
}

// NewInteractions constructs a broker publishing through bus.
func NewInteractions(bus *Bus) *Interactions {
	return &Interactions{bus: bus, pending: make(map[promptKey]chan any)}
}

// Ask publishes an INTERACTIVE_PROMPT event for (execID, nodeID) and waits
// for the answer delivered via Respond.
func (i *Interactions) Ask(ctx context.Context, execID domain.ExecutionID, nodeID domain.NodeID, prompt string) (any, error) {
	key := promptKey{execID: execID, nodeID: nodeID}
	ch := make(chan any, 1)

	i.mu.Lock()
	if _, exists := i.pending[key]; exists {
		i.mu.Unlock()
		return nil, fmt.Errorf("eventbus: prompt already pending for node %q in execution %q", nodeID, execID)
	}
	i.pending[key] = ch
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		delete(i.pending, key)
		i.mu.Unlock()
	}()

	i.bus.Publish(Event{
		Type:        EventInteractivePrompt,
		ExecutionID: execID,
		NodeID:      nodeID,
		Timestamp:   time.Now(),
		Payload:     map[string]any{"prompt": prompt},
	})

	select {
	case answer := <-ch:
		return answer, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Respond delivers the answer for an outstanding prompt and publishes the
// INTERACTIVE_RESPONSE event. Reports false when no prompt is pending for
// the pair.
func (i *Interactions) Respond(execID domain.ExecutionID, nodeID domain.NodeID, answer any) bool {
	key := promptKey{execID: execID, nodeID: nodeID}

	i.mu.Lock()
	ch, ok := i.pending[key]
	if ok {
		delete(i.pending, key)
	}
	i.mu.Unlock()
	if !ok {
		return false
	}

	ch <- answer
	i.bus.Publish(Event{
		Type:        EventInteractiveResponse,
		ExecutionID: execID,
		NodeID:      nodeID,
		Timestamp:   time.Now(),
		Payload:     map[string]any{"response": answer},
	})
	return true
}
