// ABOUTME: Router maps (execution_id, subscriber_id) subscriptions and replays a rolling
// ABOUTME: history window so late subscribers catch up.
package eventbus

import (
	"sync"

	"github.com/dipeo/dipeo-engine/domain"
)

// DefaultWindowSize bounds how many recent events per execution the
// router retains for replay to late subscribers.
const DefaultWindowSize = 256

// Router sits in front of a Bus, self-subscribing as a wildcard so that
// every published event is recorded into a per-execution rolling window
// without the publisher ever making a second call. Subscribers register
// through the Router (not the Bus directly) to get the replay window.
type Router struct {
	bus        *Bus
	windowSize int

	mu      sync.Mutex
	history map[domain.ExecutionID][]Event
}

// NewRouter constructs a Router bound to bus and starts its internal
// history recorder. windowSize of 0 uses DefaultWindowSize.
func NewRouter(bus *Bus, windowSize int) *Router {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	r := &Router{bus: bus, windowSize: windowSize, history: make(map[domain.ExecutionID][]Event)}
	go r.record(bus.SubscribeAll("router:history"))
	return r
}

func (r *Router) record(events <-chan Event) {
	for ev := range events {
		if ev.ExecutionID == "" {
			continue
		}
		r.mu.Lock()
		buf := append(r.history[ev.ExecutionID], ev)
		if len(buf) > r.windowSize {
			buf = buf[len(buf)-r.windowSize:]
		}
		r.history[ev.ExecutionID] = buf
		r.mu.Unlock()
	}
}

// Subscribe registers subscriberID for execID's live events and returns
// both a replay of the buffered window (oldest first, possibly empty)
// and the live channel for events from this point forward. The replay
// snapshot and the live channel may briefly overlap by a few events;
// subscribers use SequenceNo to de-duplicate, not channel identity.
func (r *Router) Subscribe(subscriberID string, execID domain.ExecutionID) ([]Event, <-chan Event) {
	r.mu.Lock()
	replay := append([]Event(nil), r.history[execID]...)
	r.mu.Unlock()

	return replay, r.bus.Subscribe(subscriberID, execID)
}

// SubscribeWildcard registers subscriberID for every execution's events
// (log sinks, process-wide observers).
func (r *Router) SubscribeWildcard(subscriberID string) <-chan Event {
	return r.bus.SubscribeAll(subscriberID)
}

// Unsubscribe removes subscriberID from the underlying bus.
func (r *Router) Unsubscribe(subscriberID string) {
	r.bus.Unsubscribe(subscriberID)
}
