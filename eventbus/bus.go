// ABOUTME: Bus fans out events to subscribers without ever blocking the publisher.
// ABOUTME: A subscriber that falls behind its buffer is detached, never waited on.
package eventbus

import (
	"sync"

	"github.com/dipeo/dipeo-engine/domain"
)

// DefaultHighWaterMark is the per-subscriber buffer size above which a
// subscriber is detached rather than allowed to block the publisher.
const DefaultHighWaterMark = 4096

type subscriber struct {
	id       string
	ch       chan Event
	wildcard bool
	execID   domain.ExecutionID
}

// Bus is a process-wide, lock-protected fan-out point. Publication never
// blocks: a subscriber whose buffer is full is detached immediately
// rather than allowed to stall other subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	hwm         int
}

// NewBus constructs a Bus with the given per-subscriber buffer size. A
// hwm of 0 uses DefaultHighWaterMark.
func NewBus(hwm int) *Bus {
	if hwm <= 0 {
		hwm = DefaultHighWaterMark
	}
	return &Bus{subscribers: make(map[string]*subscriber), hwm: hwm}
}

// Subscribe registers a channel that receives only events for execID.
// The returned channel is closed on Unsubscribe or on detachment for
// falling behind.
func (b *Bus) Subscribe(id string, execID domain.ExecutionID) <-chan Event {
	return b.subscribe(id, execID, false)
}

// SubscribeAll registers a wildcard subscriber that receives every event
// regardless of execution (used by log sinks and the router's internal
// history recorder).
func (b *Bus) SubscribeAll(id string) <-chan Event {
	return b.subscribe(id, "", true)
}

func (b *Bus) subscribe(id string, execID domain.ExecutionID, wildcard bool) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.subscribers[id]; ok {
		close(old.ch)
	}
	sub := &subscriber{id: id, ch: make(chan Event, b.hwm), wildcard: wildcard, execID: execID}
	b.subscribers[id] = sub
	return sub.ch
}

// Unsubscribe removes and closes a subscriber's channel. Safe to call more
// than once or on an unknown id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}

// Publish delivers event to every matching subscriber. Delivery to each
// subscriber is non-blocking; a subscriber whose buffer is already full
// is detached, and a SUBSCRIBER_DROPPED event is published on its behalf
// (delivered to every remaining wildcard subscriber and every remaining
// subscriber of the same execution).
func (b *Bus) Publish(event Event) {
	var dropped []string

	b.mu.RLock()
	for id, sub := range b.subscribers {
		if !sub.wildcard && sub.execID != event.ExecutionID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			dropped = append(dropped, id)
		}
	}
	b.mu.RUnlock()

	if len(dropped) == 0 {
		return
	}

	b.mu.Lock()
	for _, id := range dropped {
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub.ch)
		}
	}
	b.mu.Unlock()

	for _, id := range dropped {
		b.Publish(Event{
			Type:        EventSubscriberDropped,
			ExecutionID: event.ExecutionID,
			Timestamp:   event.Timestamp,
			Payload:     map[string]any{"subscriber_id": id},
		})
	}
}
