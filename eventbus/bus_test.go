// ABOUTME: Tests for the event bus: per-execution filtering, wildcard fan-out, and the
// ABOUTME: high-water-mark detach policy that keeps publication non-blocking.
package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo-engine/domain"
)

func event(t EventType, execID domain.ExecutionID, seq int64) Event {
	return Event{Type: t, ExecutionID: execID, Timestamp: time.Now(), SequenceNo: seq}
}

func TestBus_SubscriberReceivesOnlyItsExecution(t *testing.T) {
	bus := NewBus(8)
	ch := bus.Subscribe("sub-1", "exec-a")
	defer bus.Unsubscribe("sub-1")

	bus.Publish(event(EventNodeStarted, "exec-a", 1))
	bus.Publish(event(EventNodeStarted, "exec-b", 1))
	bus.Publish(event(EventNodeCompleted, "exec-a", 2))

	got := <-ch
	assert.Equal(t, domain.ExecutionID("exec-a"), got.ExecutionID)
	assert.Equal(t, int64(1), got.SequenceNo)

	got = <-ch
	assert.Equal(t, int64(2), got.SequenceNo)

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for %s", ev.ExecutionID)
	default:
	}
}

func TestBus_WildcardSeesEverything(t *testing.T) {
	bus := NewBus(8)
	ch := bus.SubscribeAll("logsink")
	defer bus.Unsubscribe("logsink")

	bus.Publish(event(EventNodeStarted, "exec-a", 1))
	bus.Publish(event(EventNodeStarted, "exec-b", 1))

	assert.Equal(t, domain.ExecutionID("exec-a"), (<-ch).ExecutionID)
	assert.Equal(t, domain.ExecutionID("exec-b"), (<-ch).ExecutionID)
}

func TestBus_SlowSubscriberIsDetachedNotBlocking(t *testing.T) {
	bus := NewBus(2)
	slow := bus.Subscribe("slow", "exec-a")
	healthy := bus.SubscribeAll("healthy")
	defer bus.Unsubscribe("healthy")

	// Fill slow's buffer (2), then overflow it; Publish must not block.
	// The healthy subscriber keeps up by draining after every publish.
	var sawDrop bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= 4; i++ {
			bus.Publish(event(EventNodeStarted, "exec-a", i))
			for len(healthy) > 0 {
				if ev := <-healthy; ev.Type == EventSubscriberDropped {
					sawDrop = true
				}
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// The slow channel was closed on detach after its buffered events.
	var received int
	for range slow {
		received++
	}
	assert.Equal(t, 2, received)

	// The healthy subscriber saw a SUBSCRIBER_DROPPED diagnostic.
	assert.True(t, sawDrop)
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus(4)
	bus.Subscribe("sub", "exec-a")
	bus.Unsubscribe("sub")
	bus.Unsubscribe("sub")
	bus.Unsubscribe("never-registered")
}

func TestRouter_ReplaysWindowToLateSubscriber(t *testing.T) {
	bus := NewBus(16)
	router := NewRouter(bus, 8)

	for i := int64(1); i <= 3; i++ {
		bus.Publish(event(EventNodeStarted, "exec-a", i))
	}
	// The router's history recorder runs on its own goroutine; wait for
	// it to absorb the published events.
	require.Eventually(t, func() bool {
		replay, _ := router.Subscribe("probe", "exec-a")
		router.Unsubscribe("probe")
		return len(replay) == 3
	}, 2*time.Second, 10*time.Millisecond)

	replay, live := router.Subscribe("late", "exec-a")
	defer router.Unsubscribe("late")

	require.Len(t, replay, 3)
	assert.Equal(t, int64(1), replay[0].SequenceNo)
	assert.Equal(t, int64(3), replay[2].SequenceNo)

	bus.Publish(event(EventNodeCompleted, "exec-a", 4))
	select {
	case ev := <-live:
		assert.Equal(t, int64(4), ev.SequenceNo)
	case <-time.After(2 * time.Second):
		t.Fatal("live event not delivered")
	}
}

func TestRouter_WindowIsBounded(t *testing.T) {
	bus := NewBus(64)
	router := NewRouter(bus, 4)

	for i := int64(1); i <= 10; i++ {
		bus.Publish(event(EventNodeStarted, "exec-a", i))
	}

	require.Eventually(t, func() bool {
		replay, _ := router.Subscribe("probe", "exec-a")
		router.Unsubscribe("probe")
		return len(replay) == 4 && replay[0].SequenceNo == 7
	}, 2*time.Second, 10*time.Millisecond, "window should retain only the last 4 events")
}

func TestLogSink_MarkdownAndHTML(t *testing.T) {
	sink := NewLogSink("exec-a")
	sink.Record(Event{Type: EventExecutionStarted, ExecutionID: "exec-a"})
	sink.Record(Event{Type: EventNodeStarted, ExecutionID: "exec-a", NodeID: "code"})
	sink.Record(Event{Type: EventNodeCompleted, ExecutionID: "exec-a", NodeID: "code"})
	sink.Record(Event{Type: EventExecutionCompleted, ExecutionID: "exec-a"})

	md := sink.Markdown()
	assert.Contains(t, md, "# Execution exec-a")
	assert.Contains(t, md, "**code** completed")

	html, err := sink.HTML()
	require.NoError(t, err)
	assert.Contains(t, html, "<strong>code</strong>")
}

func TestInteractions_AskAndRespond(t *testing.T) {
	bus := NewBus(16)
	prompts := NewInteractions(bus)

	events := bus.SubscribeAll("observer")
	defer bus.Unsubscribe("observer")

	type askResult struct {
		answer any
		err    error
	}
	resultCh := make(chan askResult, 1)
	go func() {
		answer, err := prompts.Ask(t.Context(), "exec-a", "gate", "continue?")
		resultCh <- askResult{answer, err}
	}()

	// Wait for the prompt event, then answer it.
	var prompted bool
	for !prompted {
		select {
		case ev := <-events:
			prompted = ev.Type == EventInteractivePrompt
		case <-time.After(2 * time.Second):
			t.Fatal("no INTERACTIVE_PROMPT published")
		}
	}
	require.True(t, prompts.Respond("exec-a", "gate", "yes"))

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		assert.Equal(t, "yes", res.answer)
	case <-time.After(2 * time.Second):
		t.Fatal("Ask did not return after Respond")
	}
}

func TestInteractions_RespondWithoutPendingPrompt(t *testing.T) {
	prompts := NewInteractions(NewBus(4))
	assert.False(t, prompts.Respond("exec-a", "gate", "yes"))
}

func TestInteractions_AskHonorsContextCancellation(t *testing.T) {
	prompts := NewInteractions(NewBus(4))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err := prompts.Ask(ctx, "exec-a", "gate", "anyone there?")
	assert.Error(t, err)
}
