// ABOUTME: Tests for the reference HTTP transport: SSE event streaming with replay,
// ABOUTME: log filtering, prompt responses, and cancellation of unknown executions.
package http

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo-engine/engine"
	"github.com/dipeo/dipeo-engine/eventbus"
	"github.com/dipeo/dipeo-engine/handler"
	"github.com/dipeo/dipeo-engine/resolve"
)

func newTestServer(t *testing.T) (*Server, *eventbus.Bus, *eventbus.Interactions) {
	t.Helper()
	registry := resolve.NewRegistry()
	registry.Freeze()
	eng := engine.NewEngine(engine.Config{
		Handlers: handler.NewRegistry(),
		Registry: registry,
	})
	bus := eventbus.NewBus(64)
	router := eventbus.NewRouter(bus, 16)
	prompts := eventbus.NewInteractions(bus)
	return NewServer(eng, router, prompts), bus, prompts
}

// waitForHistory gives the router's async history recorder a beat to
// absorb already-published events before a subscriber asks for replay.
func waitForHistory() {
	time.Sleep(50 * time.Millisecond)
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestEvents_ReplaysBufferedWindow(t *testing.T) {
	srv, bus, _ := newTestServer(t)

	bus.Publish(eventbus.Event{Type: eventbus.EventNodeStarted, ExecutionID: "exec-a", NodeID: "code", Timestamp: time.Now(), SequenceNo: 1})
	bus.Publish(eventbus.Event{Type: eventbus.EventNodeCompleted, ExecutionID: "exec-a", NodeID: "code", Timestamp: time.Now(), SequenceNo: 2})
	waitForHistory()

	ts := httptest.NewServer(srv)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/executions/exec-a/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	frame := readSSEFrame(t, reader)
	assert.Contains(t, frame, `"type":"NODE_STARTED"`)
	assert.Contains(t, frame, `"sequence_no":1`)

	frame = readSSEFrame(t, reader)
	assert.Contains(t, frame, `"type":"NODE_COMPLETED"`)
}

func TestLogs_FiltersToExecutionLogEvents(t *testing.T) {
	srv, bus, _ := newTestServer(t)

	bus.Publish(eventbus.Event{Type: eventbus.EventNodeStarted, ExecutionID: "exec-a", Timestamp: time.Now(), SequenceNo: 1})
	bus.Publish(eventbus.Event{Type: eventbus.EventExecutionLog, ExecutionID: "exec-a", Timestamp: time.Now(), Payload: "compiling", SequenceNo: 2})
	waitForHistory()

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/executions/exec-a/logs")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	frame := readSSEFrame(t, bufio.NewReader(resp.Body))
	assert.Contains(t, frame, `"type":"EXECUTION_LOG"`)
	assert.NotContains(t, frame, "NODE_STARTED")
}

func TestCancel_UnknownExecutionIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/executions/no-such/cancel", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPromptResponse_DeliversToPendingAsk(t *testing.T) {
	srv, _, prompts := newTestServer(t)

	answered := make(chan any, 1)
	go func() {
		answer, err := prompts.Ask(t.Context(), "exec-a", "gate", "proceed?")
		if err == nil {
			answered <- answer
		}
	}()

	// Wait for the prompt to be registered before responding.
	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/executions/exec-a/prompts/gate",
			strings.NewReader(`{"response":"go"}`)))
		return rec.Code == http.StatusAccepted
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case answer := <-answered:
		assert.Equal(t, "go", answer)
	case <-time.After(2 * time.Second):
		t.Fatal("prompt answer never delivered")
	}
}

func TestPromptResponse_NoPendingPromptIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/executions/exec-a/prompts/gate",
		strings.NewReader(`{"response":"go"}`)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// readSSEFrame reads one "id: ...\ndata: ...\n\n" frame and returns the
// data line.
func readSSEFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
		}
		if line == "" && data != "" {
			return data
		}
	}
}
