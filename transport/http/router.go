// ABOUTME: chi-based HTTP transport exposing the execution subscription API over the
// ABOUTME: event router: SSE event streams, log streams, prompts, and cancellation.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dipeo/dipeo-engine/domain"
	"github.com/dipeo/dipeo-engine/engine"
	"github.com/dipeo/dipeo-engine/eventbus"
)

// Server exposes the execution subscription API over HTTP: live event
// streaming (SSE), a filtered execution-log stream, and cancellation.
// Concrete diagram compilation and execution kickoff are out of this
// transport's scope; callers start executions through engine.Engine
// directly and then point clients at this server to observe them.
type Server struct {
	router  *chi.Mux
	eng     *engine.Engine
	events  *eventbus.Router
	prompts *eventbus.Interactions
}

// NewServer builds the chi router wiring eng's cancellation and events'
// subscription/replay behind the routes below. prompts may be nil when
// the deployment has no interactive nodes.
func NewServer(eng *engine.Engine, events *eventbus.Router, prompts *eventbus.Interactions) *Server {
	s := &Server{eng: eng, events: events, prompts: prompts}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/executions/{executionID}", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Get("/logs", s.handleLogs)
		r.Post("/cancel", s.handleCancel)
		r.Post("/prompts/{nodeID}", s.handlePromptResponse)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleEvents streams every event for one execution: a replay of the
// router's buffered window followed by live events, so late subscribers
// catch up.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	execID := domain.ExecutionID(chi.URLParam(r, "executionID"))
	subID := "http:" + string(execID) + ":events"
	replay, live := s.events.Subscribe(subID, execID)
	defer s.events.Unsubscribe(subID)

	s.stream(w, r, replay, live, nil)
}

// handleLogs streams only EXECUTION_LOG events for one execution.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	execID := domain.ExecutionID(chi.URLParam(r, "executionID"))
	subID := "http:" + string(execID) + ":logs"
	replay, live := s.events.Subscribe(subID, execID)
	defer s.events.Unsubscribe(subID)

	filter := func(ev eventbus.Event) bool { return ev.Type == eventbus.EventExecutionLog }
	s.stream(w, r, replay, live, filter)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, replay []eventbus.Event, live <-chan eventbus.Event, filter func(eventbus.Event) bool) {
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for _, ev := range replay {
		if filter != nil && !filter(ev) {
			continue
		}
		if err := writeSSE(w, flusher, ev); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-live:
			if !ok {
				return
			}
			if filter != nil && !filter(ev) {
				continue
			}
			if err := writeSSE(w, flusher, ev); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// handlePromptResponse delivers a human answer to an outstanding
// INTERACTIVE_PROMPT, completing the interactive-prompt round-trip.
func (s *Server) handlePromptResponse(w http.ResponseWriter, r *http.Request) {
	if s.prompts == nil {
		http.Error(w, "interactive prompts not enabled", http.StatusNotFound)
		return
	}
	execID := domain.ExecutionID(chi.URLParam(r, "executionID"))
	nodeID := domain.NodeID(chi.URLParam(r, "nodeID"))

	var body struct {
		Response any `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	if !s.prompts.Respond(execID, nodeID, body.Response) {
		http.Error(w, "no pending prompt for that node", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleCancel requests cooperative cancellation of a running execution.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	execID := domain.ExecutionID(chi.URLParam(r, "executionID"))
	if !s.eng.Cancel(execID) {
		http.Error(w, "no such running execution", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
