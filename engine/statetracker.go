// ABOUTME: StateTracker observes node transitions for the UI/event bus; it never gates
// ABOUTME: scheduling — only token presence does.
package engine

import (
	"sync"
	"time"

	"github.com/dipeo/dipeo-engine/domain"
)

// StateTracker maintains NodeExecutionState per node for one execution.
// Safe for concurrent use.
type StateTracker struct {
	mu     sync.RWMutex
	states map[domain.NodeID]*domain.NodeExecutionState
}

// NewStateTracker returns a tracker with every node initialized to PENDING.
func NewStateTracker(nodeIDs []domain.NodeID) *StateTracker {
	states := make(map[domain.NodeID]*domain.NodeExecutionState, len(nodeIDs))
	for _, id := range nodeIDs {
		states[id] = &domain.NodeExecutionState{Status: domain.NodeStatusPending}
	}
	return &StateTracker{states: states}
}

// Get returns a copy of the current state for node. Returns the zero value
// if the node is unknown.
func (t *StateTracker) Get(node domain.NodeID) domain.NodeExecutionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[node]; ok {
		return *s
	}
	return domain.NodeExecutionState{}
}

// TransitionToRunning marks node RUNNING in the given epoch and bumps its
// execution count.
func (t *StateTracker) TransitionToRunning(node domain.NodeID, epoch int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stateFor(node)
	now := time.Now()
	s.Status = domain.NodeStatusRunning
	s.StartedAt = &now
	s.Epoch = epoch
	s.ExecutionCount++
}

// TransitionToCompleted marks node COMPLETED with its last output.
func (t *StateTracker) TransitionToCompleted(node domain.NodeID, output domain.Envelope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stateFor(node)
	now := time.Now()
	s.Status = domain.NodeStatusCompleted
	s.EndedAt = &now
	s.LastOutput = &output
	s.Error = nil
}

// TransitionToFailed marks node FAILED with the triggering error.
func (t *StateTracker) TransitionToFailed(node domain.NodeID, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stateFor(node)
	now := time.Now()
	s.Status = domain.NodeStatusFailed
	s.EndedAt = &now
	s.Error = err
}

// TransitionToSkipped marks node SKIPPED. reason is not retained on the
// state, and no event is emitted for the skip.
func (t *StateTracker) TransitionToSkipped(node domain.NodeID, _ string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stateFor(node)
	now := time.Now()
	s.Status = domain.NodeStatusSkipped
	s.EndedAt = &now
}

// TransitionToMaxIter marks node MAXITER_REACHED; it will no longer be
// dispatched even if further tokens arrive.
func (t *StateTracker) TransitionToMaxIter(node domain.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stateFor(node)
	now := time.Now()
	s.Status = domain.NodeStatusMaxIterations
	s.EndedAt = &now
}

// TransitionToAborted marks node ABORTED on cancellation.
func (t *StateTracker) TransitionToAborted(node domain.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stateFor(node)
	now := time.Now()
	s.Status = domain.NodeStatusAborted
	s.EndedAt = &now
}

// Restore seeds a node's status and execution count from a checkpoint.
func (t *StateTracker) Restore(node domain.NodeID, status domain.NodeStatus, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stateFor(node)
	s.Status = status
	s.ExecutionCount = count
}

// ExecutionCount returns how many times node has fired so far.
func (t *StateTracker) ExecutionCount(node domain.NodeID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[node]; ok {
		return s.ExecutionCount
	}
	return 0
}

// IsTerminal reports whether node is in a status that will never dispatch
// again (MAXITER_REACHED or ABORTED).
func (t *StateTracker) IsTerminal(node domain.NodeID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[node]; ok {
		return s.Status == domain.NodeStatusMaxIterations || s.Status == domain.NodeStatusAborted
	}
	return false
}

// SnapshotAll returns a copy of every node's current state.
func (t *StateTracker) SnapshotAll() map[domain.NodeID]domain.NodeExecutionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[domain.NodeID]domain.NodeExecutionState, len(t.states))
	for id, s := range t.states {
		out[id] = *s
	}
	return out
}

// FailedNodes returns every node currently in FAILED status, in map
// iteration order (callers needing determinism should sort the result).
func (t *StateTracker) FailedNodes() []domain.NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.NodeID
	for id, s := range t.states {
		if s.Status == domain.NodeStatusFailed {
			out = append(out, id)
		}
	}
	return out
}

func (t *StateTracker) stateFor(node domain.NodeID) *domain.NodeExecutionState {
	s, ok := t.states[node]
	if !ok {
		s = &domain.NodeExecutionState{}
		t.states[node] = s
	}
	return s
}
