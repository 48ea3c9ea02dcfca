// ABOUTME: Manager implements the token-buffer/epoch/join-policy protocol (C3): the sole
// ABOUTME: mechanism by which engine readiness is determined and edge data is transferred.
package token

import (
	"sync"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
)

// Manager owns every edge's token queue for one execution. All methods
// are safe for concurrent use; mutation happens under a single internal
// lock with short, non-suspending critical sections. Events are never
// published while the lock is held.
type Manager struct {
	mu    sync.Mutex
	diag  *compiler.ExecutableDiagram
	queue map[domain.ArrowID][]Token
	epoch int

	// fireCount tracks how many times each node has successfully consumed
	// its inbound tokens, independent of the engine's own state tracker —
	// the FIRST_ONLY join policy needs it to decide which edges are
	// mandatory on a given firing (see joinpolicy.go).
	fireCount map[domain.NodeID]int
}

// NewManager creates a Manager bound to a compiled diagram, with no tokens
// queued and the epoch counter at 0.
func NewManager(d *compiler.ExecutableDiagram) *Manager {
	return &Manager{
		diag:      d,
		queue:     make(map[domain.ArrowID][]Token),
		fireCount: make(map[domain.NodeID]int),
	}
}

// CurrentEpoch returns the active epoch. Begins at 0.
func (m *Manager) CurrentEpoch() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// BeginEpoch advances to a new epoch and returns it. Tokens tagged with
// an epoch older than the new one are dropped rather than retained for
// replay.
func (m *Manager) BeginEpoch() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	for id, toks := range m.queue {
		kept := toks[:0]
		for _, t := range toks {
			if t.Epoch >= m.epoch {
				kept = append(kept, t)
			}
		}
		m.queue[id] = kept
	}
	return m.epoch
}

// Restore seeds the epoch counter and per-node fire counts from a
// checkpoint when resuming an interrupted execution. Must be called
// before any token is emitted.
func (m *Manager) Restore(epoch int, fireCounts map[domain.NodeID]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch = epoch
	for node, n := range fireCounts {
		m.fireCount[node] = n
	}
}

// FireCount reports how many times a node has successfully consumed its
// inbound tokens so far.
func (m *Manager) FireCount(node domain.NodeID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fireCount[node]
}

// HasNewInputs reports whether node's join predicate is currently
// satisfied by tokens at epoch or later.
func (m *Manager) HasNewInputs(node domain.NodeID, epoch int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isReadyLocked(node, epoch)
}

func (m *Manager) isReadyLocked(node domain.NodeID, epoch int) bool {
	exeNode, ok := m.diag.Node(node)
	if !ok {
		return false
	}
	incoming := m.diag.Incoming(node)
	if len(incoming) == 0 {
		return false
	}
	mandatory, optional := partitionEdges(exeNode.JoinPolicy, incoming, m.fireCount[node])
	return isSatisfied(mandatory, optional, func(e compiler.ExecutableEdge) bool {
		return m.hasTokenAtOrAfter(e.ID, epoch)
	})
}

func (m *Manager) hasTokenAtOrAfter(edge domain.ArrowID, epoch int) bool {
	for _, t := range m.queue[edge] {
		if t.Epoch >= epoch {
			return true
		}
	}
	return false
}

// ConsumeInbound atomically drains one token from every inbound edge that
// currently carries one, provided the node's join predicate is satisfied.
// Returns an empty map if the node is not ready. Keyed by edge ID rather
// than port name: more than one edge may target the same named input
// port (fan-in), and per-edge transform rules must still run on each
// arrival before the resolver merges them onto a single port — that
// edge-to-port reduction is the resolver's job, not the token manager's.
func (m *Manager) ConsumeInbound(node domain.NodeID) map[domain.ArrowID]domain.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	epoch := m.epoch
	if !m.isReadyLocked(node, epoch) {
		return map[domain.ArrowID]domain.Envelope{}
	}

	out := make(map[domain.ArrowID]domain.Envelope)
	for _, e := range m.diag.Incoming(node) {
		toks := m.queue[e.ID]
		if len(toks) == 0 {
			continue
		}
		out[e.ID] = toks[0].Envelope
		m.queue[e.ID] = toks[1:]
	}
	m.fireCount[node]++
	return out
}

// EmitOutputs pushes one token onto every outgoing edge whose source port
// matches a key in outputs.
func (m *Manager) EmitOutputs(node domain.NodeID, outputs map[string]domain.Envelope, epoch int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.diag.Outgoing(node) {
		env, ok := outputs[e.SourceOutputPort]
		if !ok {
			continue
		}
		m.queue[e.ID] = append(m.queue[e.ID], Token{Envelope: env, Epoch: epoch})
	}
}
