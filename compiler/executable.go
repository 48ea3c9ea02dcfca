// ABOUTME: ExecutableDiagram is the compiler's output: immutable, indexed, ready for the engine.
// ABOUTME: ExecutableEdge carries the compile-time-resolved plan for one arrow.
package compiler

import "github.com/dipeo/dipeo-engine/domain"

// RuntimeHints are compile-time-derived flags the engine and resolver use
// to avoid re-deriving per-firing facts about an edge.
type RuntimeHints struct {
	IsConditionalBranch bool // source or target handle is condtrue/condfalse
	IsFirstOnly         bool // PersonJob first-input edge
	IsConversationState bool // content_type == conversation_state
}

// ExecutableEdge is the compile-time-resolved plan for one domain arrow.
type ExecutableEdge struct {
	ID               domain.ArrowID
	SourceNode       domain.NodeID
	TargetNode       domain.NodeID
	SourceOutputPort string
	TargetInputPort  string
	ContentType      domain.ContentType
	TransformRules   []TransformRule
	RuntimeHints     RuntimeHints
}

// ExecutableNode is a node with its NODE_FACTORY-resolved typed configuration.
type ExecutableNode struct {
	ID         domain.NodeID
	Type       domain.NodeType
	Config     NodeConfig
	JoinPolicy JoinPolicy
}

// JoinPolicy names the readiness predicate applied to a node's inbound edges.
// Declared here so the compiler package has no dependency on the token
// package; the token manager uses this type directly, importing compiler's
// output, not the reverse.
type JoinPolicy string

const (
	JoinAll       JoinPolicy = "ALL"
	JoinAny       JoinPolicy = "ANY"
	JoinFirstOnly JoinPolicy = "FIRST_ONLY"
)

// ExecutableDiagram is the compiler's immutable output.
type ExecutableDiagram struct {
	Nodes map[domain.NodeID]ExecutableNode
	Edges []ExecutableEdge

	IncomingByNode map[domain.NodeID][]ExecutableEdge
	OutgoingByNode map[domain.NodeID][]ExecutableEdge

	StartNodes map[domain.NodeID]struct{}

	// ConditionNodes is the set of CONDITION nodes, built during INDEXING
	// so the engine can find loop controllers without scanning node types.
	ConditionNodes map[domain.NodeID]struct{}

	Metadata domain.DiagramMetadata
}

// Node looks up a node by ID.
func (d *ExecutableDiagram) Node(id domain.NodeID) (ExecutableNode, bool) {
	n, ok := d.Nodes[id]
	return n, ok
}

// Incoming returns the inbound edges for a node in deterministic order.
func (d *ExecutableDiagram) Incoming(id domain.NodeID) []ExecutableEdge {
	return d.IncomingByNode[id]
}

// Outgoing returns the outbound edges for a node in deterministic order.
func (d *ExecutableDiagram) Outgoing(id domain.NodeID) []ExecutableEdge {
	return d.OutgoingByNode[id]
}

// IsStart reports whether a node is a start node.
func (d *ExecutableDiagram) IsStart(id domain.NodeID) bool {
	_, ok := d.StartNodes[id]
	return ok
}
