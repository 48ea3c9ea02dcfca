// ABOUTME: Phase 5 (INDEXING) — builds the adjacency maps and node-set indexes
// ABOUTME: the engine queries at every scheduling step instead of rescanning the edge list.
package compiler

import "github.com/dipeo/dipeo-engine/domain"

// runIndexingPhase builds IncomingByNode, OutgoingByNode, StartNodes, and
// ConditionNodes on top of the already-built node and edge slices.
func runIndexingPhase(nodes map[domain.NodeID]ExecutableNode, edges []ExecutableEdge) (
	incoming map[domain.NodeID][]ExecutableEdge,
	outgoing map[domain.NodeID][]ExecutableEdge,
	starts map[domain.NodeID]struct{},
	conditions map[domain.NodeID]struct{},
) {
	incoming = make(map[domain.NodeID][]ExecutableEdge)
	outgoing = make(map[domain.NodeID][]ExecutableEdge)
	starts = make(map[domain.NodeID]struct{})
	conditions = make(map[domain.NodeID]struct{})

	for _, e := range edges {
		incoming[e.TargetNode] = append(incoming[e.TargetNode], e)
		outgoing[e.SourceNode] = append(outgoing[e.SourceNode], e)
	}

	for id, n := range nodes {
		switch n.Type {
		case domain.NodeTypeStart:
			starts[id] = struct{}{}
		case domain.NodeTypeCondition:
			conditions[id] = struct{}{}
		}
	}

	return incoming, outgoing, starts, conditions
}
