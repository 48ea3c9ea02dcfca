// ABOUTME: Phase 1 (STRUCTURAL) — unique IDs, handle well-formedness, endpoint/start rules,
// ABOUTME: and data-type compatibility of arrow endpoints, as a checklist of independent rule functions.
package compiler

import (
	"fmt"

	"github.com/dipeo/dipeo-engine/domain"
)

// runStructuralPhase validates the diagram's structural invariants
// (unique IDs, handle well-formedness, endpoint/start rules, data-type
// compatibility, reachability), appending diagnostics to c. Later phases
// are skipped by the caller when this phase leaves c.fatal set.
func runStructuralPhase(d domain.DomainDiagram, c *diagnosticCollector) {
	checkHandleWellFormedness(d, c)
	checkArrowEndpoints(d, c)
	checkStartEndpointRules(d, c)
	checkConditionHandleLabels(d, c)
	checkReachability(d, c)
}

// checkHandleWellFormedness verifies every handle's structural ID matches
// its node_id/label/direction fields and that no two handles share an ID.
func checkHandleWellFormedness(d domain.DomainDiagram, c *diagnosticCollector) {
	for id, h := range d.Handles {
		expected := domain.MakeHandleID(h.NodeID, h.Label, h.Direction)
		if expected != id {
			c.addErrorOn(PhaseStructural, "handle_id_mismatch",
				fmt.Sprintf("handle %q has structural id %q but is keyed as %q", id, expected, id),
				string(h.NodeID), "", string(id))
		}
		if _, ok := d.Nodes[h.NodeID]; !ok {
			c.addErrorOn(PhaseStructural, "handle_orphaned",
				fmt.Sprintf("handle %q references nonexistent node %q", id, h.NodeID),
				string(h.NodeID), "", string(id))
		}
	}
}

// checkArrowEndpoints verifies invariants 1 and 2: every arrow endpoint
// references an existing handle of the correct direction and data types
// are compatible.
func checkArrowEndpoints(d domain.DomainDiagram, c *diagnosticCollector) {
	for id, a := range d.Arrows {
		src, srcOK := d.Handles[a.Source]
		if !srcOK {
			c.addErrorOn(PhaseStructural, "arrow_source_missing",
				fmt.Sprintf("arrow %q source %q does not reference an existing handle", id, a.Source),
				"", string(id), string(a.Source))
		}
		tgt, tgtOK := d.Handles[a.Target]
		if !tgtOK {
			c.addErrorOn(PhaseStructural, "arrow_target_missing",
				fmt.Sprintf("arrow %q target %q does not reference an existing handle", id, a.Target),
				"", string(id), string(a.Target))
		}
		if !srcOK || !tgtOK {
			continue
		}
		if src.Direction != domain.DirectionOutput {
			c.addErrorOn(PhaseStructural, "arrow_source_direction",
				fmt.Sprintf("arrow %q source %q is not an output handle", id, a.Source),
				"", string(id), string(a.Source))
		}
		if tgt.Direction != domain.DirectionInput {
			c.addErrorOn(PhaseStructural, "arrow_target_direction",
				fmt.Sprintf("arrow %q target %q is not an input handle", id, a.Target),
				"", string(id), string(a.Target))
		}
		if !src.DataType.Compatible(tgt.DataType) {
			c.addErrorOn(PhaseStructural, "arrow_type_mismatch",
				fmt.Sprintf("arrow %q connects incompatible data types %q -> %q", id, src.DataType, tgt.DataType),
				"", string(id), "")
		}
	}
}

// checkStartEndpointRules verifies invariant 3: START nodes have no inbound
// edges, ENDPOINT nodes have no outbound edges.
func checkStartEndpointRules(d domain.DomainDiagram, c *diagnosticCollector) {
	hasIncoming := make(map[domain.NodeID]bool)
	hasOutgoing := make(map[domain.NodeID]bool)
	for _, a := range d.Arrows {
		if tgt, ok := d.Handles[a.Target]; ok {
			hasIncoming[tgt.NodeID] = true
		}
		if src, ok := d.Handles[a.Source]; ok {
			hasOutgoing[src.NodeID] = true
		}
	}

	for id, n := range d.Nodes {
		if n.Type == domain.NodeTypeStart && hasIncoming[id] {
			c.addErrorOn(PhaseStructural, "start_has_incoming",
				fmt.Sprintf("START node %q has an incoming edge", id), string(id), "", "")
		}
		if n.Type == domain.NodeTypeEndpoint && hasOutgoing[id] {
			c.addErrorOn(PhaseStructural, "endpoint_has_outgoing",
				fmt.Sprintf("ENDPOINT node %q has an outgoing edge", id), string(id), "", "")
		}
	}
}

// checkConditionHandleLabels verifies invariant 5: condtrue/condfalse
// handles only appear on outputs of CONDITION nodes.
func checkConditionHandleLabels(d domain.DomainDiagram, c *diagnosticCollector) {
	for id, h := range d.Handles {
		if h.Label != domain.HandleLabelCondTrue && h.Label != domain.HandleLabelCondFalse {
			continue
		}
		node, ok := d.Nodes[h.NodeID]
		if !ok {
			continue // already reported by checkHandleWellFormedness
		}
		if node.Type != domain.NodeTypeCondition {
			c.addErrorOn(PhaseStructural, "condition_handle_misplaced",
				fmt.Sprintf("handle %q uses label %q but node %q is not a CONDITION node", id, h.Label, h.NodeID),
				string(h.NodeID), "", string(id))
		}
		if h.Direction != domain.DirectionOutput {
			c.addErrorOn(PhaseStructural, "condition_handle_direction",
				fmt.Sprintf("handle %q uses label %q but is not an output handle", id, h.Label),
				string(h.NodeID), "", string(id))
		}
	}
}

// checkReachability performs BFS from all start nodes and reports
// unreachable non-start nodes as warnings (invariant 4).
func checkReachability(d domain.DomainDiagram, c *diagnosticCollector) {
	adjacency := make(map[domain.NodeID][]domain.NodeID)
	for _, a := range d.Arrows {
		src, srcOK := d.Handles[a.Source]
		tgt, tgtOK := d.Handles[a.Target]
		if !srcOK || !tgtOK {
			continue
		}
		adjacency[src.NodeID] = append(adjacency[src.NodeID], tgt.NodeID)
	}

	visited := make(map[domain.NodeID]bool)
	var queue []domain.NodeID
	for id, n := range d.Nodes {
		if n.Type == domain.NodeTypeStart {
			queue = append(queue, id)
			visited[id] = true
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	for id, n := range d.Nodes {
		if n.Type == domain.NodeTypeStart {
			continue
		}
		if !visited[id] {
			c.addWarning(PhaseStructural, "unreachable_node",
				fmt.Sprintf("node %q is not reachable from any start node", id), string(id))
		}
	}
}
