// ABOUTME: Phase 2 (CONNECTION_RESOLUTION) — derives source/target ports from handle
// ABOUTME: labels, attaches content_type, and flags conditional-branch edges for phase 3.
package compiler

import (
	"fmt"

	"github.com/dipeo/dipeo-engine/domain"
)

// runConnectionResolutionPhase derives one ExecutableEdge per domain arrow,
// in a deterministic order (arrow ID), leaving TransformRules unset for
// phase 3 to fill in.
func runConnectionResolutionPhase(d domain.DomainDiagram, arrowIDs []domain.ArrowID, c *diagnosticCollector) []ExecutableEdge {
	edges := make([]ExecutableEdge, 0, len(arrowIDs))

	for _, id := range arrowIDs {
		a := d.Arrows[id]
		src, srcOK := d.Handles[a.Source]
		tgt, tgtOK := d.Handles[a.Target]
		if !srcOK || !tgtOK {
			// Already reported during STRUCTURAL; skip producing an edge for it.
			continue
		}

		contentType := a.ContentType
		if contentType == "" {
			contentType = domain.ContentTypeGeneric
		}

		hints := RuntimeHints{
			IsConditionalBranch: tgt.Label == domain.HandleLabelCondTrue || tgt.Label == domain.HandleLabelCondFalse || src.Label == domain.HandleLabelCondTrue || src.Label == domain.HandleLabelCondFalse,
			IsConversationState: contentType == domain.ContentTypeConversationState,
		}

		if node, ok := d.Nodes[tgt.NodeID]; ok && node.Type == domain.NodeTypePersonJob && domain.IsFirstInputLabel(tgt.Label) {
			hints.IsFirstOnly = true
		}

		edges = append(edges, ExecutableEdge{
			ID:               id,
			SourceNode:       src.NodeID,
			TargetNode:       tgt.NodeID,
			SourceOutputPort: string(src.Label),
			TargetInputPort:  string(tgt.Label),
			ContentType:      contentType,
			RuntimeHints:     hints,
		})
	}

	verifyConditionBranchTargets(d, c)
	return edges
}

// verifyConditionBranchTargets checks that every CONDITION node exposes
// both a condtrue and a condfalse output handle, per invariant 5.
func verifyConditionBranchTargets(d domain.DomainDiagram, c *diagnosticCollector) {
	seenTrue := make(map[domain.NodeID]bool)
	seenFalse := make(map[domain.NodeID]bool)
	for _, h := range d.Handles {
		if h.Direction != domain.DirectionOutput {
			continue
		}
		switch h.Label {
		case domain.HandleLabelCondTrue:
			seenTrue[h.NodeID] = true
		case domain.HandleLabelCondFalse:
			seenFalse[h.NodeID] = true
		}
	}

	for id, n := range d.Nodes {
		if n.Type != domain.NodeTypeCondition {
			continue
		}
		if !seenTrue[id] || !seenFalse[id] {
			c.addErrorOn(PhaseConnectionResolution, "condition_missing_branch",
				fmt.Sprintf("CONDITION node %q must expose both condtrue and condfalse output handles", id),
				string(id), "", "")
		}
	}
}
