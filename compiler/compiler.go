// ABOUTME: Compile is the compiler's single entry point, running the five phases in
// ABOUTME: fixed order and assembling their output into an ExecutableDiagram.
package compiler

import (
	"sort"

	"github.com/dipeo/dipeo-engine/domain"
)

// Compile runs the five-phase pipeline (STRUCTURAL, CONNECTION_RESOLUTION,
// TRANSFORMATION_RULES, NODE_FACTORY, INDEXING) over a domain diagram.
//
// A fatal STRUCTURAL error stops the pipeline early: the returned
// ExecutableDiagram is nil and CompilationResult.Valid is false. Callers
// that only want validation (e.g. an editor's live-lint pass) can ignore
// the first return value and inspect the diagnostics.
func Compile(d domain.DomainDiagram) (*ExecutableDiagram, CompilationResult) {
	c := newDiagnosticCollector()

	// Phase 1: STRUCTURAL.
	runStructuralPhase(d, c)
	if c.fatal {
		return nil, finish(c)
	}

	arrowIDs := sortedArrowIDs(d)

	// Phase 2: CONNECTION_RESOLUTION.
	edges := runConnectionResolutionPhase(d, arrowIDs, c)
	if c.fatal {
		return nil, finish(c)
	}

	// Phase 3: TRANSFORMATION_RULES.
	arrowByID := make(map[domain.ArrowID]domain.DomainArrow, len(d.Arrows))
	for id, a := range d.Arrows {
		arrowByID[id] = a
	}
	for i := range edges {
		edges[i].TransformRules = resolveTransformRules(arrowByID[edges[i].ID])
	}

	// Phase 4: NODE_FACTORY.
	nodeIDs := sortedNodeIDs(d)
	nodes := make(map[domain.NodeID]ExecutableNode, len(nodeIDs))
	for _, id := range nodeIDs {
		n := d.Nodes[id]
		cfg, err := buildNodeConfig(n)
		if err != nil {
			c.addErrorOn(PhaseNodeFactory, "node_config_invalid", err.Error(), string(id), "", "")
			continue
		}
		nodes[id] = ExecutableNode{
			ID:         id,
			Type:       n.Type,
			Config:     cfg,
			JoinPolicy: resolveJoinPolicy(n),
		}
	}
	if c.fatal {
		return nil, finish(c)
	}

	// Phase 5: INDEXING.
	incoming, outgoing, starts, conditions := runIndexingPhase(nodes, edges)

	exe := &ExecutableDiagram{
		Nodes:          nodes,
		Edges:          edges,
		IncomingByNode: incoming,
		OutgoingByNode: outgoing,
		StartNodes:     starts,
		ConditionNodes: conditions,
		Metadata:       d.Metadata,
	}

	return exe, finish(c)
}

func finish(c *diagnosticCollector) CompilationResult {
	valid := true
	for _, diag := range c.diags {
		if diag.Severity == SeverityError {
			valid = false
			break
		}
	}
	return CompilationResult{
		Diagnostics: c.diags,
		Valid:       valid,
	}
}

func sortedArrowIDs(d domain.DomainDiagram) []domain.ArrowID {
	ids := make([]domain.ArrowID, 0, len(d.Arrows))
	for id := range d.Arrows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedNodeIDs(d domain.DomainDiagram) []domain.NodeID {
	ids := make([]domain.NodeID, 0, len(d.Nodes))
	for id := range d.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
