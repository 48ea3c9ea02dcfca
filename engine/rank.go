// ABOUTME: computeRanks assigns each node a stable topological rank for the node ordering policy.
// ABOUTME: Ranks are BFS distance from the start nodes so that loop back-edges never block assignment.
package engine

import (
	"math"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
)

// computeRanks assigns every node a rank: its shortest distance (in edge
// hops) from any start node. The diagram may contain cycles (loop
// controllers), so a strict topological sort is not well-defined; BFS
// distance gives a deterministic, cycle-tolerant total order that agrees
// with topological order wherever one exists. Ties after rank are broken
// by execution count and then NodeID, per the ordering policy.
func computeRanks(d *compiler.ExecutableDiagram) map[domain.NodeID]int {
	ranks := make(map[domain.NodeID]int, len(d.Nodes))
	for id := range d.Nodes {
		ranks[id] = math.MaxInt32
	}

	queue := make([]domain.NodeID, 0, len(d.StartNodes))
	for id := range d.StartNodes {
		ranks[id] = 0
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curRank := ranks[cur]
		for _, e := range d.Outgoing(cur) {
			next := curRank + 1
			if next < ranks[e.TargetNode] {
				ranks[e.TargetNode] = next
				queue = append(queue, e.TargetNode)
			}
		}
	}

	return ranks
}
