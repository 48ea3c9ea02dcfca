// ABOUTME: Layer 1 of input resolution — per-node-type edge filtering and merge behavior,
// ABOUTME: applied before the layer-2 transform engine runs on each accepted value.
package resolve

import (
	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
)

// DefaultOutputKey is the output key a source uses when it names none
// explicitly.
const DefaultOutputKey = "default"

// strategy decides, for one target node, which of its consumed edges are
// processed this firing and how multiple envelopes landing on the same
// port are merged.
type strategy interface {
	// acceptEdge reports whether edge should be processed this firing,
	// given the node's execution count so far (before this firing).
	acceptEdge(edge compiler.ExecutableEdge, execCount int) bool

	// merge combines more than one envelope arriving on the same port.
	// Most strategies last-wins; a strategy may override to concatenate.
	merge(envelopes []domain.Envelope) domain.Envelope
}

// defaultStrategy implements the fallback behavior: every edge is
// accepted, and last-wins merge.
type defaultStrategy struct{}

func (defaultStrategy) acceptEdge(compiler.ExecutableEdge, int) bool { return true }

func (defaultStrategy) merge(envelopes []domain.Envelope) domain.Envelope {
	return envelopes[len(envelopes)-1]
}

// personJobStrategy implements the PersonJob carve-out: on the
// first firing (execCount == 0), only edges targeting a "first" input (or
// hinted IsFirstOnly) are processed; on later firings those edges are
// ignored. Edges carrying conversation_state are always processed
// regardless of firing count.
type personJobStrategy struct{}

func (personJobStrategy) acceptEdge(edge compiler.ExecutableEdge, execCount int) bool {
	if edge.RuntimeHints.IsConversationState {
		return true
	}
	isFirstEdge := edge.RuntimeHints.IsFirstOnly || domain.IsFirstInputLabel(edge.TargetInputPort)
	if execCount == 0 {
		return isFirstEdge
	}
	return !isFirstEdge
}

func (personJobStrategy) merge(envelopes []domain.Envelope) domain.Envelope {
	return envelopes[len(envelopes)-1]
}

// conditionStrategy mirrors the default on the input side; the
// condtrue/condfalse xor selection is an output-side concern driven by
// the engine's condition evaluation (engine/condition.go), not the input
// resolver — condition nodes otherwise merge like any other node.
type conditionStrategy struct{ defaultStrategy }

// strategyFor selects a node's layer-1 strategy by type.
func strategyFor(nodeType domain.NodeType) strategy {
	switch nodeType {
	case domain.NodeTypePersonJob:
		return personJobStrategy{}
	case domain.NodeTypeCondition:
		return conditionStrategy{}
	default:
		return defaultStrategy{}
	}
}
