// ABOUTME: Join-policy readiness predicates — which inbound edges must all carry a token
// ABOUTME: (mandatory) versus which are drained opportunistically (optional).
package token

import (
	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
)

// partitionEdges splits a node's inbound edges into the set that must all
// carry a token for the node to be ready (mandatory) and the set that is
// drained if present but never blocks readiness (optional), per the join
// policy and the node's fire count so far.
//
// FIRST_ONLY generalizes the PersonJob first-execution carve-out: on the
// first firing, edges hinted IsFirstOnly are mandatory; on
// later firings the non-first edges are mandatory instead. Edges carrying
// conversation_state content are always mandatory, mirroring the resolver
// layer-1 rule that such edges are "always processed".
func partitionEdges(policy compiler.JoinPolicy, incoming []compiler.ExecutableEdge, fireCount int) (mandatory, optional []compiler.ExecutableEdge) {
	switch policy {
	case compiler.JoinAll:
		return incoming, nil

	case compiler.JoinAny:
		return nil, incoming

	case compiler.JoinFirstOnly:
		for _, e := range incoming {
			always := e.RuntimeHints.IsConversationState
			wantsFirst := fireCount == 0
			isFirstEdge := e.RuntimeHints.IsFirstOnly || domain.IsFirstInputLabel(e.TargetInputPort)
			if always || (wantsFirst == isFirstEdge) {
				mandatory = append(mandatory, e)
			} else {
				optional = append(optional, e)
			}
		}
		return mandatory, optional

	default:
		return incoming, nil
	}
}

// isSatisfied reports whether the mandatory/optional partition is ready
// given a token-presence lookup for a specific edge.
func isSatisfied(mandatory, optional []compiler.ExecutableEdge, hasToken func(compiler.ExecutableEdge) bool) bool {
	if len(mandatory) > 0 {
		for _, e := range mandatory {
			if !hasToken(e) {
				return false
			}
		}
		return true
	}
	// No mandatory edges (ANY, or FIRST_ONLY with nothing mandatory this
	// firing): ready once at least one optional edge has a token. A node
	// with no inbound edges at all is never ready through this path — it
	// is seeded directly by the engine at execution start.
	for _, e := range optional {
		if hasToken(e) {
			return true
		}
	}
	return false
}
