// ABOUTME: Resolver implements two-layer input resolution: node-type strategy filtering
// ABOUTME: and merge, then the per-edge transform rule chain.
package resolve

import (
	"fmt"
	"log"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
)

// FatalError is raised for the handful of fatal-class resolution
// failures, such as resolving inputs for an unknown node. The node
// transitions to FAILED rather than running with a best-effort value.
type FatalError struct {
	NodeID domain.NodeID
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("INPUT_RESOLUTION_FAILED for node %q: %s", e.NodeID, e.Reason)
}

// Resolver turns consumed tokens into the port->Envelope map a handler
// consumes.
type Resolver struct {
	diagram  *compiler.ExecutableDiagram
	registry *Registry
}

// NewResolver builds a Resolver bound to a compiled diagram and rule registry.
func NewResolver(d *compiler.ExecutableDiagram, reg *Registry) *Resolver {
	return &Resolver{diagram: d, registry: reg}
}

// Resolve produces the input map for node, given the tokens consumed for
// it this firing (keyed by edge ID, as returned by token.Manager.ConsumeInbound)
// and the node's execution count so far (before this firing).
//
// Ports with no value are absent from the result, never present with a
// nil value.
func (r *Resolver) Resolve(node domain.NodeID, consumed map[domain.ArrowID]domain.Envelope, execCount int) (map[string]domain.Envelope, error) {
	exeNode, ok := r.diagram.Node(node)
	if !ok {
		return nil, &FatalError{NodeID: node, Reason: "unknown node"}
	}
	strat := strategyFor(exeNode.Type)

	byPort := make(map[string][]domain.Envelope)
	for _, edge := range r.diagram.Incoming(node) {
		env, ok := consumed[edge.ID]
		if !ok {
			continue
		}
		if !strat.acceptEdge(edge, execCount) {
			continue
		}

		value, err := r.applyTransforms(edge, env.Body)
		if err != nil {
			// Best-effort: the failure is logged and the original
			// value flows through unchanged.
			log.Printf("component=resolve action=transform_failed node=%s edge=%s err=%v", node, edge.ID, err)
			value = env.Body
		}

		out := env.WithRepresentation("resolved", value)
		byPort[edge.TargetInputPort] = append(byPort[edge.TargetInputPort], out)
	}

	result := make(map[string]domain.Envelope, len(byPort))
	for port, envs := range byPort {
		result[port] = strat.merge(envs)
	}
	return result, nil
}

// applyTransforms runs edge's compile-time-resolved transform chain over
// value in order, feeding each rule's output to the next.
func (r *Resolver) applyTransforms(edge compiler.ExecutableEdge, value any) (any, error) {
	for _, rule := range edge.TransformRules {
		fn, ok := r.registry.Lookup(rule.Name)
		if !ok {
			return value, fmt.Errorf("resolve: no rule registered for %q", rule.Name)
		}
		next, err := fn(value, rule.Params)
		if err != nil {
			return value, err
		}
		value = next
	}
	return value, nil
}

// ExtractOutput implements smart output extraction: given a
// source node's raw output and the port name an edge asks for, prefer
// outputs.<port>, fall back to the top-level value, and report false if
// neither is present.
func ExtractOutput(raw any, port string) (any, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		if port == DefaultOutputKey {
			return raw, true
		}
		return nil, false
	}

	if outputs, ok := obj["outputs"].(map[string]any); ok {
		if v, ok := outputs[port]; ok {
			return v, true
		}
	}
	if v, ok := obj["value"]; ok {
		return v, true
	}
	return nil, false
}
