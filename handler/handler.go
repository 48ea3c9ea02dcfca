// ABOUTME: NodeHandler is the contract every node-type implementation satisfies; Registry
// ABOUTME: maps domain.NodeType to its handler and is frozen by convention before the first run.
package handler

import (
	"context"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
)

// Input is the resolved per-port envelope map a handler receives,
// produced by the resolver.
type Input = map[string]domain.Envelope

// Output is the per-port envelope map a handler returns. The engine reads
// outputs["default"] for NodeExecutionState.LastOutput and forwards the
// whole map to the token manager's EmitOutputs.
type Output = map[string]domain.Envelope

// Context carries per-execution state a handler may need beyond its
// resolved inputs: shared variables and the node's typed config.
type Context struct {
	ExecutionID domain.ExecutionID
	NodeID      domain.NodeID
	Config      compiler.NodeConfig
	Variables   *domain.Variables
	ExecCount   int

	// FireCount reports how many times any node has fired so far in this
	// execution. Supplied by the engine on every dispatch; condition
	// nodes consult it for CHECK_NODES_EXECUTED.
	FireCount func(domain.NodeID) int
}

// NodeHandler executes one node type. Implementations must be safe to call
// concurrently across different nodes (the engine may dispatch more than
// one handler at a time when concurrency degree > 1).
type NodeHandler interface {
	// Type reports the domain.NodeType this handler implements.
	Type() domain.NodeType

	// Execute runs the node, given its resolved inputs. Returning an error
	// transitions the node to FAILED (subject to retry policy); the
	// engine applies context cancellation cooperatively, so handlers doing
	// external I/O should select on ctx.Done().
	Execute(ctx context.Context, in Input, hctx Context) (Output, error)
}

// Registry maps a NodeType to its handler.
type Registry struct {
	handlers map[domain.NodeType]NodeHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.NodeType]NodeHandler)}
}

// Register adds handler, keyed by its Type(). Registering for an
// already-registered type replaces the previous handler.
func (r *Registry) Register(h NodeHandler) {
	r.handlers[h.Type()] = h
}

// Get returns the handler for t, or false if none is registered.
func (r *Registry) Get(t domain.NodeType) (NodeHandler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}
