// ABOUTME: HookHandler dispatches a HOOK node to a named callback registered at composition
// ABOUTME: time, mirroring the explicit-registration pattern used for node handlers themselves.
package handler

import (
	"context"
	"fmt"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
)

// HookFunc is one named hook implementation.
type HookFunc func(ctx context.Context, in Input, hctx Context) (Output, error)

// HookHandler looks up HookConfig.HookName in its registered hook map and
// invokes it. Unknown hook names fail the node rather than silently
// passing through.
type HookHandler struct {
	Hooks map[string]HookFunc
}

func (HookHandler) Type() domain.NodeType { return domain.NodeTypeHook }

func (h HookHandler) Execute(ctx context.Context, in Input, hctx Context) (Output, error) {
	cfg, ok := hctx.Config.(compiler.HookConfig)
	if !ok {
		return nil, fmt.Errorf("hook handler: node %q has no HookConfig", hctx.NodeID)
	}
	fn, ok := h.Hooks[cfg.HookName]
	if !ok {
		return nil, fmt.Errorf("hook %q: no hook registered under name %q", hctx.NodeID, cfg.HookName)
	}
	return fn(ctx, in, hctx)
}
