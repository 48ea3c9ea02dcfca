// ABOUTME: SubdiagramHandler delegates a SUBDIAGRAM node to the ports.SubdiagramExecutor
// ABOUTME: boundary — the nested run happens behind the port, not inside this execution's loop.
package handler

import (
	"context"
	"fmt"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
	"github.com/dipeo/dipeo-engine/ports"
)

// SubdiagramHandler runs the referenced diagram to completion through the
// executor port, passing this firing's "default" input as the nested run's
// seed and returning the nested terminal output.
type SubdiagramHandler struct {
	Executor ports.SubdiagramExecutor
}

func (SubdiagramHandler) Type() domain.NodeType { return domain.NodeTypeSubdiagram }

func (h SubdiagramHandler) Execute(ctx context.Context, in Input, hctx Context) (Output, error) {
	cfg, ok := hctx.Config.(compiler.SubdiagramConfig)
	if !ok {
		return nil, fmt.Errorf("subdiagram handler: node %q has no SubdiagramConfig", hctx.NodeID)
	}
	if h.Executor == nil {
		return nil, fmt.Errorf("subdiagram handler: no SubdiagramExecutor configured")
	}

	input, ok := in["default"]
	if !ok {
		input = domain.NewEnvelope(nil, hctx.NodeID, hctx.ExecutionID, domain.ContentTypeEmpty)
	}

	result, err := h.Executor.Execute(ctx, cfg.DiagramID, input)
	if err != nil {
		return nil, fmt.Errorf("subdiagram %q (%s): %w", hctx.NodeID, cfg.DiagramID, err)
	}

	return Output{"default": result}, nil
}
