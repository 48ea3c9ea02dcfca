// ABOUTME: EndpointHandler — the diagram terminal sink; records the final output.
package handler

import (
	"context"

	"github.com/dipeo/dipeo-engine/domain"
)

// EndpointHandler records whatever it received as the diagram's final
// output and produces no outbound tokens (ENDPOINT nodes have no
// outgoing edges per invariant 3).
type EndpointHandler struct{}

func (EndpointHandler) Type() domain.NodeType { return domain.NodeTypeEndpoint }

func (EndpointHandler) Execute(ctx context.Context, in Input, hctx Context) (Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env, ok := in["default"]
	if !ok {
		env = domain.NewEnvelope(nil, hctx.NodeID, hctx.ExecutionID, domain.ContentTypeEmpty)
	}
	return Output{"default": env}, nil
}
