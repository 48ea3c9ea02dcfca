// ABOUTME: StartHandler — the diagram entry point; emits the initial variable snapshot.
package handler

import (
	"context"

	"github.com/dipeo/dipeo-engine/domain"
)

// StartHandler performs no work beyond producing the seed envelope the
// engine emits on every outbound edge of a START node during initialization.
type StartHandler struct{}

func (StartHandler) Type() domain.NodeType { return domain.NodeTypeStart }

func (StartHandler) Execute(ctx context.Context, in Input, hctx Context) (Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := hctx.Variables.Snapshot()
	return Output{
		"default": domain.NewEnvelope(seed, hctx.NodeID, hctx.ExecutionID, domain.ContentTypeObject),
	}, nil
}
