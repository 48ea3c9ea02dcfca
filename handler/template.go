// ABOUTME: TemplateHandler renders a TEMPLATE node through the ports.TemplateRenderer boundary,
// ABOUTME: feeding it the execution variables merged with this firing's resolved inputs.
package handler

import (
	"context"
	"fmt"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
	"github.com/dipeo/dipeo-engine/ports"
)

// TemplateHandler renders TemplateConfig.Template against the execution
// variables plus the resolved inputs (input port names become template
// variables, shadowing execution variables of the same name).
type TemplateHandler struct {
	Renderer ports.TemplateRenderer
}

func (TemplateHandler) Type() domain.NodeType { return domain.NodeTypeTemplate }

func (h TemplateHandler) Execute(ctx context.Context, in Input, hctx Context) (Output, error) {
	cfg, ok := hctx.Config.(compiler.TemplateConfig)
	if !ok {
		return nil, fmt.Errorf("template handler: node %q has no TemplateConfig", hctx.NodeID)
	}
	if h.Renderer == nil {
		return nil, fmt.Errorf("template handler: no TemplateRenderer configured")
	}

	vars := hctx.Variables.Snapshot()
	for port, env := range in {
		vars[port] = env.Representation("resolved")
	}

	rendered, err := h.Renderer.Render(ctx, cfg.Template, vars)
	if err != nil {
		return nil, fmt.Errorf("template %q: render failed: %w", hctx.NodeID, err)
	}

	return Output{
		"default": domain.NewEnvelope(rendered, hctx.NodeID, hctx.ExecutionID, domain.ContentTypeRawText),
	}, nil
}
