// ABOUTME: DBReadHandler reads a data source through the ports.FileSystem boundary for a
// ABOUTME: DB_READ node; JSON-looking content is decoded so downstream edges get an object.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
	"github.com/dipeo/dipeo-engine/ports"
)

// DBReadHandler resolves DBReadConfig.Query as a path into the configured
// FileSystem and returns its content. Content that parses as JSON is
// returned decoded with content type object; anything else passes through
// as raw text.
type DBReadHandler struct {
	FS ports.FileSystem
}

func (DBReadHandler) Type() domain.NodeType { return domain.NodeTypeDBRead }

func (h DBReadHandler) Execute(ctx context.Context, in Input, hctx Context) (Output, error) {
	cfg, ok := hctx.Config.(compiler.DBReadConfig)
	if !ok {
		return nil, fmt.Errorf("db read handler: node %q has no DBReadConfig", hctx.NodeID)
	}
	if h.FS == nil {
		return nil, fmt.Errorf("db read handler: no FileSystem configured")
	}

	data, err := h.FS.ReadFile(ctx, cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("db read %q: %w", hctx.NodeID, err)
	}

	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return Output{
				"default": domain.NewEnvelope(decoded, hctx.NodeID, hctx.ExecutionID, domain.ContentTypeObject),
			}, nil
		}
	}

	return Output{
		"default": domain.NewEnvelope(string(data), hctx.NodeID, hctx.ExecutionID, domain.ContentTypeRawText),
	}, nil
}
