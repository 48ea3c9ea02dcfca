// ABOUTME: CodeJobHandler executes an inline script via an external interpreter chosen
// ABOUTME: by language, feeding the resolved "default" input as JSON on stdin.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
)

// interpreterFor maps a CODE_JOB language to the interpreter binary and
// the flag that accepts an inline script, leaving stdin free for the
// node's input.
var interpreterFor = map[string]struct {
	bin  string
	flag string
}{
	"python":     {"python3", "-c"},
	"javascript": {"node", "-e"},
	"bash":       {"bash", "-c"},
}

// CodeJobHandler runs CodeJobConfig.Code through the interpreter matching
// CodeJobConfig.Language. The resolved "default" input is JSON-encoded on
// the script's stdin, and stdout (minus a trailing newline) becomes the
// node's output.
type CodeJobHandler struct{}

func (CodeJobHandler) Type() domain.NodeType { return domain.NodeTypeCodeJob }

func (CodeJobHandler) Execute(ctx context.Context, in Input, hctx Context) (Output, error) {
	cfg, ok := hctx.Config.(compiler.CodeJobConfig)
	if !ok {
		return nil, fmt.Errorf("code job handler: node %q has no CodeJobConfig", hctx.NodeID)
	}

	it, ok := interpreterFor[strings.ToLower(cfg.Language)]
	if !ok {
		return nil, fmt.Errorf("code job handler: unsupported language %q", cfg.Language)
	}

	cmd := exec.CommandContext(ctx, it.bin, it.flag, cfg.Code)
	if def, ok := in["default"]; ok {
		encoded, err := json.Marshal(def.Representation("resolved"))
		if err != nil {
			return nil, fmt.Errorf("code job %q: encode input: %w", hctx.NodeID, err)
		}
		cmd.Stdin = bytes.NewReader(encoded)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("code job %q failed: %w: %s", hctx.NodeID, err, stderr.String())
	}

	return Output{
		"default": domain.NewEnvelope(strings.TrimRight(stdout.String(), "\n"), hctx.NodeID, hctx.ExecutionID, domain.ContentTypeRawText),
	}, nil
}
