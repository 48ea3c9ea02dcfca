// ABOUTME: ShellJobHandler runs a SHELL_JOB's command line through the host shell,
// ABOUTME: piping the default input to stdin and capturing stdout as the node output.
package handler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
)

// ShellJobHandler executes ShellJobConfig.Command via `sh -c`, feeding the
// resolved "default" input on stdin and capturing stdout as the node's
// output. The config's per-node timeout is applied inside the engine's
// type-level deadline, so the shorter of the two takes effect.
type ShellJobHandler struct{}

func (ShellJobHandler) Type() domain.NodeType { return domain.NodeTypeShellJob }

func (ShellJobHandler) Execute(ctx context.Context, in Input, hctx Context) (Output, error) {
	cfg, ok := hctx.Config.(compiler.ShellJobConfig)
	if !ok {
		return nil, fmt.Errorf("shell job handler: node %q has no ShellJobConfig", hctx.NodeID)
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Timeout)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", cfg.Command)
	if def, ok := in["default"]; ok {
		cmd.Stdin = strings.NewReader(fmt.Sprint(def.Representation("resolved")))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("shell job %q failed: %w: %s", hctx.NodeID, err, stderr.String())
	}

	return Output{
		"default": domain.NewEnvelope(strings.TrimRight(stdout.String(), "\n"), hctx.NodeID, hctx.ExecutionID, domain.ContentTypeRawText),
	}, nil
}
