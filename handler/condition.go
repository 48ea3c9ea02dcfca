// ABOUTME: ConditionHandler evaluates a CONDITION node's verdict; the engine routes it
// ABOUTME: exclusively to condtrue xor condfalse.
package handler

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
)

// NodeFireCounter reports how many times a node has fired so far, used by
// CHECK_NODES_EXECUTED to test whether a watched node set has all run at
// least once.
type NodeFireCounter func(domain.NodeID) int

// ConditionHandler evaluates the node's ConditionConfig and returns its
// verdict on the "default" port; the engine's condition-routing step
// (engine/condition.go) reads this verdict to decide which single branch
// — condtrue or condfalse — receives the emitted token.
type ConditionHandler struct {
	// FireCounter overrides the engine-supplied Context.FireCount for
	// CHECK_NODES_EXECUTED; tests use it to pin fire counts. When both
	// are nil no node is considered to have fired.
	FireCounter NodeFireCounter
}

func (ConditionHandler) Type() domain.NodeType { return domain.NodeTypeCondition }

func (h ConditionHandler) Execute(ctx context.Context, in Input, hctx Context) (Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, ok := hctx.Config.(compiler.ConditionConfig)
	if !ok {
		return nil, fmt.Errorf("condition handler: node %q has no ConditionConfig", hctx.NodeID)
	}

	verdict, err := h.evaluate(cfg, hctx)
	if err != nil {
		return nil, err
	}

	return Output{
		"default": domain.NewEnvelope(verdict, hctx.NodeID, hctx.ExecutionID, domain.ContentTypeVariable),
	}, nil
}

func (h ConditionHandler) evaluate(cfg compiler.ConditionConfig, hctx Context) (bool, error) {
	switch cfg.ConditionType {
	case compiler.ConditionDetectMaxIterations:
		// hctx.ExecCount is the node's fire count before this firing, so
		// this firing is iteration number ExecCount+1.
		return hctx.ExecCount+1 < cfg.MaxIterations, nil

	case compiler.ConditionCheckNodesExecuted:
		counter := h.FireCounter
		if counter == nil {
			counter = hctx.FireCount
		}
		if counter == nil {
			return false, nil
		}
		for _, watched := range cfg.WatchNodes {
			if counter(watched) < 1 {
				return false, nil
			}
		}
		return true, nil

	case compiler.ConditionCustom:
		env := hctx.Variables.Snapshot()
		program, err := expr.Compile(cfg.Expression, expr.Env(env), expr.AsBool())
		if err != nil {
			return false, fmt.Errorf("condition %q: invalid expression: %w", hctx.NodeID, err)
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return false, fmt.Errorf("condition %q: expression evaluation failed: %w", hctx.NodeID, err)
		}
		result, _ := out.(bool)
		return result, nil

	default:
		return false, fmt.Errorf("condition %q: unknown condition type %q", hctx.NodeID, cfg.ConditionType)
	}
}
