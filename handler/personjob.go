// ABOUTME: PersonJobHandler drives one LLM turn through ports.LLMService; the provider
// ABOUTME: SDK sits entirely behind that port.
package handler

import (
	"context"
	"fmt"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
	"github.com/dipeo/dipeo-engine/ports"
)

// PersonLookup resolves a domain.PersonID to its configuration.
type PersonLookup func(domain.PersonID) (domain.DomainPerson, bool)

// PersonJobHandler runs one PersonJob firing: builds a message list from
// the resolved inputs and the person's system prompt, calls LLMService,
// and returns the completion as the node's output. A node that has
// reached PersonJobConfig.MaxIteration transitions to MAXITER_REACHED
// instead of firing again; the engine enforces that by consulting the
// node's execution count before dispatch (isMaxedPersonJob in
// engine/engine.go).
type PersonJobHandler struct {
	LLM     ports.LLMService
	Persons PersonLookup
}

func (PersonJobHandler) Type() domain.NodeType { return domain.NodeTypePersonJob }

func (h PersonJobHandler) Execute(ctx context.Context, in Input, hctx Context) (Output, error) {
	cfg, ok := hctx.Config.(compiler.PersonJobConfig)
	if !ok {
		return nil, fmt.Errorf("person job handler: node %q has no PersonJobConfig", hctx.NodeID)
	}

	person, ok := h.Persons(cfg.PersonID)
	if !ok {
		return nil, fmt.Errorf("person job handler: unknown person %q", cfg.PersonID)
	}

	messages := buildMessages(person, cfg, in)

	result, err := h.LLM.Complete(ctx, ports.CompletionRequest{
		Person:   person,
		Messages: messages,
		Tools:    cfg.Tools,
	})
	if err != nil {
		return nil, fmt.Errorf("person job %q: llm completion failed: %w", hctx.NodeID, err)
	}

	body := map[string]any{
		"value":        result.Content,
		"tool_results": result.ToolResults,
	}
	return Output{
		"default": domain.NewEnvelope(body, hctx.NodeID, hctx.ExecutionID, domain.ContentTypeObject),
	}, nil
}

func buildMessages(person domain.DomainPerson, cfg compiler.PersonJobConfig, in Input) []ports.Message {
	var messages []ports.Message
	if person.SystemPrompt != "" {
		messages = append(messages, ports.Message{Role: "system", Content: person.SystemPrompt})
	}
	if cfg.Prompt != "" {
		messages = append(messages, ports.Message{Role: "user", Content: cfg.Prompt})
	}
	if first, ok := in[domain.HandleLabelFirst]; ok {
		messages = append(messages, ports.Message{Role: "user", Content: fmt.Sprint(first.Representation("resolved"))})
	}
	if def, ok := in["default"]; ok {
		messages = append(messages, ports.Message{Role: "user", Content: fmt.Sprint(def.Representation("resolved"))})
	}
	return messages
}
