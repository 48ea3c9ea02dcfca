// ABOUTME: Service port interfaces — boundaries to collaborators outside this module's
// ABOUTME: scope. No concrete adapter for LLMService ships here; callers supply their own.
package ports

import (
	"context"

	"github.com/dipeo/dipeo-engine/domain"
)

// Message is one turn in a conversation sent to an LLM-backed person.
type Message struct {
	Role    string // "system", "user", "assistant", "tool"
	Content string
}

// CompletionRequest is what PersonJob sends to LLMService for one firing.
type CompletionRequest struct {
	Person   domain.DomainPerson
	Messages []Message
	Tools    []string
}

// CompletionResult is what LLMService returns for one firing.
type CompletionResult struct {
	Content     string
	ToolResults map[string]any
}

// LLMService is the boundary to a concrete LLM provider SDK: person,
// messages, and tools in, one response out. Provider SDK adapters are an
// external collaborator and never imported here.
type LLMService interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// FileSystem is the boundary to the host filesystem for handlers that read
// or write files (e.g. DB_READ fixtures).
type FileSystem interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
}

// APIKeyStore resolves a domain.ApiKeyID to its secret value.
type APIKeyStore interface {
	Resolve(ctx context.Context, id domain.ApiKeyID) (string, error)
}

// ParserService parses source code in a given language, extracting the
// nodes matching the requested patterns. The AST is returned as a generic
// tree; concrete parser backends are an external collaborator.
type ParserService interface {
	Parse(ctx context.Context, source, language string, patterns []string) (map[string]any, error)
}

// TemplateRenderer renders a TEMPLATE node's template against a variable
// snapshot.
type TemplateRenderer interface {
	Render(ctx context.Context, template string, vars map[string]any) (string, error)
}

// MessageStore persists event-bus events for post-hoc inspection.
// Append-only; reads are keyed by (execution_id, sequence_no) range.
type MessageStore interface {
	Append(ctx context.Context, executionID domain.ExecutionID, sequenceNo int64, payload []byte) error
	Range(ctx context.Context, executionID domain.ExecutionID, fromSeq, toSeq int64) ([][]byte, error)
}

// SubdiagramExecutor runs a nested diagram to completion and returns its
// terminal output, for SUBDIAGRAM nodes.
type SubdiagramExecutor interface {
	Execute(ctx context.Context, diagramID domain.DiagramID, input domain.Envelope) (domain.Envelope, error)
}
