// ABOUTME: Typed string identifiers for diagram entities, plus ULID-backed execution IDs.
// ABOUTME: Centralizes ID generation so all code uses the same entropy source.
package domain

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// NodeID identifies a node within a diagram.
type NodeID string

// ArrowID identifies an arrow (directed connection) within a diagram.
type ArrowID string

// HandleID identifies a named input/output slot on a node.
type HandleID string

// PersonID identifies an LLM-participant configuration.
type PersonID string

// ApiKeyID identifies a stored API key.
type ApiKeyID string

// DiagramID identifies a domain diagram.
type DiagramID string

// ExecutionID identifies a single diagram execution. Minted as a ULID so
// executions sort chronologically in logs and stores without an extra
// timestamp column.
type ExecutionID string

// NewExecutionID generates a new ExecutionID using crypto/rand entropy.
func NewExecutionID() ExecutionID {
	return ExecutionID(ulid.MustNew(ulid.Now(), rand.Reader).String())
}
