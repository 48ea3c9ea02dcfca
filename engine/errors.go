// ABOUTME: ErrorKind and NodeError classify handler failures for propagation.
// ABOUTME: classify maps an arbitrary error onto the kind that decides retry and termination behavior.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dipeo/dipeo-engine/handler"
	"github.com/dipeo/dipeo-engine/resolve"
)

// ErrorKind names a class of execution failure.
type ErrorKind string

const (
	ErrValidation            ErrorKind = "VALIDATION"
	ErrInputResolutionFailed ErrorKind = "INPUT_RESOLUTION_FAILED"
	ErrHandlerFailed         ErrorKind = "HANDLER_FAILED"
	ErrHandlerTimeout        ErrorKind = "HANDLER_TIMEOUT"
	ErrExternalService       ErrorKind = "EXTERNAL_SERVICE"
	ErrCancelled             ErrorKind = "CANCELLED"
	ErrInternal              ErrorKind = "INTERNAL"
)

// NodeError is the typed error a handler (or the engine itself) raises.
// Retryable handler failures are retried per RetryPolicy; INTERNAL errors
// abort the whole execution.
type NodeError struct {
	Kind      ErrorKind
	Retryable bool
	Err       error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// classify maps an arbitrary error returned by a handler (or the resolver)
// onto a NodeError. A plain error defaults to HANDLER_FAILED and
// non-retryable — the common case; handlers that want retry return a
// *RetryableError or a *NodeError with Retryable set.
func classify(err error) *NodeError {
	if err == nil {
		return nil
	}
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne
	}
	var fatal *resolve.FatalError
	if errors.As(err, &fatal) {
		return &NodeError{Kind: ErrInputResolutionFailed, Retryable: false, Err: err}
	}
	var transient *handler.RetryableError
	if errors.As(err, &transient) {
		return &NodeError{Kind: ErrExternalService, Retryable: true, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &NodeError{Kind: ErrCancelled, Retryable: false, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &NodeError{Kind: ErrHandlerTimeout, Retryable: false, Err: err}
	}
	return &NodeError{Kind: ErrHandlerFailed, Retryable: false, Err: err}
}
