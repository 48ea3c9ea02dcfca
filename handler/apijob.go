// ABOUTME: ApiJobHandler performs one HTTP request for an API_JOB node. 5xx responses are
// ABOUTME: surfaced as retryable so the engine's backoff policy applies; 4xx are terminal.
package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
)

// RetryableError wraps an error a handler considers transient. The engine
// maps it onto a retryable EXTERNAL_SERVICE error and applies its backoff
// policy.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// ApiJobHandler issues the configured HTTP request, using the resolved
// "default" input as the request body when present, and returns the
// response body on the "default" port with the status code in Meta.
type ApiJobHandler struct {
	// Client defaults to http.DefaultClient when nil. Request deadlines
	// come from ctx (the engine's per-node timeout), not the client.
	Client *http.Client
}

func (ApiJobHandler) Type() domain.NodeType { return domain.NodeTypeApiJob }

func (h ApiJobHandler) Execute(ctx context.Context, in Input, hctx Context) (Output, error) {
	cfg, ok := hctx.Config.(compiler.ApiJobConfig)
	if !ok {
		return nil, fmt.Errorf("api job handler: node %q has no ApiJobConfig", hctx.NodeID)
	}

	var body io.Reader
	if def, ok := in["default"]; ok {
		body = strings.NewReader(fmt.Sprint(def.Representation("resolved")))
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, body)
	if err != nil {
		return nil, fmt.Errorf("api job %q: build request: %w", hctx.NodeID, err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &RetryableError{Err: fmt.Errorf("api job %q: %w", hctx.NodeID, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("api job %q: read response: %w", hctx.NodeID, err)
	}

	if resp.StatusCode >= 500 {
		return nil, &RetryableError{Err: fmt.Errorf("api job %q: server returned %d", hctx.NodeID, resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api job %q: server returned %d", hctx.NodeID, resp.StatusCode)
	}

	env := domain.NewEnvelope(string(data), hctx.NodeID, hctx.ExecutionID, domain.ContentTypeRawText).
		WithMeta("status_code", resp.StatusCode)
	return Output{"default": env}, nil
}
