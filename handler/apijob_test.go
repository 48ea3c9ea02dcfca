package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
)

func TestApiJobHandler_SuccessCarriesStatusMeta(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "yes", r.Header.Get("X-Custom"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	out, err := ApiJobHandler{}.Execute(context.Background(), nil, Context{
		NodeID:      "api",
		ExecutionID: "exec-1",
		Config:      compiler.ApiJobConfig{URL: ts.URL, Method: "POST", Headers: map[string]string{"X-Custom": "yes"}},
	})

	require.NoError(t, err)
	env := out["default"]
	assert.Equal(t, `{"ok":true}`, env.Body)
	assert.Equal(t, http.StatusOK, env.Meta["status_code"])
}

func TestApiJobHandler_ServerErrorIsRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := ApiJobHandler{}.Execute(context.Background(), nil, Context{
		NodeID: "api",
		Config: compiler.ApiJobConfig{URL: ts.URL, Method: "GET"},
	})

	require.Error(t, err)
	var retryable *RetryableError
	assert.ErrorAs(t, err, &retryable)
}

func TestApiJobHandler_ClientErrorIsTerminal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := ApiJobHandler{}.Execute(context.Background(), nil, Context{
		NodeID: "api",
		Config: compiler.ApiJobConfig{URL: ts.URL, Method: "GET"},
	})

	require.Error(t, err)
	var retryable *RetryableError
	assert.False(t, errors.As(err, &retryable), "4xx must not be retried")
}

func TestApiJobHandler_ForwardsDefaultInputAsBody(t *testing.T) {
	var gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = string(buf)
	}))
	defer ts.Close()

	in := Input{"default": domain.NewEnvelope("payload", "prev", "exec-1", domain.ContentTypeRawText)}
	_, err := ApiJobHandler{}.Execute(context.Background(), in, Context{
		NodeID: "api",
		Config: compiler.ApiJobConfig{URL: ts.URL, Method: "POST"},
	})

	require.NoError(t, err)
	assert.Equal(t, "payload", gotBody)
}
