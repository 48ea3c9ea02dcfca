package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_RepresentationFallsBackToBody(t *testing.T) {
	env := NewEnvelope("raw", "n1", "exec-1", ContentTypeRawText)

	assert.Equal(t, "raw", env.Representation("parsed"))
	assert.False(t, env.HasRepresentation("parsed"))

	withParsed := env.WithRepresentation("parsed", map[string]any{"a": 1})
	assert.True(t, withParsed.HasRepresentation("parsed"))
	assert.Equal(t, map[string]any{"a": 1}, withParsed.Representation("parsed"))

	// The original envelope is untouched.
	assert.False(t, env.HasRepresentation("parsed"))
}

func TestEnvelope_WithRepresentationIsIdempotent(t *testing.T) {
	env := NewEnvelope("raw", "n1", "exec-1", ContentTypeRawText)

	once := env.WithRepresentation("md", "# title")
	twice := once.WithRepresentation("md", "# title")

	assert.Equal(t, once.Representation("md"), twice.Representation("md"))
	assert.True(t, twice.HasRepresentation("md"))
}

func TestEnvelope_WithMetaCopies(t *testing.T) {
	env := NewEnvelope("raw", "n1", "exec-1", ContentTypeRawText)
	tagged := env.WithMeta("status_code", 200)

	require.NotNil(t, tagged.Meta)
	assert.Equal(t, 200, tagged.Meta["status_code"])
	assert.Nil(t, env.Meta)
}

func TestVariables_SnapshotIsDetached(t *testing.T) {
	v := NewVariables()
	v.Set("k", "v1")

	snap := v.Snapshot()
	v.Set("k", "v2")

	assert.Equal(t, "v1", snap["k"])
	assert.Equal(t, "v2", v.Get("k"))
	assert.Equal(t, "v2", v.GetString("k", "fallback"))
	assert.Equal(t, "fallback", v.GetString("missing", "fallback"))
}
