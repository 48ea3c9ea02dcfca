package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeHandleID_RoundTrips(t *testing.T) {
	tests := []struct {
		nodeID NodeID
		label  string
		dir    Direction
	}{
		{"n1", "default", DirectionOutput},
		{"n1", "first", DirectionInput},
		{"cond", "condtrue", DirectionOutput},
		{"node_with_underscores", "results", DirectionInput},
	}
	for _, tt := range tests {
		id := MakeHandleID(tt.nodeID, tt.label, tt.dir)
		nodeID, label, dir, err := ParseHandleID(id)
		require.NoError(t, err, "id %q", id)
		assert.Equal(t, tt.nodeID, nodeID)
		assert.Equal(t, tt.label, label)
		assert.Equal(t, tt.dir, dir)
	}
}

func TestParseHandleID_Rejects(t *testing.T) {
	for _, bad := range []HandleID{"", "nodefault", "n1_default", "n1_default_sideways"} {
		_, _, _, err := ParseHandleID(bad)
		assert.Error(t, err, "id %q should not parse", bad)
	}
}

func TestDataType_Compatible(t *testing.T) {
	assert.True(t, DataTypeAny.Compatible(DataTypeString))
	assert.True(t, DataTypeString.Compatible(DataTypeAny))
	assert.True(t, DataTypeNumber.Compatible(DataTypeNumber))
	assert.False(t, DataTypeString.Compatible(DataTypeNumber))
}

func TestNewExecutionID_UniqueAndCanonicalLength(t *testing.T) {
	a := NewExecutionID()
	b := NewExecutionID()
	assert.NotEqual(t, a, b)
	assert.Len(t, string(a), 26, "ULID canonical encoding")
}
