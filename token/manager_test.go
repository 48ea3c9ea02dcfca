package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func diagramWithJoinAll() *compiler.ExecutableDiagram {
	edges := []compiler.ExecutableEdge{
		{ID: "a1", SourceNode: "n1", TargetNode: "join", SourceOutputPort: "default", TargetInputPort: "x"},
		{ID: "a2", SourceNode: "n2", TargetNode: "join", SourceOutputPort: "default", TargetInputPort: "y"},
	}
	return &compiler.ExecutableDiagram{
		Nodes: map[domain.NodeID]compiler.ExecutableNode{
			"n1":   {ID: "n1", Type: domain.NodeTypeStart, JoinPolicy: compiler.JoinAll},
			"n2":   {ID: "n2", Type: domain.NodeTypeStart, JoinPolicy: compiler.JoinAll},
			"join": {ID: "join", Type: domain.NodeTypeCodeJob, JoinPolicy: compiler.JoinAll},
		},
		Edges:          edges,
		IncomingByNode: map[domain.NodeID][]compiler.ExecutableEdge{"join": edges},
		OutgoingByNode: map[domain.NodeID][]compiler.ExecutableEdge{"n1": {edges[0]}, "n2": {edges[1]}},
		StartNodes:     map[domain.NodeID]struct{}{"n1": {}, "n2": {}},
		ConditionNodes: map[domain.NodeID]struct{}{},
	}
}

func env(body string) domain.Envelope {
	return domain.NewEnvelope(body, "src", "exec-1", domain.ContentTypeRawText)
}

func TestManager_JoinAll_RequiresEveryEdge(t *testing.T) {
	d := diagramWithJoinAll()
	m := NewManager(d)

	m.EmitOutputs("n1", map[string]domain.Envelope{"default": env("from-n1")}, 0)
	assert.False(t, m.HasNewInputs("join", 0), "should not be ready with only one of two edges fed")

	m.EmitOutputs("n2", map[string]domain.Envelope{"default": env("from-n2")}, 0)
	assert.True(t, m.HasNewInputs("join", 0))

	got := m.ConsumeInbound("join")
	require.Len(t, got, 2)
	assert.Equal(t, "from-n1", got["a1"].Body)
	assert.Equal(t, "from-n2", got["a2"].Body)

	// Consumption is destructive: a second consume finds nothing ready.
	assert.False(t, m.HasNewInputs("join", 0))
	assert.Empty(t, m.ConsumeInbound("join"))
	assert.Equal(t, 1, m.FireCount("join"))
}

func diagramWithJoinAny() *compiler.ExecutableDiagram {
	edges := []compiler.ExecutableEdge{
		{ID: "a1", SourceNode: "n1", TargetNode: "join", SourceOutputPort: "default", TargetInputPort: "x"},
		{ID: "a2", SourceNode: "n2", TargetNode: "join", SourceOutputPort: "default", TargetInputPort: "y"},
	}
	return &compiler.ExecutableDiagram{
		Nodes: map[domain.NodeID]compiler.ExecutableNode{
			"n1":   {ID: "n1", Type: domain.NodeTypeStart, JoinPolicy: compiler.JoinAll},
			"n2":   {ID: "n2", Type: domain.NodeTypeStart, JoinPolicy: compiler.JoinAll},
			"join": {ID: "join", Type: domain.NodeTypeEndpoint, JoinPolicy: compiler.JoinAny},
		},
		Edges:          edges,
		IncomingByNode: map[domain.NodeID][]compiler.ExecutableEdge{"join": edges},
		OutgoingByNode: map[domain.NodeID][]compiler.ExecutableEdge{"n1": {edges[0]}, "n2": {edges[1]}},
		StartNodes:     map[domain.NodeID]struct{}{"n1": {}, "n2": {}},
		ConditionNodes: map[domain.NodeID]struct{}{},
	}
}

func TestManager_JoinAny_FiresOnFirstEdge(t *testing.T) {
	d := diagramWithJoinAny()
	m := NewManager(d)

	m.EmitOutputs("n1", map[string]domain.Envelope{"default": env("from-n1")}, 0)
	assert.True(t, m.HasNewInputs("join", 0))

	got := m.ConsumeInbound("join")
	require.Len(t, got, 1)
	assert.Equal(t, "from-n1", got["a1"].Body)
}

func TestManager_BeginEpoch_DropsStaleTokens(t *testing.T) {
	d := diagramWithJoinAll()
	m := NewManager(d)

	m.EmitOutputs("n1", map[string]domain.Envelope{"default": env("stale")}, 0)
	next := m.BeginEpoch()
	assert.Equal(t, 1, next)

	assert.False(t, m.hasTokenAtOrAfter("a1", 1), "epoch-0 token should be dropped on transition to epoch 1")
}

func TestManager_NodeWithNoInboundEdges_NeverReadyThroughManager(t *testing.T) {
	d := diagramWithJoinAll()
	m := NewManager(d)

	// n1 is a start node with no inbound edges; it's seeded directly by
	// the engine rather than becoming ready via the token protocol.
	assert.False(t, m.HasNewInputs("n1", 0))
}

func TestManager_PerEdgeOrderingPreserved(t *testing.T) {
	d := diagramWithJoinAny()
	m := NewManager(d)

	m.EmitOutputs("n1", map[string]domain.Envelope{"default": env("first")}, 0)
	m.EmitOutputs("n1", map[string]domain.Envelope{"default": env("second")}, 0)

	got := m.ConsumeInbound("join")
	require.Len(t, got, 1)
	assert.Equal(t, "first", got["a1"].Body)

	got = m.ConsumeInbound("join")
	require.Len(t, got, 1)
	assert.Equal(t, "second", got["a1"].Body)
}

func diagramWithFirstOnly() *compiler.ExecutableDiagram {
	edges := []compiler.ExecutableEdge{
		{ID: "first", SourceNode: "n1", TargetNode: "pj", SourceOutputPort: "default", TargetInputPort: "first",
			RuntimeHints: compiler.RuntimeHints{IsFirstOnly: true}},
		{ID: "loop", SourceNode: "n2", TargetNode: "pj", SourceOutputPort: "condtrue", TargetInputPort: "default"},
	}
	return &compiler.ExecutableDiagram{
		Nodes: map[domain.NodeID]compiler.ExecutableNode{
			"n1": {ID: "n1", Type: domain.NodeTypeStart, JoinPolicy: compiler.JoinAll},
			"n2": {ID: "n2", Type: domain.NodeTypeCondition, JoinPolicy: compiler.JoinAll},
			"pj": {ID: "pj", Type: domain.NodeTypePersonJob, JoinPolicy: compiler.JoinFirstOnly},
		},
		Edges:          edges,
		IncomingByNode: map[domain.NodeID][]compiler.ExecutableEdge{"pj": edges},
		OutgoingByNode: map[domain.NodeID][]compiler.ExecutableEdge{"n1": {edges[0]}, "n2": {edges[1]}},
		StartNodes:     map[domain.NodeID]struct{}{"n1": {}},
		ConditionNodes: map[domain.NodeID]struct{}{"n2": {}},
	}
}

func TestManager_FirstOnly_SwitchesMandatoryEdgeAcrossFirings(t *testing.T) {
	d := diagramWithFirstOnly()
	m := NewManager(d)

	// Before the first firing, only the "first" edge gates readiness.
	m.EmitOutputs("n2", map[string]domain.Envelope{"condtrue": env("loop-back")}, 0)
	assert.False(t, m.HasNewInputs("pj", 0), "loop edge alone must not fire a first execution")

	m.EmitOutputs("n1", map[string]domain.Envelope{"default": env("seed")}, 0)
	require.True(t, m.HasNewInputs("pj", 0))

	// The firing drains both edges (the pending loop token is consumed too).
	got := m.ConsumeInbound("pj")
	assert.Len(t, got, 2)

	// After the first firing, the loop edge is the mandatory one.
	m.EmitOutputs("n1", map[string]domain.Envelope{"default": env("seed-again")}, 0)
	assert.False(t, m.HasNewInputs("pj", 0), "first edge no longer gates later firings")

	m.EmitOutputs("n2", map[string]domain.Envelope{"condtrue": env("loop-back")}, 0)
	assert.True(t, m.HasNewInputs("pj", 0))
}

func TestManager_TokenConservation(t *testing.T) {
	d := diagramWithJoinAll()
	m := NewManager(d)

	emitted := 0
	for i := 0; i < 3; i++ {
		m.EmitOutputs("n1", map[string]domain.Envelope{"default": env("x")}, 0)
		m.EmitOutputs("n2", map[string]domain.Envelope{"default": env("y")}, 0)
		emitted += 2
	}

	consumed := 0
	for m.HasNewInputs("join", 0) {
		consumed += len(m.ConsumeInbound("join"))
	}
	assert.Equal(t, emitted, consumed, "every emitted token is consumed, none duplicated or lost")
}

func TestManager_Restore_SeedsEpochAndFireCounts(t *testing.T) {
	d := diagramWithJoinAll()
	m := NewManager(d)

	m.Restore(3, map[domain.NodeID]int{"join": 2})

	assert.Equal(t, 3, m.CurrentEpoch())
	assert.Equal(t, 2, m.FireCount("join"))
}
