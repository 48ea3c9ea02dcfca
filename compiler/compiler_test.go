package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo-engine/domain"
)

// addHandle registers a handle on d and returns its ID.
func addHandle(d *domain.DomainDiagram, nodeID domain.NodeID, label string, dir domain.Direction, dt domain.DataType) domain.HandleID {
	id := domain.MakeHandleID(nodeID, label, dir)
	d.Handles[id] = domain.DomainHandle{ID: id, NodeID: nodeID, Label: label, Direction: dir, DataType: dt}
	return id
}

func addArrow(d *domain.DomainDiagram, id domain.ArrowID, src, tgt domain.HandleID, ct domain.ContentType) {
	d.Arrows[id] = domain.DomainArrow{ID: id, Source: src, Target: tgt, ContentType: ct}
}

// linearDiagram builds START -> CODE_JOB -> ENDPOINT, all default handles.
func linearDiagram() domain.DomainDiagram {
	d := domain.NewDomainDiagram()

	d.Nodes["start"] = domain.DomainNode{ID: "start", Type: domain.NodeTypeStart}
	d.Nodes["code"] = domain.DomainNode{ID: "code", Type: domain.NodeTypeCodeJob, Data: map[string]any{"code": "print(1)", "language": "python"}}
	d.Nodes["end"] = domain.DomainNode{ID: "end", Type: domain.NodeTypeEndpoint}

	startOut := addHandle(&d, "start", domain.HandleLabelDefault, domain.DirectionOutput, domain.DataTypeAny)
	codeIn := addHandle(&d, "code", domain.HandleLabelDefault, domain.DirectionInput, domain.DataTypeAny)
	codeOut := addHandle(&d, "code", domain.HandleLabelDefault, domain.DirectionOutput, domain.DataTypeAny)
	endIn := addHandle(&d, "end", domain.HandleLabelDefault, domain.DirectionInput, domain.DataTypeAny)

	addArrow(&d, "a1", startOut, codeIn, domain.ContentTypeGeneric)
	addArrow(&d, "a2", codeOut, endIn, domain.ContentTypeGeneric)

	return d
}

func TestCompile_LinearDiagram_Succeeds(t *testing.T) {
	d := linearDiagram()

	exe, result := Compile(d)

	require.True(t, result.Valid, "diagnostics: %+v", result.Diagnostics)
	require.NotNil(t, exe)
	assert.Empty(t, result.Errors())
	assert.Len(t, exe.Nodes, 3)
	assert.Len(t, exe.Edges, 2)
	assert.Contains(t, exe.StartNodes, domain.NodeID("start"))
	assert.Len(t, exe.Outgoing("start"), 1)
	assert.Len(t, exe.Incoming("end"), 1)

	codeNode, ok := exe.Node("code")
	require.True(t, ok)
	cfg, ok := codeNode.Config.(CodeJobConfig)
	require.True(t, ok)
	assert.Equal(t, "python", cfg.Language)
	assert.Equal(t, JoinAll, codeNode.JoinPolicy)
}

func TestCompile_StartWithIncomingEdge_IsFatal(t *testing.T) {
	d := linearDiagram()

	// Wire end -> start directly, violating invariant 3.
	endOut := addHandle(&d, "end", "loop", domain.DirectionOutput, domain.DataTypeAny)
	startIn := addHandle(&d, "start", "loop", domain.DirectionInput, domain.DataTypeAny)
	addArrow(&d, "bad", endOut, startIn, domain.ContentTypeGeneric)

	exe, result := Compile(d)

	assert.False(t, result.Valid)
	assert.Nil(t, exe)
	assert.NotEmpty(t, result.Errors())
}

func TestCompile_ConditionMissingBranch_ReportsError(t *testing.T) {
	d := domain.NewDomainDiagram()
	d.Nodes["start"] = domain.DomainNode{ID: "start", Type: domain.NodeTypeStart}
	d.Nodes["cond"] = domain.DomainNode{
		ID:   "cond",
		Type: domain.NodeTypeCondition,
		Data: map[string]any{"condition_type": "DETECT_MAX_ITERATIONS", "max_iterations": 3},
	}

	startOut := addHandle(&d, "start", domain.HandleLabelDefault, domain.DirectionOutput, domain.DataTypeAny)
	condIn := addHandle(&d, "cond", domain.HandleLabelDefault, domain.DirectionInput, domain.DataTypeAny)
	addHandle(&d, "cond", domain.HandleLabelCondTrue, domain.DirectionOutput, domain.DataTypeAny)
	// condfalse intentionally omitted.

	addArrow(&d, "a1", startOut, condIn, domain.ContentTypeGeneric)

	_, result := Compile(d)

	assert.False(t, result.Valid)
	found := false
	for _, diag := range result.Errors() {
		if diag.Rule == "condition_missing_branch" {
			found = true
		}
	}
	assert.True(t, found, "expected condition_missing_branch diagnostic, got %+v", result.Diagnostics)
}

func TestCompile_IncompatibleDataTypes_IsFatal(t *testing.T) {
	d := domain.NewDomainDiagram()
	d.Nodes["start"] = domain.DomainNode{ID: "start", Type: domain.NodeTypeStart}
	d.Nodes["end"] = domain.DomainNode{ID: "end", Type: domain.NodeTypeEndpoint}

	startOut := addHandle(&d, "start", domain.HandleLabelDefault, domain.DirectionOutput, domain.DataTypeString)
	endIn := addHandle(&d, "end", domain.HandleLabelDefault, domain.DirectionInput, domain.DataTypeNumber)
	addArrow(&d, "a1", startOut, endIn, domain.ContentTypeGeneric)

	_, result := Compile(d)

	assert.False(t, result.Valid)
}

func TestCompile_UnreachableNode_WarnsOnly(t *testing.T) {
	d := linearDiagram()
	d.Nodes["orphan"] = domain.DomainNode{ID: "orphan", Type: domain.NodeTypeCodeJob, Data: map[string]any{"code": "x"}}

	exe, result := Compile(d)

	require.True(t, result.Valid)
	require.NotNil(t, exe)
	assert.NotEmpty(t, result.Warnings())
}

func TestCompile_IsDeterministic(t *testing.T) {
	d := linearDiagram()
	d.Nodes["cond"] = domain.DomainNode{
		ID:   "cond",
		Type: domain.NodeTypeCondition,
		Data: map[string]any{"condition_type": "CUSTOM", "expression": "x > 1"},
	}
	codeOut2 := addHandle(&d, "code", "results", domain.DirectionOutput, domain.DataTypeAny)
	condIn := addHandle(&d, "cond", domain.HandleLabelDefault, domain.DirectionInput, domain.DataTypeAny)
	addHandle(&d, "cond", domain.HandleLabelCondTrue, domain.DirectionOutput, domain.DataTypeAny)
	addHandle(&d, "cond", domain.HandleLabelCondFalse, domain.DirectionOutput, domain.DataTypeAny)
	addArrow(&d, "a3", codeOut2, condIn, domain.ContentTypeObject)

	exe1, res1 := Compile(d)
	exe2, res2 := Compile(d)

	require.True(t, res1.Valid)
	assert.Equal(t, res1.Diagnostics, res2.Diagnostics)
	assert.Equal(t, exe1.Edges, exe2.Edges, "edge order and transform rules must be canonical")
	assert.Equal(t, exe1.Nodes, exe2.Nodes)
	assert.Equal(t, exe1.StartNodes, exe2.StartNodes)
	assert.Equal(t, exe1.IncomingByNode, exe2.IncomingByNode)
	assert.Equal(t, exe1.OutgoingByNode, exe2.OutgoingByNode)
}

func TestCompile_ObjectContentType_GetsConvertRule(t *testing.T) {
	d := linearDiagram()
	a := d.Arrows["a1"]
	a.ContentType = domain.ContentTypeObject
	a.Data = map[string]any{"extract": "user.name", "format": "hi {value}"}
	d.Arrows["a1"] = a

	exe, result := Compile(d)
	require.True(t, result.Valid)

	var edge ExecutableEdge
	for _, e := range exe.Edges {
		if e.ID == "a1" {
			edge = e
		}
	}
	require.Len(t, edge.TransformRules, 3)
	assert.Equal(t, RuleContentTypeConvert, edge.TransformRules[0].Name)
	assert.Equal(t, RuleVariableExtract, edge.TransformRules[1].Name)
	assert.Equal(t, "user.name", edge.TransformRules[1].Params["path"])
	assert.Equal(t, RuleFormatString, edge.TransformRules[2].Name)
}

func TestCompile_PersonJobFirstHint_ExactAndSuffixLabels(t *testing.T) {
	d := domain.NewDomainDiagram()
	d.Nodes["start"] = domain.DomainNode{ID: "start", Type: domain.NodeTypeStart}
	d.Nodes["pj"] = domain.DomainNode{ID: "pj", Type: domain.NodeTypePersonJob, Data: map[string]any{"person_id": "p1"}}

	startOut := addHandle(&d, "start", domain.HandleLabelDefault, domain.DirectionOutput, domain.DataTypeAny)
	exactIn := addHandle(&d, "pj", "first", domain.DirectionInput, domain.DataTypeAny)
	suffixIn := addHandle(&d, "pj", "payload_first", domain.DirectionInput, domain.DataTypeAny)
	plainIn := addHandle(&d, "pj", "default", domain.DirectionInput, domain.DataTypeAny)

	addArrow(&d, "a1", startOut, exactIn, domain.ContentTypeGeneric)
	addArrow(&d, "a2", startOut, suffixIn, domain.ContentTypeGeneric)
	addArrow(&d, "a3", startOut, plainIn, domain.ContentTypeGeneric)

	exe, result := Compile(d)
	require.True(t, result.Valid, "diagnostics: %+v", result.Diagnostics)

	hints := map[domain.ArrowID]bool{}
	for _, e := range exe.Edges {
		hints[e.ID] = e.RuntimeHints.IsFirstOnly
	}
	assert.True(t, hints["a1"], `"first" label gets the first-only hint`)
	assert.True(t, hints["a2"], `"payload_first" label gets the first-only hint`)
	assert.False(t, hints["a3"])
}

func TestResolveJoinPolicy_OverrideAndDefaults(t *testing.T) {
	assert.Equal(t, JoinFirstOnly, resolveJoinPolicy(domain.DomainNode{Type: domain.NodeTypePersonJob}))
	assert.Equal(t, JoinAny, resolveJoinPolicy(domain.DomainNode{Type: domain.NodeTypeEndpoint}))
	assert.Equal(t, JoinAll, resolveJoinPolicy(domain.DomainNode{Type: domain.NodeTypeCodeJob}))
	assert.Equal(t, JoinAny, resolveJoinPolicy(domain.DomainNode{
		Type: domain.NodeTypeCodeJob,
		Data: map[string]any{"join_policy": "ANY"},
	}))
}

func TestCompile_MissingRequiredField_ReportsNodeFactoryError(t *testing.T) {
	d := domain.NewDomainDiagram()
	d.Nodes["job"] = domain.DomainNode{ID: "job", Type: domain.NodeTypeShellJob} // missing "command"

	_, result := Compile(d)

	assert.False(t, result.Valid)
	found := false
	for _, diag := range result.Errors() {
		if diag.Phase == PhaseNodeFactory {
			found = true
		}
	}
	assert.True(t, found)
}
