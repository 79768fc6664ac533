package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
)

func def(name string, deps ...string) ir.NodeDefinition {
	return ir.NodeDefinition{
		Name:             name,
		Dependencies:     deps,
		CreateStatements: []string{"CREATE TABLE " + name + " (x INTEGER)"},
		DeleteStatement:  "DROP TABLE IF EXISTS " + name,
	}
}

func names(defs []ir.NodeDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}

func issueKinds(issues []DependencyIssue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Kind
	}
	return out
}

func TestAnalyzeDependencies_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeDependencies(nil))
}

func TestAnalyzeDependencies_OrderedDAG(t *testing.T) {
	defs := []ir.NodeDefinition{def("a"), def("b", "a"), def("c", "a", "b")}
	assert.Empty(t, AnalyzeDependencies(defs))
}

func TestAnalyzeDependencies_Unknown(t *testing.T) {
	issues := AnalyzeDependencies([]ir.NodeDefinition{def("a", "ghost")})

	require.Len(t, issues, 1)
	assert.Equal(t, IssueUnknown, issues[0].Kind)
	assert.Equal(t, "a", issues[0].Node)
	assert.Equal(t, "ghost", issues[0].Dependency)
}

func TestAnalyzeDependencies_Forward(t *testing.T) {
	issues := AnalyzeDependencies([]ir.NodeDefinition{def("b", "a"), def("a")})

	require.Len(t, issues, 1)
	assert.Equal(t, IssueForward, issues[0].Kind)
	assert.Equal(t, "b", issues[0].Node)
}

func TestAnalyzeDependencies_Self(t *testing.T) {
	issues := AnalyzeDependencies([]ir.NodeDefinition{def("a", "a")})

	require.Len(t, issues, 1)
	assert.Equal(t, IssueSelf, issues[0].Kind)
	assert.Equal(t, []string{"a", "a"}, issues[0].Path)
}

func TestAnalyzeDependencies_Cycle(t *testing.T) {
	defs := []ir.NodeDefinition{def("a", "c"), def("b", "a"), def("c", "b")}
	issues := AnalyzeDependencies(defs)

	// a → c is a forward reference, plus one cycle.
	assert.Equal(t, []string{IssueForward, IssueCycle}, issueKinds(issues))
	cycle := issues[1]
	assert.Equal(t, []string{"a", "c", "b", "a"}, cycle.Path)
	assert.Contains(t, cycle.Message, "a → c → b → a")
}

func TestAnalyzeDependencies_CycleBacktracksDeadEnd(t *testing.T) {
	// b's first edge leads to c, whose only way out is back to b.
	defs := []ir.NodeDefinition{def("a", "b"), def("b", "c", "a"), def("c", "b")}
	issues := AnalyzeDependencies(defs)

	var cycle *DependencyIssue
	for i := range issues {
		if issues[i].Kind == IssueCycle {
			cycle = &issues[i]
		}
	}
	require.NotNil(t, cycle)
	assert.Equal(t, []string{"a", "b", "a"}, cycle.Path)
	assert.Contains(t, cycle.Message, "a → b → a")
}

func TestAnalyzeDependencies_TwoCycles(t *testing.T) {
	defs := []ir.NodeDefinition{
		def("a", "b"), def("b", "a"),
		def("x", "y"), def("y", "x"),
		def("z", "a"),
	}
	issues := AnalyzeDependencies(defs)

	var cycles int
	for _, issue := range issues {
		if issue.Kind == IssueCycle {
			cycles++
		}
	}
	assert.Equal(t, 2, cycles)
}

func TestOrder_AlreadyOrderedUnchanged(t *testing.T) {
	defs := []ir.NodeDefinition{def("a"), def("b", "a"), def("c")}

	ordered, err := Order(defs)
	require.NoError(t, err)
	assert.Equal(t, defs, ordered)
}

func TestOrder_FixesForwardReferences(t *testing.T) {
	defs := []ir.NodeDefinition{def("report", "daily"), def("daily", "raw"), def("raw"), def("other")}

	ordered, err := Order(defs)
	require.NoError(t, err)
	assert.Equal(t, []string{"raw", "daily", "report", "other"}, names(ordered))
}

func TestOrder_StableTieBreak(t *testing.T) {
	defs := []ir.NodeDefinition{def("c"), def("b"), def("a"), def("d", "a")}

	ordered, err := Order(defs)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a", "d"}, names(ordered))
}

func TestOrder_DoesNotMutateInput(t *testing.T) {
	defs := []ir.NodeDefinition{def("b", "a"), def("a")}

	_, err := Order(defs)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, names(defs))
}

func TestOrder_UnknownDependency(t *testing.T) {
	_, err := Order([]ir.NodeDefinition{def("a", "ghost")})

	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, []string{IssueUnknown}, issueKinds(depErr.Issues))
	assert.Contains(t, err.Error(), "ghost")
}

func TestOrder_Cycle(t *testing.T) {
	_, err := Order([]ir.NodeDefinition{def("a", "b"), def("b", "a")})

	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, []string{IssueCycle}, issueKinds(depErr.Issues))
}

func TestOrder_SelfDependency(t *testing.T) {
	_, err := Order([]ir.NodeDefinition{def("a", "a")})

	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, []string{IssueSelf}, issueKinds(depErr.Issues))
}
