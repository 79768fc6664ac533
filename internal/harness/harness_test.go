package harness

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/testutil"
)

func node(name string, deps ...string) ir.NodeDefinition {
	return ir.NodeDefinition{
		Name:             name,
		Dependencies:     deps,
		CreateStatements: []string{"CREATE TABLE " + name + " (x INTEGER)"},
		DeleteStatement:  "DROP TABLE IF EXISTS " + name,
	}
}

func TestScenarioFiles(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Steps, len(s.Steps))
		})
	}
}

func TestRun_StepNamesDefault(t *testing.T) {
	s := &Scenario{
		Name:        "names",
		Description: "d",
		Steps:       []Step{{Nodes: []ir.NodeDefinition{node("a")}}, {Nodes: []ir.NodeDefinition{node("a")}}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, "step-1", result.Steps[0].Name)
	assert.Equal(t, "step-2", result.Steps[1].Name)
}

func TestRun_TraceIsPerStep(t *testing.T) {
	s := &Scenario{
		Name:        "per_step",
		Description: "d",
		Steps:       []Step{{Nodes: []ir.NodeDefinition{node("a")}}, {Nodes: []ir.NodeDefinition{node("a")}}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Len(t, result.Steps[0].Trace, 4)
	assert.Empty(t, result.Steps[1].Trace)
	assert.Equal(t, []ActionTrace{{Node: "a", Kind: "skip"}}, result.Steps[1].Actions)
}

func TestRun_UnexpectedError(t *testing.T) {
	s := &Scenario{
		Name:        "unexpected",
		Description: "d",
		Steps:       []Step{{Nodes: []ir.NodeDefinition{node("a")}, FailOn: []string{"CREATE"}}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "STATEMENT_FAILED", result.Steps[0].ErrorCode)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	s := &Scenario{
		Name:        "missing_error",
		Description: "d",
		Steps:       []Step{{Nodes: []ir.NodeDefinition{node("a")}, ExpectError: "STATEMENT_FAILED"}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "refresh succeeded")
}

func TestRun_ExpectedErrorWrongCode(t *testing.T) {
	s := &Scenario{
		Name:        "wrong_code",
		Description: "d",
		Strict:      true,
		Steps: []Step{{
			Nodes:       []ir.NodeDefinition{node("b", "a"), node("a")},
			ExpectError: "STATEMENT_FAILED",
		}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "UNKNOWN_DEPENDENCY", result.Steps[0].ErrorCode)
	assert.Contains(t, result.Errors[0], "got UNKNOWN_DEPENDENCY")
}

func TestRun_FailuresClearedBetweenSteps(t *testing.T) {
	s := &Scenario{
		Name:        "cleared",
		Description: "d",
		Steps: []Step{
			{Nodes: []ir.NodeDefinition{node("a")}, FailOn: []string{"CREATE"}, ExpectError: "STATEMENT_FAILED"},
			{Nodes: []ir.NodeDefinition{node("a")}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []ActionTrace{{Node: "a", Kind: "rebuild"}}, result.Steps[1].Actions)
}

func TestRun_Only(t *testing.T) {
	s := &Scenario{
		Name:        "only",
		Description: "d",
		Steps: []Step{
			{Nodes: []ir.NodeDefinition{node("a"), node("b")}},
			{Nodes: []ir.NodeDefinition{node("a"), node("b")}, Only: []string{"b"}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, []ActionTrace{{Node: "a", Kind: "rebuild"}, {Node: "b", Kind: "skip"}}, result.Steps[1].Actions)
}

func TestRun_SetupFailureIsError(t *testing.T) {
	s := &Scenario{
		Name:        "bad_setup",
		Description: "d",
		Steps:       []Step{{Setup: []string{"INSERT INTO nowhere VALUES (1)"}}},
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup")
}

func TestRun_BadSpecsIsError(t *testing.T) {
	s := &Scenario{
		Name:        "bad_specs",
		Description: "d",
		Steps:       []Step{{Specs: t.TempDir()}},
	}

	_, err := Run(s)
	require.Error(t, err)
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/failure_retry.yaml")
	require.NoError(t, err)

	r1, err := Run(s)
	require.NoError(t, err)
	r2, err := Run(s)
	require.NoError(t, err)

	j1, err := Snapshot(s, r1)
	require.NoError(t, err)
	j2, err := Snapshot(s, r2)
	require.NoError(t, err)
	assert.Equal(t, string(j1), string(j2))
}

func TestHarness_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := &Scenario{
		Name:        "logged",
		Description: "d",
		RunID:       "run-logged",
		Steps:       []Step{{Name: "only-step", Nodes: []ir.NodeDefinition{node("a")}}},
	}

	_, err := New(WithLogger(logger)).Run(context.Background(), s)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "scenario step completed")
	assert.Contains(t, out, "step=only-step")
	assert.Contains(t, out, "run_id=run-logged")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestTraceEventAlias(t *testing.T) {
	var ev TraceEvent = testutil.Event{Seq: 1, Kind: testutil.EventBegin}
	assert.Equal(t, testutil.EventBegin, ev.Kind)
}
