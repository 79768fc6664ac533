package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/store"
)

const brokenSQLSpec = `
package pipeline

pipeline: "analytics"

node: orders_raw: {
	create: ["CREATE TABLE orders_raw (id INTEGER PRIMARY KEY, amount INTEGER)"]
	delete: "DROP TABLE IF EXISTS orders_raw"
}

node: broken: {
	dependencies: ["orders_raw"]
	create: ["CREATE TABLE broken AS SELECT * FROM no_such_table"]
	delete: "DROP TABLE IF EXISTS broken"
}
`

func openTestStore(t *testing.T, dsn string) *store.Store {
	t.Helper()
	st, err := store.Open(store.DriverSQLite3, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRefresh_FirstRunAndRerun(t *testing.T) {
	specs := writeSpecs(t, analyticsSpec)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	out, _, err := execute(t, "--dsn", dsn, "refresh", specs)
	require.NoError(t, err)
	assert.Contains(t, out, "Pipeline analytics")
	assert.Contains(t, out, "rebuild  orders_raw")
	assert.Contains(t, out, "rebuild  orders_total")
	assert.Contains(t, out, "Rebuilt: 2  Refreshed: 0  Reaped: 0  Unchanged: 0")

	out, _, err = execute(t, "--dsn", dsn, "refresh", specs)
	require.NoError(t, err)
	assert.Contains(t, out, "skip     orders_raw")
	assert.Contains(t, out, "refresh  orders_total")
	assert.Contains(t, out, "Rebuilt: 0  Refreshed: 1  Reaped: 0  Unchanged: 1")
}

func TestRefresh_JSON(t *testing.T) {
	specs := writeSpecs(t, analyticsSpec)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	out, _, err := execute(t, "--dsn", dsn, "--format", "json", "refresh", specs)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   RefreshSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "analytics", resp.Data.Pipeline)
	assert.NotEmpty(t, resp.Data.RunID)
	assert.Equal(t, 2, resp.Data.Rebuilt)
	require.Len(t, resp.Data.Actions, 2)
	assert.Equal(t, engine.ActionRebuild, resp.Data.Actions[0].Kind)
}

func TestRefresh_PipelineFlagOverridesDeclaredName(t *testing.T) {
	specs := writeSpecs(t, analyticsSpec)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	_, _, err := execute(t, "--dsn", dsn, "--pipeline", "reporting", "refresh", specs)
	require.NoError(t, err)

	st := openTestStore(t, dsn)
	states, err := st.FindStates(t.Context(), ir.StateFilter{Pipeline: "reporting"})
	require.NoError(t, err)
	assert.Len(t, states, 2)

	states, err = st.FindStates(t.Context(), ir.StateFilter{Pipeline: "analytics"})
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestRefresh_StatementFailure(t *testing.T) {
	specs := writeSpecs(t, brokenSQLSpec)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	out, _, err := execute(t, "--dsn", dsn, "refresh", specs)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.True(t, engine.IsStatementError(err))
	assert.Contains(t, out, "rebuild  orders_raw", "completed actions are still reported")
	assert.Contains(t, out, "Error [STATEMENT_FAILED]")

	st := openTestStore(t, dsn)
	runs, err := st.ListRuns(t.Context(), "analytics", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ir.RunStatusFailed, runs[0].Status)
	assert.Equal(t, 1, runs[0].Rebuilt)
	assert.Contains(t, runs[0].Error, "no_such_table")
}

func TestRefresh_StatementFailureJSON(t *testing.T) {
	specs := writeSpecs(t, brokenSQLSpec)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	out, _, err := execute(t, "--dsn", dsn, "--format", "json", "refresh", specs)
	require.Error(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   RefreshSummary `json:"data"`
		Error  CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, string(engine.ErrCodeStatementFailed), resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Rebuilt)
}

func TestRefresh_InvalidSpecsIsCommandError(t *testing.T) {
	specs := writeSpecs(t, `
package pipeline

node: a: {
	dependencies: ["missing"]
	create: ["CREATE TABLE a (x INTEGER)"]
	delete: "DROP TABLE IF EXISTS a"
}
`)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	out, _, err := execute(t, "--dsn", dsn, "refresh", specs)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, out, "E110")
}

func TestRefresh_MissingSpecsDir(t *testing.T) {
	out, _, err := execute(t, "refresh", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestRefresh_Only(t *testing.T) {
	specs := writeSpecs(t, analyticsSpec)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	_, _, err := execute(t, "--dsn", dsn, "refresh", specs)
	require.NoError(t, err)

	// Only orders_total's state is loaded, so orders_raw looks new while
	// orders_total keeps its hash and is refreshed.
	out, _, err := execute(t, "--dsn", dsn, "refresh", specs, "--only", "orders_total")
	require.NoError(t, err)
	assert.Contains(t, out, "rebuild  orders_raw")
	assert.Contains(t, out, "refresh  orders_total")
}

func TestRefresh_StandaloneWithFixedRunID(t *testing.T) {
	t.Chdir(t.TempDir())
	specs := writeSpecs(t, analyticsSpec)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	cmd := newRefreshCommand(&RefreshOptions{
		RootOptions: &RootOptions{Format: "text", DSN: dsn},
		RunIDs:      engine.NewFixedGenerator("run-1"),
	})

	out, err := runCommand(t, cmd, specs)
	require.NoError(t, err)
	assert.Contains(t, out, "Pipeline analytics (run run-1)")

	st := openTestStore(t, dsn)
	runs, err := st.ListRuns(t.Context(), "analytics", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, ir.RunStatusSucceeded, runs[0].Status)
	assert.Equal(t, 2, runs[0].Rebuilt)
}

func TestRefresh_Strict(t *testing.T) {
	specs := writeSpecs(t, `
package pipeline

node: b: {
	dependencies: ["a"]
	create: ["CREATE TABLE b AS SELECT x FROM a"]
	delete: "DROP TABLE IF EXISTS b"
}

node: a: {
	create: ["CREATE TABLE a AS SELECT 1 AS x"]
	delete: "DROP TABLE IF EXISTS a"
}
`)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	out, _, err := execute(t, "--dsn", dsn, "refresh", specs, "--strict")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, out, compiler.ErrForwardDependency)

	out, _, err = execute(t, "--dsn", dsn, "plan", specs, "--strict")
	require.Error(t, err)
	assert.Contains(t, out, compiler.ErrForwardDependency)

	// Without --strict the forward reference is reordered.
	out, _, err = execute(t, "--dsn", dsn, "refresh", specs)
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "rebuild  a"), strings.Index(out, "rebuild  b"))
	assert.Contains(t, out, "Pipeline default")
}

func TestPlan_DoesNotExecute(t *testing.T) {
	specs := writeSpecs(t, analyticsSpec)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	out, _, err := execute(t, "--dsn", dsn, "-v", "plan", specs)
	require.NoError(t, err)
	assert.Contains(t, out, "rebuild  orders_raw")
	assert.Contains(t, out, "DROP TABLE IF EXISTS orders_raw")
	assert.NotContains(t, out, "(run ")

	st := openTestStore(t, dsn)
	states, err := st.FindStates(t.Context(), ir.StateFilter{Pipeline: "analytics"})
	require.NoError(t, err)
	assert.Empty(t, states)
	runs, err := st.ListRuns(t.Context(), "analytics", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestPlan_AfterRefresh(t *testing.T) {
	specs := writeSpecs(t, analyticsSpec)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	_, _, err := execute(t, "--dsn", dsn, "refresh", specs)
	require.NoError(t, err)

	out, _, err := execute(t, "--dsn", dsn, "--format", "json", "plan", specs)
	require.NoError(t, err)

	var resp struct {
		Data RefreshSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Refreshed)
	assert.Equal(t, 1, resp.Data.Unchanged)
	assert.Empty(t, resp.Data.RunID)
}

func TestStatus(t *testing.T) {
	specs := writeSpecs(t, analyticsSpec)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	_, _, err := execute(t, "--dsn", dsn, "refresh", specs)
	require.NoError(t, err)

	out, _, err := execute(t, "--dsn", dsn, "--pipeline", "analytics", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pipeline analytics: 2 node(s)")
	assert.Contains(t, out, "orders_raw")

	out, _, err = execute(t, "--dsn", dsn, "--format", "json", "status", "--all")
	require.NoError(t, err)
	var resp struct {
		Data []PipelineStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "analytics", resp.Data[0].Pipeline)
	assert.Len(t, resp.Data[0].Nodes, 2)
}

func TestStatus_NoPipelines(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "strata.db")

	out, _, err := execute(t, "--dsn", dsn, "status", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "No pipelines have persisted state.")
}

func TestHistory(t *testing.T) {
	specs := writeSpecs(t, analyticsSpec)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	for range 3 {
		_, _, err := execute(t, "--dsn", dsn, "refresh", specs)
		require.NoError(t, err)
	}

	out, _, err := execute(t, "--dsn", dsn, "--pipeline", "analytics", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "RUN")
	assert.Equal(t, 3, strings.Count(out, ir.RunStatusSucceeded))

	out, _, err = execute(t, "--dsn", dsn, "--pipeline", "analytics", "--format", "json", "history", "--limit", "2")
	require.NoError(t, err)
	var resp struct {
		Data []ir.RunRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Data, 2)
}

func TestHistory_Empty(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "strata.db")

	out, _, err := execute(t, "--dsn", dsn, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded for pipeline default.")
}

func TestStatusAndHistory_DeclaredPipeline(t *testing.T) {
	specs := writeSpecs(t, analyticsSpec)
	dsn := filepath.Join(t.TempDir(), "strata.db")

	_, _, err := execute(t, "--dsn", dsn, "refresh", specs)
	require.NoError(t, err)

	out, _, err := execute(t, "--dsn", dsn, "status", specs)
	require.NoError(t, err)
	assert.Contains(t, out, "Pipeline analytics: 2 node(s)")

	out, _, err = execute(t, "--dsn", dsn, "history", specs)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, ir.RunStatusSucceeded))

	// An explicit --pipeline still wins over the declared name.
	out, _, err = execute(t, "--dsn", dsn, "--pipeline", "other", "history", specs)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded for pipeline other.")
}

func TestHistory_SpecsSettingResolvesPipeline(t *testing.T) {
	specs := writeSpecs(t, analyticsSpec)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "strata.yaml")
	cfg := "dsn: " + filepath.Join(dir, "strata.db") + "\nspecs: " + specs + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	_, _, err := execute(t, "--config", cfgPath, "refresh")
	require.NoError(t, err)

	out, _, err := execute(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, ir.RunStatusSucceeded))
}

func TestStatus_MissingSpecsDir(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "strata.db")

	out, _, err := execute(t, "--dsn", dsn, "status", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}
