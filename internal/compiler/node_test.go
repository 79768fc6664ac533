package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return v
}

func TestCompileNodeBasic(t *testing.T) {
	v := compile(t, `
		node: orders_daily: {
			dependencies: ["orders"]
			create: ["CREATE TABLE orders_daily AS SELECT * FROM orders"]
			refresh: ["DELETE FROM orders_daily", "INSERT INTO orders_daily SELECT * FROM orders"]
			delete: "DROP TABLE IF EXISTS orders_daily"
		}
	`)

	def, err := CompileNode(v.LookupPath(cue.ParsePath("node.orders_daily")))
	require.NoError(t, err)

	assert.Equal(t, "orders_daily", def.Name)
	assert.Equal(t, []string{"orders"}, def.Dependencies)
	assert.Equal(t, []string{"CREATE TABLE orders_daily AS SELECT * FROM orders"}, def.CreateStatements)
	assert.Len(t, def.RefreshStatements, 2)
	assert.Equal(t, "DROP TABLE IF EXISTS orders_daily", def.DeleteStatement)
}

func TestCompileNodeOptionalFields(t *testing.T) {
	v := compile(t, `
		node: raw: {
			create: ["CREATE TABLE raw (x INTEGER)"]
			delete: "DROP TABLE IF EXISTS raw"
		}
	`)

	def, err := CompileNode(v.LookupPath(cue.ParsePath("node.raw")))
	require.NoError(t, err)
	assert.Nil(t, def.Dependencies)
	assert.Nil(t, def.RefreshStatements)
	assert.False(t, def.HasRefresh())
}

func TestCompileNodeEmptyRefreshKept(t *testing.T) {
	v := compile(t, `
		node: raw: {
			create: ["CREATE TABLE raw (x INTEGER)"]
			refresh: []
			delete: "DROP TABLE IF EXISTS raw"
		}
	`)

	def, err := CompileNode(v.LookupPath(cue.ParsePath("node.raw")))
	require.NoError(t, err)
	assert.NotNil(t, def.RefreshStatements)
	assert.True(t, def.HasRefresh())
}

func TestCompileNodeMissingCreate(t *testing.T) {
	v := compile(t, `node: a: { delete: "DROP TABLE a" }`)

	_, err := CompileNode(v.LookupPath(cue.ParsePath("node.a")))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "node.a.create", ce.Field)
}

func TestCompileNodeEmptyCreate(t *testing.T) {
	v := compile(t, `node: a: { create: [], delete: "DROP TABLE a" }`)

	_, err := CompileNode(v.LookupPath(cue.ParsePath("node.a")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one create statement")
}

func TestCompileNodeMissingDelete(t *testing.T) {
	v := compile(t, `node: a: { create: ["CREATE TABLE a (x INTEGER)"] }`)

	_, err := CompileNode(v.LookupPath(cue.ParsePath("node.a")))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "node.a.delete", ce.Field)
}

func TestCompileNodeWrongType(t *testing.T) {
	v := compile(t, `node: a: { create: "CREATE TABLE a (x INTEGER)", delete: "DROP TABLE a" }`)

	_, err := CompileNode(v.LookupPath(cue.ParsePath("node.a")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a list of strings")
}

func TestCompileNodeNonStringElement(t *testing.T) {
	v := compile(t, `node: a: { create: [1], delete: "DROP TABLE a" }`)

	_, err := CompileNode(v.LookupPath(cue.ParsePath("node.a")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node.a.create")
}

func TestCompilePipeline(t *testing.T) {
	v := compile(t, `
		pipeline: "analytics"
		node: raw: {
			create: ["CREATE TABLE raw (x INTEGER)"]
			delete: "DROP TABLE IF EXISTS raw"
		}
		node: daily: {
			dependencies: ["raw"]
			create: ["CREATE TABLE daily AS SELECT x FROM raw"]
			delete: "DROP TABLE IF EXISTS daily"
		}
	`)

	p, err := CompilePipeline(v)
	require.NoError(t, err)

	assert.Equal(t, "analytics", p.Name)
	require.Len(t, p.Nodes, 2)
	assert.Equal(t, "raw", p.Nodes[0].Name)
	assert.Equal(t, "daily", p.Nodes[1].Name)
}

func TestCompilePipelineNoName(t *testing.T) {
	v := compile(t, `node: raw: { create: ["CREATE TABLE raw (x INTEGER)"], delete: "DROP TABLE raw" }`)

	p, err := CompilePipeline(v)
	require.NoError(t, err)
	assert.Empty(t, p.Name)
	assert.Len(t, p.Nodes, 1)
}

func TestCompilePipelineEmpty(t *testing.T) {
	p, err := CompilePipeline(compile(t, `pipeline: "empty"`))
	require.NoError(t, err)
	assert.Empty(t, p.Nodes)
}

func TestCompilePipelineBadName(t *testing.T) {
	_, err := CompilePipeline(compile(t, `pipeline: 42`))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "pipeline", ce.Field)
}

func TestCompilePipelineNodeError(t *testing.T) {
	v := compile(t, `node: broken: { create: ["CREATE TABLE broken (x INTEGER)"] }`)

	_, err := CompilePipeline(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node.broken.delete")
}

func TestCompileErrorFormat(t *testing.T) {
	e := &CompileError{Field: "node.a.create", Message: "required"}
	assert.Equal(t, "node.a.create: required", e.Error())
}
