package store

// Metadata DDL. Every statement is portable between SQLite and PostgreSQL
// and safe to re-run.
const (
	createMeta = `CREATE TABLE IF NOT EXISTS strata_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`

	createNodeState = `CREATE TABLE IF NOT EXISTS strata_node_state (
    pipeline          TEXT NOT NULL,
    name              TEXT NOT NULL,
    content_hash      TEXT NOT NULL,
    cleanup_statement TEXT NOT NULL,
    updated_at        TEXT NOT NULL,
    PRIMARY KEY (pipeline, name)
)`

	createRuns = `CREATE TABLE IF NOT EXISTS strata_runs (
    id          TEXT PRIMARY KEY,
    pipeline    TEXT NOT NULL,
    started_at  TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    status      TEXT NOT NULL,
    rebuilt     INTEGER NOT NULL DEFAULT 0,
    refreshed   INTEGER NOT NULL DEFAULT 0,
    reaped      INTEGER NOT NULL DEFAULT 0,
    unchanged   INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT ''
)`

	idxRunsPipeline = `CREATE INDEX IF NOT EXISTS idx_strata_runs_pipeline ON strata_runs(pipeline, started_at)`
)

// schemaDDL lists the metadata statements in creation order.
var schemaDDL = []string{
	createMeta,
	createNodeState,
	createRuns,
	idxRunsPipeline,
}

// Schema version tracking (strata_meta.schema_version):
// 1 - node state and run history
const currentSchemaVersion = 1
