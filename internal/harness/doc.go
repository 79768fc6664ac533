// Package harness runs scenario tests against the strata refresh engine.
//
// A scenario is a sequence of refreshes of one pipeline against the same
// in-memory SQLite database. Every statement the engine sends goes through a
// testutil.Recorder, so each step's trace is exactly what reached the
// database.
//
// # Scenario Format
//
//	name: upstream_change
//	description: "Changing a node rebuilds everything downstream"
//	pipeline: analytics
//	steps:
//	  - name: initial
//	    nodes:
//	      - name: raw
//	        create: ["CREATE TABLE raw (x INTEGER)"]
//	        delete: "DROP TABLE IF EXISTS raw"
//	  - name: changed
//	    specs: specs/changed   # CUE directory, relative to the scenario
//	    only: [raw]            # optional names filter
//	    fail_on: ["INSERT"]    # optional injected failures
//	    expect_error: STATEMENT_FAILED
//	    assertions:
//	      - type: action
//	        node: raw
//	        action: rebuild
//	      - type: final_state
//	        table: strata_node_state
//	        where: { name: raw }
//	        expect: { cleanup_statement: "DROP TABLE IF EXISTS raw" }
//
// # Assertion Types
//
//   - trace_contains: an executed statement contains the given text
//   - trace_order: statements appear in the given order
//   - trace_count: events of a kind (exec, begin, commit, rollback) occur N times
//   - action: the engine took the given action for a node
//   - final_state: a table row matches (or, with absent, no row matches)
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON trace with
// testdata/golden/<name>.golden. Run IDs are fixed and sequence numbers come
// from the Recorder, so traces are identical across runs.
package harness
