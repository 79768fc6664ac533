// Package engine implements the strata refresh engine.
//
// Given the ordered node definitions of a pipeline and the node states
// persisted by earlier runs, the engine decides for every node whether to
// leave it alone, refresh it in place, or drop and recreate it.
//
// # Content Hashes
//
// Each node's hash covers its create, refresh and delete statements followed
// by the hashes of its dependencies (ir.NodeHash). Hashes are computed in
// list order, so a dependency is always hashed before its dependents and a
// change anywhere upstream changes every downstream hash.
//
// # Refresh Flow
//
//  1. Load persisted states for the pipeline (optionally narrowed by name)
//  2. Compute hashes in definition order
//  3. Reap persisted nodes that are no longer defined: run the stored
//     cleanup statement, then delete the state row
//  4. For each definition in order:
//     - hash unchanged: run refresh statements in one transaction (if any)
//     - hash changed or no state: run the delete statement, run the create
//     statements in one transaction, upsert the state row
//
// # Failure Model
//
// The first failure stops the run and is returned as a *RefreshError. Nodes
// already processed stay committed; nodes not reached are untouched. A node
// whose rebuild failed keeps its old state row, so the next run retries the
// rebuild. Re-running Refresh until it succeeds converges.
//
// The engine is strictly sequential and keeps no state between calls. Two
// concurrent refreshes of the same pipeline must be serialized by the caller.
package engine
