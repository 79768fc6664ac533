// Package ir provides the shared types for strata.
//
// This package contains type definitions and the content hasher only. All
// other internal packages import ir; ir imports nothing internal. This keeps
// it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NodeDefinition lists are always handled as ordered slices; nothing
//     relies on map iteration order
//   - Content hashes are SHA-256 hex with domain separation (see hash.go)
//   - SQL text is opaque; ir never parses or rewrites statements
//   - All JSON tags use snake_case
package ir
