// Package store provides the database/sql backend used by strata.
//
// A Store plays two roles against the same database:
//   - ir.Backend: executes the raw create/refresh/delete statements of nodes,
//     standalone or inside a transaction
//   - ir.StateStore: persists one strata_node_state row per built node,
//     scoped by pipeline
//
// It also keeps the refresh history (strata_runs), written by the CLI.
//
// # Drivers
//
//   - sqlite3: github.com/mattn/go-sqlite3 (default, cgo)
//   - sqlite:  modernc.org/sqlite (pure Go)
//   - pgx:     github.com/jackc/pgx/v5/stdlib (PostgreSQL)
//
// Queries are written with ? placeholders and rebound per dialect.
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - One open connection, so ":memory:" databases survive between calls
package store
