package ir

import "context"

// Backend executes raw SQL statements against the target database.
// Statements are final SQL text; no parameter binding is involved.
type Backend interface {
	Exec(ctx context.Context, statement string) error
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an open transaction obtained from Backend.Begin.
type Tx interface {
	Exec(ctx context.Context, statement string) error
	Commit() error
	Rollback() error
}

// StateStore persists NodeState rows, scoped by pipeline.
type StateStore interface {
	FindStates(ctx context.Context, filter StateFilter) ([]NodeState, error)
	UpsertState(ctx context.Context, state NodeState) error
	DeleteState(ctx context.Context, pipeline, name string) error
}
