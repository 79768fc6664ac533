package engine

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/strata/internal/ir"
)

// Engine is the incremental refresh engine.
//
// An Engine holds no per-run state; every Refresh call starts from the
// persisted node states. It is safe to reuse an Engine across runs but not
// to run two refreshes of the same pipeline at once.
type Engine struct {
	backend ir.Backend
	states  ir.StateStore
	logger  *slog.Logger
	strict  bool
	runIDs  RunIDGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for per-node decisions (debug level).
// By default the engine logs nothing.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithStrictDependencies makes Refresh and Plan fail with
// ErrCodeUnknownDependency when a dependency is not declared before the
// node that uses it. Without it such a dependency hashes as empty.
func WithStrictDependencies() Option {
	return func(e *Engine) {
		e.strict = true
	}
}

// WithRunIDGenerator sets the generator for Result.RunID.
// Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// New creates an Engine that executes statements on backend and persists
// node states in states. Both are usually the same *store.Store.
func New(backend ir.Backend, states ir.StateStore, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		states:  states,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		runIDs:  UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result reports what a Refresh call did.
type Result struct {
	RunID    string `json:"run_id"`
	Pipeline string `json:"pipeline"`

	// Actions lists the completed actions in execution order. On failure it
	// holds everything that finished before the failing action.
	Actions []Action `json:"actions"`
}

// Count returns the number of completed actions of the given kind.
func (r *Result) Count(kind ActionKind) int {
	return countActions(r.Actions, kind)
}

// Refresh brings the pipeline's database objects in line with defs.
//
// defs must be in dependency order. names, when non-nil, narrows which
// persisted states are loaded (see Plan). The returned Result is never nil,
// even when an error is returned.
func (e *Engine) Refresh(ctx context.Context, pipeline string, defs []ir.NodeDefinition, names []string) (*Result, error) {
	result := &Result{
		RunID:    e.runIDs.Generate(),
		Pipeline: pipeline,
		Actions:  []Action{},
	}
	log := e.logger.With("run_id", result.RunID, "pipeline", pipeline)

	plan, err := e.Plan(ctx, pipeline, defs, names)
	if err != nil {
		return result, err
	}

	for _, action := range plan.Actions {
		log.Debug("node decision",
			"node", action.Node,
			"action", action.Kind,
			"hash", action.Hash,
			"previous_hash", action.PreviousHash,
		)

		if err := e.apply(ctx, pipeline, action); err != nil {
			log.Debug("node failed", "node", action.Node, "error", err)
			return result, err
		}
		result.Actions = append(result.Actions, action)
	}

	return result, nil
}

// apply executes one planned action.
func (e *Engine) apply(ctx context.Context, pipeline string, a Action) error {
	switch a.Kind {
	case ActionReap:
		return e.reap(ctx, pipeline, a)
	case ActionRefresh:
		return e.runInTx(ctx, pipeline, a.Node, a.def.RefreshStatements)
	case ActionRebuild:
		return e.rebuild(ctx, pipeline, a)
	}
	return nil
}

// reap runs the stored cleanup statement of an obsolete node, then deletes
// its state row.
func (e *Engine) reap(ctx context.Context, pipeline string, a Action) error {
	if err := e.backend.Exec(ctx, a.state.CleanupStatement); err != nil {
		return statementError(pipeline, a.Node, a.state.CleanupStatement, err)
	}
	if err := e.states.DeleteState(ctx, pipeline, a.Node); err != nil {
		return persistenceError(pipeline, a.Node, err)
	}
	return nil
}

// rebuild drops whatever exists, recreates the node in one transaction and
// records the new hash.
//
// The state row is written last: a crash before it leaves the old hash in
// place, so the next run rebuilds again.
func (e *Engine) rebuild(ctx context.Context, pipeline string, a Action) error {
	if err := e.backend.Exec(ctx, a.def.DeleteStatement); err != nil {
		return statementError(pipeline, a.Node, a.def.DeleteStatement, err)
	}
	if err := e.runInTx(ctx, pipeline, a.Node, a.def.CreateStatements); err != nil {
		return err
	}
	state := ir.NodeState{
		Pipeline:         pipeline,
		Name:             a.Node,
		ContentHash:      a.Hash,
		CleanupStatement: a.def.DeleteStatement,
	}
	if err := e.states.UpsertState(ctx, state); err != nil {
		return persistenceError(pipeline, a.Node, err)
	}
	return nil
}

// runInTx executes statements in order inside one transaction.
// Any failure rolls the transaction back.
func (e *Engine) runInTx(ctx context.Context, pipeline, node string, statements []string) error {
	tx, err := e.backend.Begin(ctx)
	if err != nil {
		return statementError(pipeline, node, "", err)
	}

	for _, stmt := range statements {
		if err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return statementError(pipeline, node, stmt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return statementError(pipeline, node, "", err)
	}
	return nil
}
