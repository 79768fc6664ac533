package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/testutil"
)

// DefaultPipeline is used when a scenario does not name a pipeline.
const DefaultPipeline = "test"

// Harness runs scenarios against the real engine and a throwaway database.
type Harness struct {
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger passes logger to the engine and logs step progress on it.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// New creates a Harness. By default nothing is logged.
func New(opts ...Option) *Harness {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default Harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database shared by all of its
// steps. Statements go through a testutil.Recorder, so the trace holds
// exactly what the engine sent to the database.
//
// An error is returned only when the scenario cannot be executed (bad
// specs, database setup). Failed expectations and assertions are reported
// in Result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(store.DriverSQLite3, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	pipeline := scenario.Pipeline
	if pipeline == "" {
		pipeline = DefaultPipeline
	}

	rec := testutil.NewRecorder(st)
	opts := []engine.Option{
		engine.WithLogger(h.logger),
		engine.WithRunIDGenerator(testutil.NewFixedRunID(scenario.RunID)),
	}
	if scenario.Strict {
		opts = append(opts, engine.WithStrictDependencies())
	}
	eng := engine.New(rec, st, opts...)

	result := NewResult()
	for i, step := range scenario.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}

		defs, err := stepDefinitions(step)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", name, err)
		}

		for _, stmt := range step.Setup {
			if err := st.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("step %s: setup %q: %w", name, stmt, err)
			}
		}

		rec.ClearFailures()
		for _, substr := range step.FailOn {
			rec.FailOn(substr, errInjected)
		}

		start := len(rec.Events())
		res, refreshErr := eng.Refresh(ctx, pipeline, defs, step.Only)

		sr := StepResult{
			Name:    name,
			Actions: make([]ActionTrace, 0, len(res.Actions)),
			Trace:   rec.Events()[start:],
		}
		for _, a := range res.Actions {
			sr.Actions = append(sr.Actions, ActionTrace{Node: a.Node, Kind: string(a.Kind)})
		}

		if refreshErr != nil {
			var re *engine.RefreshError
			if !errors.As(refreshErr, &re) {
				return nil, fmt.Errorf("step %s: %w", name, refreshErr)
			}
			sr.ErrorCode = string(re.Code)
		}

		switch {
		case step.ExpectError == "" && refreshErr != nil:
			result.AddError(fmt.Sprintf("step %s: unexpected error: %v", name, refreshErr))
		case step.ExpectError != "" && refreshErr == nil:
			result.AddError(fmt.Sprintf("step %s: expected error %s, refresh succeeded", name, step.ExpectError))
		case step.ExpectError != "" && sr.ErrorCode != step.ExpectError:
			result.AddError(fmt.Sprintf("step %s: expected error %s, got %s", name, step.ExpectError, sr.ErrorCode))
		}

		for _, msg := range EvaluateAssertions(ctx, st.DB(), sr, step.Assertions) {
			result.AddError(msg)
		}

		result.Steps = append(result.Steps, sr)

		h.logger.Info("scenario step completed",
			"scenario", scenario.Name,
			"step", name,
			"actions", len(sr.Actions),
			"events", len(sr.Trace),
			"error_code", sr.ErrorCode,
		)
	}

	return result, nil
}

var errInjected = errors.New("injected failure")

// stepDefinitions returns the node definitions of a step. Definitions from
// a specs directory are put in dependency order; inline nodes are used as
// written.
func stepDefinitions(step Step) ([]ir.NodeDefinition, error) {
	if step.Specs == "" {
		return step.Nodes, nil
	}
	p, _, err := compiler.LoadDir(step.Specs)
	if err != nil {
		return nil, err
	}
	return compiler.Order(p.Nodes)
}
