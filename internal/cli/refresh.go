package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/ir"
)

// RefreshOptions holds flags for the refresh command.
type RefreshOptions struct {
	*RootOptions
	Only   []string
	Strict bool

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, the engine default (UUIDv7) is used.
	RunIDs engine.RunIDGenerator
}

// RefreshSummary is the output of refresh and plan.
type RefreshSummary struct {
	RunID     string          `json:"run_id,omitempty"`
	Pipeline  string          `json:"pipeline"`
	Actions   []engine.Action `json:"actions"`
	Rebuilt   int             `json:"rebuilt"`
	Refreshed int             `json:"refreshed"`
	Reaped    int             `json:"reaped"`
	Unchanged int             `json:"unchanged"`
}

func summarize(runID, pipeline string, actions []engine.Action) RefreshSummary {
	if actions == nil {
		actions = []engine.Action{}
	}
	s := RefreshSummary{RunID: runID, Pipeline: pipeline, Actions: actions}
	for _, a := range actions {
		switch a.Kind {
		case engine.ActionRebuild:
			s.Rebuilt++
		case engine.ActionRefresh:
			s.Refreshed++
		case engine.ActionReap:
			s.Reaped++
		case engine.ActionSkip:
			s.Unchanged++
		}
	}
	return s
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	return newRefreshCommand(&RefreshOptions{RootOptions: rootOpts})
}

func newRefreshCommand(opts *RefreshOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh [specs-dir]",
		Short: "Bring derived objects in line with their definitions",
		Long: `Compile the CUE node definitions in specs-dir and refresh the pipeline.

Changed and new nodes are rebuilt, unchanged nodes run their refresh
statements, and nodes no longer defined are reaped. The run is recorded
in the history table whether it succeeds or not.

specs-dir defaults to the "specs" config setting.

Exit codes:
  0 - Refresh succeeded
  1 - A statement or state write failed
  2 - Command error (bad specs, config or database)

Examples:
  strata refresh ./specs --dsn analytics.db
  strata refresh ./specs --only orders_daily,orders_total
  strata refresh --driver pgx --dsn postgres://localhost/db --strict`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Only, "only", nil, "load persisted state only for these nodes")
	cmd.Flags().BoolVar(&opts.Strict, config.KeyStrict, false, "require nodes to be declared after their dependencies instead of reordering them")

	return cmd
}

func runRefresh(opts *RefreshOptions, args []string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd, cfg.Verbose)
	logger := newLogger(formatter.Diagnostics(), cfg.Verbose)

	specsDir := cfg.Specs
	if len(args) > 0 {
		specsDir = args[0]
	}

	strict := opts.Strict || cfg.Strict
	loaded, err := LoadPipeline(specsDir, strict)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	pipeline := cfg.PipelineName(loaded.Declared)
	formatter.VerboseLog("Loaded %d node(s) from %d CUE file(s) in %s", len(loaded.Nodes), loaded.FileCount, specsDir)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	engOpts := []engine.Option{engine.WithLogger(logger)}
	if opts.RunIDs != nil {
		engOpts = append(engOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	if strict {
		engOpts = append(engOpts, engine.WithStrictDependencies())
	}
	eng := engine.New(st, st, engOpts...)

	ctx, stop := signalContext(cmd)
	defer stop()

	started := time.Now().UTC()
	logger.Info("refresh starting", "pipeline", pipeline, "nodes", len(loaded.Nodes), "driver", cfg.Driver)
	result, runErr := eng.Refresh(ctx, pipeline, loaded.Nodes, onlyNames(cmd, opts.Only))
	summary := summarize(result.RunID, pipeline, result.Actions)

	run := ir.RunRecord{
		ID:         result.RunID,
		Pipeline:   pipeline,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Status:     ir.RunStatusSucceeded,
		Rebuilt:    summary.Rebuilt,
		Refreshed:  summary.Refreshed,
		Reaped:     summary.Reaped,
		Unchanged:  summary.Unchanged,
	}
	if runErr != nil {
		run.Status = ir.RunStatusFailed
		run.Error = runErr.Error()
	}
	// The history write gets its own context so an interrupted run is
	// still recorded.
	recordErr := st.RecordRun(context.WithoutCancel(ctx), run)
	if recordErr != nil {
		logger.Error("failed to record run", "run_id", run.ID, "error", recordErr)
	}

	if runErr != nil {
		logger.Error("refresh failed", "run_id", run.ID, "error", runErr)
		return outputRefreshFailure(formatter, summary, runErr)
	}
	logger.Info("refresh finished", "run_id", run.ID,
		"rebuilt", summary.Rebuilt, "refreshed", summary.Refreshed,
		"reaped", summary.Reaped, "unchanged", summary.Unchanged)

	if err := outputSummary(formatter, summary); err != nil {
		return err
	}
	if recordErr != nil {
		return WrapExitError(ExitFailure, "failed to record run", recordErr)
	}
	return nil
}

// onlyNames returns the --only filter, or nil when the flag was not given.
// An explicit empty --only="" narrows the loaded state to nothing.
func onlyNames(cmd *cobra.Command, only []string) []string {
	if !cmd.Flags().Changed("only") {
		return nil
	}
	if only == nil {
		return []string{}
	}
	return only
}

// signalContext cancels on SIGINT/SIGTERM. Uses the command's context if
// available (for testing).
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		loadErr = &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
	return WrapExitError(ExitCommandError, loadErr.Code+": failed to load specs", err)
}

func outputSummary(formatter *OutputFormatter, s RefreshSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(s)
	}
	writeSummary(formatter.Writer, s, formatter.Verbose)
	return nil
}

func outputRefreshFailure(formatter *OutputFormatter, s RefreshSummary, err error) error {
	code := ErrCodeGeneric
	var refreshErr *engine.RefreshError
	if errors.As(err, &refreshErr) {
		code = string(refreshErr.Code)
	}

	if formatter.Format != "json" {
		writeSummary(formatter.Writer, s, formatter.Verbose)
	}
	_ = formatter.Failure(code, err.Error(), s)
	return WrapExitError(ExitFailure, "refresh failed", err)
}

func writeSummary(w io.Writer, s RefreshSummary, verbose bool) {
	if s.RunID != "" {
		fmt.Fprintf(w, "Pipeline %s (run %s)\n", s.Pipeline, s.RunID)
	} else {
		fmt.Fprintf(w, "Pipeline %s\n", s.Pipeline)
	}
	for _, a := range s.Actions {
		fmt.Fprintf(w, "  %-8s %s\n", a.Kind, a.Node)
		if verbose {
			for _, stmt := range a.Statements {
				fmt.Fprintf(w, "           %s\n", stmt)
			}
		}
	}
	fmt.Fprintf(w, "Rebuilt: %d  Refreshed: %d  Reaped: %d  Unchanged: %d\n",
		s.Rebuilt, s.Refreshed, s.Reaped, s.Unchanged)
}
