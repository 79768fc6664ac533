package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/engine"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Only   []string
	Strict bool
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan [specs-dir]",
		Short: "Show what refresh would do without doing it",
		Long: `Compute the actions refresh would take for the pipeline and print them.

Reads persisted node states but never executes a statement or writes
state. With --verbose the statements of each action are listed too.

Examples:
  strata plan ./specs
  strata plan ./specs --only orders_total --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Only, "only", nil, "load persisted state only for these nodes")
	cmd.Flags().BoolVar(&opts.Strict, config.KeyStrict, false, "require nodes to be declared after their dependencies instead of reordering them")

	return cmd
}

func runPlan(opts *PlanOptions, args []string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd, cfg.Verbose)

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

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	engOpts := []engine.Option{engine.WithLogger(newLogger(formatter.Diagnostics(), cfg.Verbose))}
	if strict {
		engOpts = append(engOpts, engine.WithStrictDependencies())
	}
	eng := engine.New(st, st, engOpts...)

	plan, err := eng.Plan(cmd.Context(), pipeline, loaded.Nodes, onlyNames(cmd, opts.Only))
	if err != nil {
		return outputRefreshFailure(formatter, summarize("", pipeline, nil), err)
	}

	return outputSummary(formatter, summarize("", pipeline, plan.Actions))
}
