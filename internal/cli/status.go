package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/ir"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	All bool
}

// PipelineStatus lists the persisted node states of one pipeline.
type PipelineStatus struct {
	Pipeline string         `json:"pipeline"`
	Nodes    []ir.NodeState `json:"nodes"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status [specs-dir]",
		Short: "List persisted node states",
		Long: `List the node states recorded by the last successful rebuild of each node.

The pipeline is resolved like refresh resolves it: --pipeline or the
config file wins, otherwise the name declared in specs-dir (default: the
"specs" setting) is used.

Examples:
  strata status ./specs
  strata status --pipeline analytics
  strata status --all --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "list every pipeline with persisted state")

	return cmd
}

func runStatus(opts *StatusOptions, args []string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd, cfg.Verbose)

	var pipelines []string
	if !opts.All {
		name, err := pipelineName(cfg, args)
		if err != nil {
			return outputLoadError(formatter, err)
		}
		pipelines = []string{name}
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if opts.All {
		if pipelines, err = st.ListPipelines(ctx); err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to list pipelines", err)
		}
	}

	result := make([]PipelineStatus, 0, len(pipelines))
	for _, p := range pipelines {
		states, err := st.FindStates(ctx, ir.StateFilter{Pipeline: p})
		if err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to load node states", err)
		}
		result = append(result, PipelineStatus{Pipeline: p, Nodes: states})
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if len(result) == 0 {
		fmt.Fprintln(w, "No pipelines have persisted state.")
	}
	for _, ps := range result {
		fmt.Fprintf(w, "Pipeline %s: %d node(s)\n", ps.Pipeline, len(ps.Nodes))
		for _, n := range ps.Nodes {
			fmt.Fprintf(w, "  %-24s %s\n", n.Name, shortHash(n.ContentHash))
			formatter.VerboseLog("  %s cleanup: %s", n.Name, n.CleanupStatement)
		}
	}
	return nil
}

// shortHash abbreviates a hex content hash for display.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
