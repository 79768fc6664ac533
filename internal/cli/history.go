package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [specs-dir]",
		Short: "List recorded refresh runs, newest first",
		Long: `List the refresh runs recorded for the pipeline, newest first.

The pipeline is resolved like refresh resolves it: --pipeline or the
config file wins, otherwise the name declared in specs-dir (default: the
"specs" setting) is used.

Examples:
  strata history ./specs
  strata history --pipeline analytics
  strata history --limit 5 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, args []string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd, cfg.Verbose)

	pipeline, err := pipelineName(cfg, args)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), pipeline, opts.Limit)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintf(formatter.Writer, "No runs recorded for pipeline %s.\n", pipeline)
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tREBUILT\tREFRESHED\tREAPED\tUNCHANGED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Status,
			r.Rebuilt, r.Refreshed, r.Reaped, r.Unchanged,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, r := range runs {
		if r.Error != "" {
			formatter.VerboseLog("%s: %s", r.ID, r.Error)
		}
	}
	return nil
}
