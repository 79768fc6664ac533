package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// ConfigFile is an explicit config file; empty looks for ./strata.yaml.
	ConfigFile string

	// Driver, DSN and Pipeline override the loaded configuration when set.
	// Commands constructed without the root command rely on these.
	Driver   string
	DSN      string
	Pipeline string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the strata CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "strata",
		Short: "strata - incremental refresh for derived database objects",
		Long: `strata keeps derived database objects (tables, views, indexes) in line
with their CUE definitions.

Each node is content-hashed together with its dependencies. Unchanged
nodes are refreshed in place, changed nodes are rebuilt, and nodes that
disappeared from the definitions are reaped.`,
		Version:       ir.EngineVersion,
		SilenceUsage:  true,
		SilenceErrors: true, // main prints the error once
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, config.KeyVerbose, "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./strata.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Driver, config.KeyDriver, "", "database driver (sqlite3|sqlite|pgx)")
	cmd.PersistentFlags().StringVar(&opts.DSN, config.KeyDSN, "", "database connection string")
	cmd.PersistentFlags().StringVar(&opts.Pipeline, config.KeyPipeline, "", "pipeline name")

	// Add subcommands
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadConfig resolves the configuration for cmd and checks it.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.ConfigFile, cmd.Flags())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig+": failed to load config", err)
	}
	if o.Driver != "" {
		cfg.Driver = o.Driver
	}
	if o.DSN != "" {
		cfg.DSN = o.DSN
	}
	if o.Pipeline != "" {
		cfg.Pipeline = o.Pipeline
	}
	cfg.Verbose = cfg.Verbose || o.Verbose

	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig+": invalid config", err)
	}
	return cfg, nil
}

// pipelineName resolves the pipeline the way refresh does: a configured
// name wins, otherwise the name declared in the specs directory. The
// directory is args[0] when given, else the "specs" setting, which is
// skipped silently when it does not exist.
func pipelineName(cfg *config.Config, args []string) (string, error) {
	if cfg.Pipeline != config.DefaultPipeline {
		return cfg.Pipeline, nil
	}
	dir := cfg.Specs
	if len(args) > 0 {
		dir = args[0]
	} else if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return cfg.Pipeline, nil
	}

	p, _, err := compiler.LoadDir(dir)
	if err != nil {
		return "", toLoadError(err)
	}
	return cfg.PipelineName(p.Name), nil
}

// openStore opens the store described by cfg.
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeDatabase+": failed to open database", err)
	}
	return st, nil
}

// newLogger returns a text logger on w; debug level when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command, verbose bool) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   verbose,
	}
}
