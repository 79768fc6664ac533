package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Pipeline string                     `json:"pipeline,omitempty"`
	Nodes    int                        `json:"nodes"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate node definitions without touching a database",
		Long: `Validate CUE node definitions without touching a database.

Compiles every node, then checks names, statements and dependencies:
duplicates, unknown and self references, cycles and forward references.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd, opts.Verbose)

	errs, p, err := ValidateSpecsDir(specsDir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	formatter.VerboseLog("Validated %d node(s) in %s", len(p.Nodes), specsDir)

	if len(errs) > 0 {
		return outputValidationErrors(formatter, p, errs)
	}
	return outputValidateSuccess(formatter, p)
}

// ValidateSpecsDir compiles dir and validates the pipeline.
// The error is non-nil only when the directory could not be compiled.
func ValidateSpecsDir(specsDir string) ([]compiler.ValidationError, *compiler.Pipeline, error) {
	p, _, err := compiler.LoadDir(specsDir)
	if err != nil {
		return nil, nil, toLoadError(err)
	}
	return compiler.ValidatePipeline(p.Nodes), p, nil
}

func outputValidateSuccess(formatter *OutputFormatter, p *compiler.Pipeline) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Pipeline: p.Name, Nodes: len(p.Nodes)})
	}

	fmt.Fprintf(formatter.Writer, "✓ All specs valid (%d nodes)\n", len(p.Nodes))
	return nil
}

func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

func outputValidationErrors(formatter *OutputFormatter, p *compiler.Pipeline, errs []compiler.ValidationError) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	if formatter.Format == "json" {
		result := ValidationResult{Valid: false, Pipeline: p.Name, Nodes: len(p.Nodes), Errors: errs}
		if err := formatter.Failure(errs[0].Code, errs[0].Message, result); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", err.Code, err.Field, err.Message)
	}

	return failed
}
