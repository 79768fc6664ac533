package cli

import (
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/ir"
)

// Error code constants - unified across all CLI commands.
// Validation codes (E1xx) come from the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeConfig      = "E008" // Configuration invalid
	ErrCodeDatabase    = "E009" // Database open or query failed
)

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadResult is a compiled pipeline ready for the engine.
type LoadResult struct {
	// Declared is the pipeline name set in CUE, empty if none.
	Declared string

	// Nodes in dependency order.
	Nodes []ir.NodeDefinition

	FileCount int
}

// LoadPipeline compiles the CUE files in dir, validates the nodes and puts
// them in dependency order. Forward references are reordered unless strict
// is set, in which case they fail with E111 like any other dependency issue.
func LoadPipeline(dir string, strict bool) (*LoadResult, error) {
	p, files, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, toLoadError(err)
	}

	for _, verr := range compiler.ValidatePipeline(p.Nodes) {
		if verr.Code == compiler.ErrForwardDependency && !strict {
			continue
		}
		return nil, &LoadError{Code: verr.Code, Message: fmt.Sprintf("%s: %s", verr.Field, verr.Message)}
	}

	ordered, err := compiler.Order(p.Nodes)
	if err != nil {
		return nil, toLoadError(err)
	}

	return &LoadResult{Declared: p.Name, Nodes: ordered, FileCount: files}, nil
}

// toLoadError converts a compiler error to a LoadError with position info.
func toLoadError(err error) *LoadError {
	var (
		compileErr *compiler.CompileError
		depErr     *compiler.DependencyError
	)
	switch {
	case errors.Is(err, compiler.ErrSpecsNotFound):
		return &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
	case errors.Is(err, compiler.ErrNoCUEFiles):
		return &LoadError{Code: ErrCodeNoFiles, Message: err.Error()}
	case errors.Is(err, compiler.ErrCUELoad):
		return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	case errors.As(err, &compileErr):
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	case errors.As(err, &depErr) && len(depErr.Issues) > 0:
		return &LoadError{
			Code:    compiler.IssueCode(depErr.Issues[0].Kind),
			Message: depErr.Error(),
		}
	default:
		return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
}

// MapFieldToErrorCode maps a compiler error field to an error code.
//
// Fields look like "node.<name>.create"; only the last segment matters.
func MapFieldToErrorCode(field string) string {
	switch field[strings.LastIndex(field, ".")+1:] {
	case "cue":
		return ErrCodeBuildFailed
	case "create":
		return compiler.ErrNodeNoCreate
	case "delete":
		return compiler.ErrNodeDeleteEmpty
	default:
		return ErrCodeGeneric
	}
}
