package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/strata/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Node errors (E101-E109)
	ErrNodeNameInvalid     = "E101" // name empty or not an identifier
	ErrNodeNoCreate        = "E102" // at least one create statement required
	ErrStatementEmpty      = "E103" // statement text is blank
	ErrNodeDeleteEmpty     = "E104" // delete statement required
	ErrDuplicateName       = "E105" // two nodes with the same name
	ErrDuplicateDependency = "E106" // dependency listed twice

	// Dependency errors (E110-E119)
	ErrUnknownDependency = "E110"
	ErrForwardDependency = "E111"
	ErrSelfDependency    = "E112"
	ErrDependencyCycle   = "E113"
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// nodeNamePattern matches names usable as SQL identifiers without quoting.
var nodeNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks a single node definition.
// Returns all errors found (does not fail-fast).
func Validate(def ir.NodeDefinition) []ValidationError {
	var errs []ValidationError
	prefix := "node." + def.Name

	if !nodeNamePattern.MatchString(def.Name) {
		errs = append(errs, ValidationError{
			Field:   "node",
			Message: fmt.Sprintf("invalid node name %q, expected an identifier", def.Name),
			Code:    ErrNodeNameInvalid,
		})
	}

	if len(def.CreateStatements) == 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".create",
			Message: "at least one create statement is required",
			Code:    ErrNodeNoCreate,
		})
	}
	errs = append(errs, blankStatements(prefix+".create", def.CreateStatements)...)
	errs = append(errs, blankStatements(prefix+".refresh", def.RefreshStatements)...)

	if strings.TrimSpace(def.DeleteStatement) == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".delete",
			Message: "delete statement is required and must be non-empty",
			Code:    ErrNodeDeleteEmpty,
		})
	}

	seen := make(map[string]bool, len(def.Dependencies))
	for i, dep := range def.Dependencies {
		if seen[dep] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.dependencies[%d]", prefix, i),
				Message: fmt.Sprintf("dependency %q listed more than once", dep),
				Code:    ErrDuplicateDependency,
			})
		}
		seen[dep] = true
	}

	return errs
}

// ValidatePipeline checks every node plus the relations between them:
// duplicate names and dependency issues.
//
// Forward references are reported too. They are harmless when the caller
// runs Order first, but the engine hashes a forward dependency as empty.
func ValidatePipeline(defs []ir.NodeDefinition) []ValidationError {
	var errs []ValidationError

	names := make(map[string]bool, len(defs))
	for i, def := range defs {
		errs = append(errs, Validate(def)...)
		if names[def.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("node[%d]", i),
				Message: fmt.Sprintf("duplicate node name: %q", def.Name),
				Code:    ErrDuplicateName,
			})
		}
		names[def.Name] = true
	}

	for _, issue := range AnalyzeDependencies(defs) {
		errs = append(errs, ValidationError{
			Field:   "node." + issue.Node + ".dependencies",
			Message: issue.Message,
			Code:    IssueCode(issue.Kind),
		})
	}

	return errs
}

// IssueCode maps a DependencyIssue kind to its validation error code.
func IssueCode(kind string) string {
	switch kind {
	case IssueUnknown:
		return ErrUnknownDependency
	case IssueForward:
		return ErrForwardDependency
	case IssueSelf:
		return ErrSelfDependency
	default:
		return ErrDependencyCycle
	}
}

func blankStatements(field string, stmts []string) []ValidationError {
	var errs []ValidationError
	for i, stmt := range stmts {
		if strings.TrimSpace(stmt) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "statement must be non-empty",
				Code:    ErrStatementEmpty,
			})
		}
	}
	return errs
}
