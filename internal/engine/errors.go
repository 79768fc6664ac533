package engine

import (
	"errors"
	"fmt"
)

// RefreshError is returned by Refresh and Plan.
//
// It classifies the failure and names the node and statement involved.
// Err holds the unmodified backend error; Unwrap exposes it so callers can
// still match driver errors with errors.Is / errors.As.
type RefreshError struct {
	// Code identifies the error category.
	Code RefreshErrorCode

	// Pipeline is the pipeline being refreshed.
	Pipeline string

	// Node is the node being processed when the failure happened.
	Node string

	// Statement is the SQL text that failed, if any.
	Statement string

	// Err is the underlying error.
	Err error
}

// RefreshErrorCode categorizes refresh errors.
type RefreshErrorCode string

const (
	// ErrCodeStatementFailed indicates a create, refresh, delete or cleanup
	// statement (or its transaction) failed.
	ErrCodeStatementFailed RefreshErrorCode = "STATEMENT_FAILED"

	// ErrCodePersistenceFailed indicates a node-state read or write failed.
	ErrCodePersistenceFailed RefreshErrorCode = "PERSISTENCE_FAILED"

	// ErrCodeUnknownDependency indicates a dependency name that does not
	// appear earlier in the definition list. Only raised in strict mode.
	ErrCodeUnknownDependency RefreshErrorCode = "UNKNOWN_DEPENDENCY"
)

// Error implements the error interface.
func (e *RefreshError) Error() string {
	msg := string(e.Code)
	if e.Node != "" {
		msg = fmt.Sprintf("%s (pipeline=%s, node=%s)", msg, e.Pipeline, e.Node)
	} else if e.Pipeline != "" {
		msg = fmt.Sprintf("%s (pipeline=%s)", msg, e.Pipeline)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *RefreshError) Unwrap() error {
	return e.Err
}

// IsStatementError returns true if err is a statement failure.
// Uses errors.As to handle wrapped errors.
func IsStatementError(err error) bool {
	return hasCode(err, ErrCodeStatementFailed)
}

// IsPersistenceError returns true if err is a node-state I/O failure.
func IsPersistenceError(err error) bool {
	return hasCode(err, ErrCodePersistenceFailed)
}

// IsUnknownDependency returns true if err reports an unknown dependency.
func IsUnknownDependency(err error) bool {
	return hasCode(err, ErrCodeUnknownDependency)
}

func hasCode(err error, code RefreshErrorCode) bool {
	var re *RefreshError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func statementError(pipeline, node, stmt string, err error) *RefreshError {
	return &RefreshError{
		Code:      ErrCodeStatementFailed,
		Pipeline:  pipeline,
		Node:      node,
		Statement: stmt,
		Err:       err,
	}
}

func persistenceError(pipeline, node string, err error) *RefreshError {
	return &RefreshError{
		Code:     ErrCodePersistenceFailed,
		Pipeline: pipeline,
		Node:     node,
		Err:      err,
	}
}

// NewUnknownDependencyError creates a RefreshError for a dependency that is
// not declared before the node that uses it.
func NewUnknownDependencyError(pipeline, node, dependency string) *RefreshError {
	return &RefreshError{
		Code:     ErrCodeUnknownDependency,
		Pipeline: pipeline,
		Node:     node,
		Err:      fmt.Errorf("dependency %q is not declared before %q", dependency, node),
	}
}
