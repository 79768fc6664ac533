package harness

import "github.com/roach88/strata/internal/testutil"

// TraceEvent is one backend call made during a step.
type TraceEvent = testutil.Event

// ActionTrace is the decision the engine took for one node.
type ActionTrace struct {
	Node string `json:"node"`
	Kind string `json:"kind"`
}

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Name string `json:"name"`

	// Actions lists completed actions in execution order.
	Actions []ActionTrace `json:"actions"`

	// Trace lists the backend calls made during the step.
	Trace []TraceEvent `json:"trace"`

	// ErrorCode is the RefreshError code the step failed with, if any.
	ErrorCode string `json:"error_code,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every step met its expectations and every assertion
	// held.
	Pass bool `json:"pass"`

	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
