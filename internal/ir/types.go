package ir

import "time"

// NodeDefinition describes one derived database object and the SQL that
// builds, refreshes and destroys it.
//
// Definitions arrive as an ordered slice. Every name in Dependencies is
// expected to appear earlier in that slice.
type NodeDefinition struct {
	Name         string   `json:"name" yaml:"name"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// CreateStatements construct the object from scratch. Never empty.
	CreateStatements []string `json:"create" yaml:"create"`

	// RefreshStatements update contents in place. Nil means nothing to do.
	RefreshStatements []string `json:"refresh,omitempty" yaml:"refresh,omitempty"`

	DeleteStatement string `json:"delete" yaml:"delete"`
}

// HasRefresh reports whether the node declares refresh statements.
func (d NodeDefinition) HasRefresh() bool {
	return d.RefreshStatements != nil
}

// NodeState is the persisted record of the last full rebuild of a node.
// One row exists per (Pipeline, Name) while the object exists.
type NodeState struct {
	Pipeline    string `json:"pipeline"`
	Name        string `json:"name"`
	ContentHash string `json:"content_hash"`

	// CleanupStatement is the node's DeleteStatement captured at build time.
	CleanupStatement string `json:"cleanup_statement"`
}

// StateFilter selects persisted node states.
type StateFilter struct {
	Pipeline string

	// Names restricts the result to these node names. Nil selects all.
	Names []string
}

// Run status values recorded in RunRecord.Status.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// RunRecord is one entry of the refresh history.
// Written by callers around the engine, never by the engine itself.
type RunRecord struct {
	ID         string    `json:"id"`
	Pipeline   string    `json:"pipeline"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Rebuilt    int       `json:"rebuilt"`
	Refreshed  int       `json:"refreshed"`
	Reaped     int       `json:"reaped"`
	Unchanged  int       `json:"unchanged"`
	Error      string    `json:"error,omitempty"`
}
