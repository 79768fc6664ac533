package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/strata/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(DriverSQLite3, path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestState creates a node state with a cleanup statement derived
// from the name.
func createTestState(pipeline, name, hash string) ir.NodeState {
	return ir.NodeState{
		Pipeline:         pipeline,
		Name:             name,
		ContentHash:      hash,
		CleanupStatement: "DROP TABLE IF EXISTS " + name,
	}
}
