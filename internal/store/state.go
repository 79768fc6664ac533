package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/strata/internal/ir"
)

// FindStates returns the persisted node states matching filter, ordered by
// name. A non-nil but empty filter.Names matches nothing.
//
// Returns an empty slice (not nil) if no rows match.
// Implements ir.StateStore.
func (s *Store) FindStates(ctx context.Context, filter ir.StateFilter) ([]ir.NodeState, error) {
	states := []ir.NodeState{}
	if filter.Names != nil && len(filter.Names) == 0 {
		return states, nil
	}

	query := `
		SELECT pipeline, name, content_hash, cleanup_statement
		FROM strata_node_state
		WHERE pipeline = ?`
	args := []any{filter.Pipeline}
	if filter.Names != nil {
		query += ` AND name IN (` + placeholders(len(filter.Names)) + `)`
		for _, name := range filter.Names {
			args = append(args, name)
		}
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query node states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st ir.NodeState
		if err := rows.Scan(&st.Pipeline, &st.Name, &st.ContentHash, &st.CleanupStatement); err != nil {
			return nil, fmt.Errorf("scan node state: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate node states: %w", err)
	}

	return states, nil
}

// UpsertState inserts or replaces the state row of a node.
// Implements ir.StateStore.
func (s *Store) UpsertState(ctx context.Context, state ir.NodeState) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO strata_node_state
		(pipeline, name, content_hash, cleanup_statement, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (pipeline, name) DO UPDATE SET
			content_hash = excluded.content_hash,
			cleanup_statement = excluded.cleanup_statement,
			updated_at = excluded.updated_at
	`),
		state.Pipeline,
		state.Name,
		state.ContentHash,
		state.CleanupStatement,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert node state %s/%s: %w", state.Pipeline, state.Name, err)
	}
	return nil
}

// DeleteState removes the state row of a node. Deleting a missing row is
// not an error.
// Implements ir.StateStore.
func (s *Store) DeleteState(ctx context.Context, pipeline, name string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM strata_node_state WHERE pipeline = ? AND name = ?
	`), pipeline, name)
	if err != nil {
		return fmt.Errorf("delete node state %s/%s: %w", pipeline, name, err)
	}
	return nil
}

// ListPipelines returns the distinct pipelines that have node states.
func (s *Store) ListPipelines(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT pipeline FROM strata_node_state ORDER BY pipeline ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pipelines: %w", err)
	}
	defer rows.Close()

	pipelines := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, rows.Err()
}
