package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/strata/internal/ir"
)

// RecordRun writes one refresh history entry.
// Re-recording the same run ID overwrites the earlier entry.
func (s *Store) RecordRun(ctx context.Context, run ir.RunRecord) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO strata_runs
		(id, pipeline, started_at, finished_at, status, rebuilt, refreshed, reaped, unchanged, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			rebuilt = excluded.rebuilt,
			refreshed = excluded.refreshed,
			reaped = excluded.reaped,
			unchanged = excluded.unchanged,
			error = excluded.error
	`),
		run.ID,
		run.Pipeline,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.Status,
		run.Rebuilt,
		run.Refreshed,
		run.Reaped,
		run.Unchanged,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs of a pipeline, newest first.
// limit <= 0 returns every run.
func (s *Store) ListRuns(ctx context.Context, pipeline string, limit int) ([]ir.RunRecord, error) {
	query := `
		SELECT id, pipeline, started_at, finished_at, status, rebuilt, refreshed, reaped, unchanged, error
		FROM strata_runs
		WHERE pipeline = ?
		ORDER BY started_at DESC, id DESC`
	args := []any{pipeline}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.RunRecord{}
	for rows.Next() {
		var (
			run               ir.RunRecord
			started, finished string
		)
		if err := rows.Scan(
			&run.ID, &run.Pipeline, &started, &finished, &run.Status,
			&run.Rebuilt, &run.Refreshed, &run.Reaped, &run.Unchanged, &run.Error,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// timeLayout is RFC 3339 in UTC with a fixed nine-digit fraction, so
// stored timestamps sort lexically in time order on every driver.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
