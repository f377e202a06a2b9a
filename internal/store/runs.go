package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RunStatus is the terminal (or in-progress) state of a backup run.
type RunStatus string

// Run statuses, matching the CHECK constraint on runs.status.
const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

// RunCounts are the per-run outcome counters.
type RunCounts struct {
	Fetched  int
	Skipped  int
	Filtered int
	Failed   int
	Bytes    int64
}

// Run is one row of run history.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	WindowStart time.Time
	WindowEnd   time.Time
	Counts      RunCounts
	Status      RunStatus
}

const (
	sqlInsertRun = `INSERT INTO runs (id, started_at, window_start, window_end, status)
		VALUES (?, ?, ?, ?, 'running')`

	sqlFinishRun = `UPDATE runs SET finished_at = ?, fetched = ?, skipped = ?,
		filtered = ?, failed = ?, bytes = ?, status = ? WHERE id = ?`

	sqlRecentRuns = `SELECT id, started_at, finished_at, window_start, window_end,
		fetched, skipped, filtered, failed, bytes, status
		FROM runs ORDER BY started_at DESC LIMIT ?`
)

// BeginRun inserts a run row in the running state.
func (s *Store) BeginRun(ctx context.Context, id string, windowStart, windowEnd time.Time) error {
	_, err := s.db.ExecContext(ctx, sqlInsertRun,
		id, s.nowFunc().UnixNano(), windowStart.UnixNano(), windowEnd.UnixNano())
	if err != nil {
		return fmt.Errorf("store: recording run start %s: %w", id, err)
	}

	return nil
}

// FinishRun stores the final counters and status of a run.
func (s *Store) FinishRun(ctx context.Context, id string, counts RunCounts, status RunStatus) error {
	_, err := s.db.ExecContext(ctx, sqlFinishRun,
		s.nowFunc().UnixNano(), counts.Fetched, counts.Skipped, counts.Filtered,
		counts.Failed, counts.Bytes, string(status), id)
	if err != nil {
		return fmt.Errorf("store: recording run finish %s: %w", id, err)
	}

	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("store: querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var (
			r                 Run
			startedAt, wStart int64
			wEnd              int64
			finishedAt        sql.NullInt64
			status            string
		)

		err := rows.Scan(&r.ID, &startedAt, &finishedAt, &wStart, &wEnd,
			&r.Counts.Fetched, &r.Counts.Skipped, &r.Counts.Filtered, &r.Counts.Failed,
			&r.Counts.Bytes, &status)
		if err != nil {
			return nil, fmt.Errorf("store: scanning run row: %w", err)
		}

		r.StartedAt = time.Unix(0, startedAt).UTC()
		r.WindowStart = time.Unix(0, wStart).UTC()
		r.WindowEnd = time.Unix(0, wEnd).UTC()
		r.Status = RunStatus(status)

		if finishedAt.Valid {
			r.FinishedAt = time.Unix(0, finishedAt.Int64).UTC()
		}

		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating runs: %w", err)
	}

	return runs, nil
}
