package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/sgcc/internal/types"
)

const runColumns = `id, status, input_edges, partitions, max_iterations, iterations,
	last_changes, mapped_nodes, error, started_at, finished_at`

// CreateRun inserts a new run row.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *types.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.Status), run.InputEdges, run.Partitions, run.MaxIterations, run.Iterations,
		run.LastChanges, run.MappedNodes, run.Error, formatTime(run.StartedAt), nullTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun moves a run to a terminal status.
func (s *SQLiteStorage) FinishRun(ctx context.Context, id string, status types.RunStatus, iterations int, lastChanges int64, errMsg string) error {
	if !status.IsValid() || !status.IsTerminal() {
		return fmt.Errorf("invalid terminal status: %s", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, iterations = ?, last_changes = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, string(status), iterations, lastChanges, errMsg, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrRunNotFound, id)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*types.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*types.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*types.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent converged run, the one lookups answer from.
func (s *SQLiteStorage) LatestRun(ctx context.Context) (*types.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE status = ?
		ORDER BY started_at DESC, id
		LIMIT 1
	`, string(types.RunConverged))
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no converged run", types.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// PruneRuns deletes finished runs beyond the keep most recent, along with
// their iterations and mappings. Running runs and the latest converged run
// are never deleted. keep <= 0 deletes nothing.
func (s *SQLiteStorage) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE status != ?
		  AND id NOT IN (SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?)
		  AND id NOT IN (
		      SELECT id FROM runs WHERE status = ? ORDER BY started_at DESC, id LIMIT 1
		  )
	`, string(types.RunRunning), keep, string(types.RunConverged))
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return rowsAffected(res)
}

// RecordIteration stores the statistics of one round.
func (s *SQLiteStorage) RecordIteration(ctx context.Context, runID string, stat *types.IterationStat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO iterations (run_id, iteration, large_edges, small_edges, changes, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, stat.Iteration, stat.LargeEdges, stat.SmallEdges, stat.Changes, stat.Duration.Nanoseconds())
	if err != nil {
		return fmt.Errorf("failed to record iteration %d of run %s: %w", stat.Iteration, runID, err)
	}
	return nil
}

// GetIterations returns a run's rounds in order.
func (s *SQLiteStorage) GetIterations(ctx context.Context, runID string) ([]*types.IterationStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT iteration, large_edges, small_edges, changes, duration_ns
		FROM iterations
		WHERE run_id = ?
		ORDER BY iteration
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []*types.IterationStat
	for rows.Next() {
		stat := &types.IterationStat{RunID: runID}
		var durationNS int64
		if err := rows.Scan(&stat.Iteration, &stat.LargeEdges, &stat.SmallEdges, &stat.Changes, &durationNS); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		stat.Duration = time.Duration(durationNS)
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*types.Run, error) {
	var run types.Run
	var startedAt string
	var finishedAt sql.NullString

	err := row.Scan(&run.ID, &run.Status, &run.InputEdges, &run.Partitions, &run.MaxIterations,
		&run.Iterations, &run.LastChanges, &run.MappedNodes, &run.Error, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return &run, nil
}
