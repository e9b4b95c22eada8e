package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/steveyegge/sgcc/internal/types"
)

const runColumns = `id, status, input_edges, partitions, max_iterations, iterations,
	last_changes, mapped_nodes, error, started_at, finished_at`

// CreateRun inserts a new run row.
func (s *PostgresStorage) CreateRun(ctx context.Context, run *types.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, run.ID, string(run.Status), run.InputEdges, run.Partitions, run.MaxIterations, run.Iterations,
		run.LastChanges, run.MappedNodes, run.Error, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun moves a run to a terminal status.
func (s *PostgresStorage) FinishRun(ctx context.Context, id string, status types.RunStatus, iterations int, lastChanges int64, errMsg string) error {
	if !status.IsValid() || !status.IsTerminal() {
		return fmt.Errorf("invalid terminal status: %s", status)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE runs
		SET status = $1, iterations = $2, last_changes = $3, error = $4, finished_at = $5
		WHERE id = $6
	`, string(status), iterations, lastChanges, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", types.ErrRunNotFound, id)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *PostgresStorage) GetRun(ctx context.Context, id string) (*types.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *PostgresStorage) ListRuns(ctx context.Context, limit int) ([]*types.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

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
func (s *PostgresStorage) LatestRun(ctx context.Context) (*types.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE status = $1
		ORDER BY started_at DESC, id
		LIMIT 1
	`, string(types.RunConverged))
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStorage) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM runs
		WHERE status <> $1
		  AND id NOT IN (SELECT id FROM runs ORDER BY started_at DESC, id LIMIT $2)
		  AND id NOT IN (
		      SELECT id FROM runs WHERE status = $3 ORDER BY started_at DESC, id LIMIT 1
		  )
	`, string(types.RunRunning), keep, string(types.RunConverged))
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecordIteration stores the statistics of one round.
func (s *PostgresStorage) RecordIteration(ctx context.Context, runID string, stat *types.IterationStat) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO iterations (run_id, iteration, large_edges, small_edges, changes, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, runID, stat.Iteration, stat.LargeEdges, stat.SmallEdges, stat.Changes, stat.Duration.Nanoseconds())
	if err != nil {
		return fmt.Errorf("failed to record iteration %d of run %s: %w", stat.Iteration, runID, err)
	}
	return nil
}

// GetIterations returns a run's rounds in order.
func (s *PostgresStorage) GetIterations(ctx context.Context, runID string) ([]*types.IterationStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT iteration, large_edges, small_edges, changes, duration_ns
		FROM iterations
		WHERE run_id = $1
		ORDER BY iteration
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	defer rows.Close()

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

func scanRun(row pgx.Row) (*types.Run, error) {
	var run types.Run
	var status string
	var finishedAt *time.Time

	err := row.Scan(&run.ID, &status, &run.InputEdges, &run.Partitions, &run.MaxIterations,
		&run.Iterations, &run.LastChanges, &run.MappedNodes, &run.Error, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	run.Status = types.RunStatus(status)
	run.FinishedAt = finishedAt
	return &run, nil
}
