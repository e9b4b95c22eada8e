package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/steveyegge/sgcc/internal/types"
)

// AddEdges stores edges in canonical order, skipping self-loops and edges
// already present. Returns how many new edges were stored.
func (s *PostgresStorage) AddEdges(ctx context.Context, edges []types.Edge) (int, error) {
	added := 0
	for start := 0; start < len(edges); start += batchSize {
		end := min(start+batchSize, len(edges))
		n, err := s.addEdgeBatch(ctx, edges[start:end])
		added += n
		if err != nil {
			return added, err
		}
	}
	return added, nil
}

func (s *PostgresStorage) addEdgeBatch(ctx context.Context, edges []types.Edge) (int, error) {
	batch := &pgx.Batch{}
	for _, e := range edges {
		if e.IsSelfLoop() {
			continue
		}
		c := e.Canonical()
		batch.Queue(`INSERT INTO edges (u, v) VALUES ($1, $2) ON CONFLICT DO NOTHING`, c.U, c.V)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	added := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("failed to insert edge: %w", err)
		}
		added += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit edges: %w", err)
	}
	return added, nil
}

// StreamEdges calls fn for every stored edge in (u, v) order. An error from
// fn stops the scan and is returned.
func (s *PostgresStorage) StreamEdges(ctx context.Context, fn func(types.Edge) error) error {
	rows, err := s.pool.Query(ctx, `SELECT u, v FROM edges ORDER BY u, v`)
	if err != nil {
		return fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e types.Edge
		if err := rows.Scan(&e.U, &e.V); err != nil {
			return fmt.Errorf("failed to scan edge: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountEdges returns the number of stored edges.
func (s *PostgresStorage) CountEdges(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM edges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count edges: %w", err)
	}
	return n, nil
}

// ClearEdges deletes every stored edge. Runs and mappings are kept.
func (s *PostgresStorage) ClearEdges(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM edges`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear edges: %w", err)
	}
	return tag.RowsAffected(), nil
}
