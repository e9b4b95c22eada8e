package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/steveyegge/sgcc/internal/types"
)

// AddEdges stores edges in canonical order, skipping self-loops and edges
// already present. Returns how many new edges were stored.
func (s *SQLiteStorage) AddEdges(ctx context.Context, edges []types.Edge) (int, error) {
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

func (s *SQLiteStorage) addEdgeBatch(ctx context.Context, edges []types.Edge) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO edges (u, v) VALUES (?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	added := 0
	for _, e := range edges {
		if e.IsSelfLoop() {
			continue
		}
		c := e.Canonical()
		res, err := stmt.ExecContext(ctx, c.U, c.V)
		if err != nil {
			return 0, fmt.Errorf("failed to insert edge %s: %w", c, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit edges: %w", err)
	}
	return added, nil
}

// StreamEdges calls fn for every stored edge in (u, v) order. fn must not
// call back into the storage; an error from fn stops the scan and is returned.
func (s *SQLiteStorage) StreamEdges(ctx context.Context, fn func(types.Edge) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT u, v FROM edges ORDER BY u, v`)
	if err != nil {
		return fmt.Errorf("failed to query edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (s *SQLiteStorage) CountEdges(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count edges: %w", err)
	}
	return n, nil
}

// ClearEdges deletes every stored edge. Runs and mappings are kept.
func (s *SQLiteStorage) ClearEdges(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM edges`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear edges: %w", err)
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
