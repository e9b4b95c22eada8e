package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/steveyegge/sgcc/internal/dataset"
	"github.com/steveyegge/sgcc/internal/types"
)

// SaveMapping replaces the stored mapping of a run and records its size on
// the run row.
func (s *SQLiteStorage) SaveMapping(ctx context.Context, runID string, pairs []dataset.Pair[types.NodeID]) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mappings WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear mapping: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO mappings (run_id, node, representative) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare mapping insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range pairs {
		if _, err := stmt.ExecContext(ctx, runID, p.Key, p.Value); err != nil {
			return fmt.Errorf("failed to insert mapping (%d, %d): %w", p.Key, p.Value, err)
		}
	}

	res, err := tx.ExecContext(ctx, `UPDATE runs SET mapped_nodes = ? WHERE id = ?`, len(pairs), runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrRunNotFound, runID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mapping: %w", err)
	}
	return nil
}

// GetRepresentative returns the representative of node in a run. The boolean
// is false when the node has no row, in which case it represents itself.
func (s *SQLiteStorage) GetRepresentative(ctx context.Context, runID string, node types.NodeID) (types.NodeID, bool, error) {
	var rep types.NodeID
	err := s.db.QueryRowContext(ctx, `
		SELECT representative FROM mappings WHERE run_id = ? AND node = ?
	`, runID, node).Scan(&rep)
	if errors.Is(err, sql.ErrNoRows) {
		return node, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get representative: %w", err)
	}
	return rep, true, nil
}

// GetMembers returns the nodes mapped to representative, in ascending order.
// The representative itself is not included.
func (s *SQLiteStorage) GetMembers(ctx context.Context, runID string, representative types.NodeID) ([]types.NodeID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node FROM mappings
		WHERE run_id = ? AND representative = ?
		ORDER BY node
	`, runID, representative)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []types.NodeID
	for rows.Next() {
		var node types.NodeID
		if err := rows.Scan(&node); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, node)
	}
	return members, rows.Err()
}
