package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/steveyegge/sgcc/internal/dataset"
	"github.com/steveyegge/sgcc/internal/types"
)

// SaveMapping replaces the stored mapping of a run and records its size on
// the run row. Rows are bulk loaded with COPY.
func (s *PostgresStorage) SaveMapping(ctx context.Context, runID string, pairs []dataset.Pair[types.NodeID]) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE runs SET mapped_nodes = $1 WHERE id = $2`, len(pairs), runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", types.ErrRunNotFound, runID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM mappings WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to clear mapping: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"mappings"},
		[]string{"run_id", "node", "representative"},
		pgx.CopyFromSlice(len(pairs), func(i int) ([]any, error) {
			return []any{runID, pairs[i].Key, pairs[i].Value}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy mapping: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit mapping: %w", err)
	}
	return nil
}

// GetRepresentative returns the representative of node in a run. The boolean
// is false when the node has no row, in which case it represents itself.
func (s *PostgresStorage) GetRepresentative(ctx context.Context, runID string, node types.NodeID) (types.NodeID, bool, error) {
	var rep types.NodeID
	err := s.pool.QueryRow(ctx, `
		SELECT representative FROM mappings WHERE run_id = $1 AND node = $2
	`, runID, node).Scan(&rep)
	if errors.Is(err, pgx.ErrNoRows) {
		return node, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get representative: %w", err)
	}
	return rep, true, nil
}

// GetMembers returns the nodes mapped to representative, in ascending order.
// The representative itself is not included.
func (s *PostgresStorage) GetMembers(ctx context.Context, runID string, representative types.NodeID) ([]types.NodeID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT node FROM mappings
		WHERE run_id = $1 AND representative = $2
		ORDER BY node
	`, runID, representative)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	members, err := pgx.CollectRows(rows, pgx.RowTo[types.NodeID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan members: %w", err)
	}
	return members, nil
}
