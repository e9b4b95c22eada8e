package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/steveyegge/sgcc/internal/config"
	"github.com/steveyegge/sgcc/internal/dataset"
	"github.com/steveyegge/sgcc/internal/storage/postgres"
	"github.com/steveyegge/sgcc/internal/storage/sqlite"
	"github.com/steveyegge/sgcc/internal/types"
)

// Storage defines the interface for edge, run and mapping storage backends
type Storage interface {
	// Edges - the candidate-duplicate graph. Edges are stored once, smaller
	// endpoint first; self-loops are skipped.
	AddEdges(ctx context.Context, edges []types.Edge) (int, error)
	StreamEdges(ctx context.Context, fn func(types.Edge) error) error
	CountEdges(ctx context.Context) (int64, error)
	ClearEdges(ctx context.Context) (int64, error)

	// Runs - one row per resolver invocation plus its iteration history
	CreateRun(ctx context.Context, run *types.Run) error
	FinishRun(ctx context.Context, id string, status types.RunStatus, iterations int, lastChanges int64, errMsg string) error
	GetRun(ctx context.Context, id string) (*types.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*types.Run, error)
	LatestRun(ctx context.Context) (*types.Run, error)
	RecordIteration(ctx context.Context, runID string, stat *types.IterationStat) error
	GetIterations(ctx context.Context, runID string) ([]*types.IterationStat, error)
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// Mappings - (node, representative) rows of a converged run. A node with
	// no row is its own representative.
	SaveMapping(ctx context.Context, runID string, pairs []dataset.Pair[types.NodeID]) error
	GetRepresentative(ctx context.Context, runID string, node types.NodeID) (types.NodeID, bool, error)
	GetMembers(ctx context.Context, runID string, representative types.NodeID) ([]types.NodeID, error)

	// Lifecycle
	Close() error
}

// Compile-time checks that both backends satisfy Storage.
var (
	_ Storage = (*sqlite.SQLiteStorage)(nil)
	_ Storage = (*postgres.PostgresStorage)(nil)
)

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".sgcc/sgcc.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string

	// PostgresURL selects the PostgreSQL backend when set and takes
	// precedence over Path.
	PostgresURL string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: filepath.Join(config.ProjectDir, "sgcc.db"),
	}
}

// FromConfig extracts the storage settings from the resolved application config.
func FromConfig(cfg config.Config) *Config {
	return &Config{
		Path:        cfg.DBPath,
		PostgresURL: cfg.PostgresURL,
	}
}

// NewStorage opens the backend selected by cfg: PostgreSQL when a URL is
// configured, SQLite otherwise.
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.PostgresURL != "" {
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.PostgresURL
		st, err := postgres.New(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return st, nil
	}

	path := cfg.Path
	if path == "" {
		path = DefaultConfig().Path
	}
	st, err := sqlite.New(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite storage %s: %w", path, err)
	}
	return st, nil
}
