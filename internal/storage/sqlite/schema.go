package sqlite

// Timestamps are stored as fixed-width UTC RFC 3339 text so they round-trip
// independently of driver time handling and sort correctly.
const schema = `
-- Candidate-duplicate edges, smaller endpoint first
CREATE TABLE IF NOT EXISTS edges (
    u INTEGER NOT NULL,
    v INTEGER NOT NULL,
    PRIMARY KEY (u, v),
    CHECK (u < v)
) WITHOUT ROWID;

-- Resolver runs
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    input_edges INTEGER NOT NULL DEFAULT 0,
    partitions INTEGER NOT NULL,
    max_iterations INTEGER NOT NULL,
    iterations INTEGER NOT NULL DEFAULT 0,
    last_changes INTEGER NOT NULL DEFAULT 0,
    mapped_nodes INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    finished_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

-- Per-round statistics of a run
CREATE TABLE IF NOT EXISTS iterations (
    run_id TEXT NOT NULL,
    iteration INTEGER NOT NULL,
    large_edges INTEGER NOT NULL,
    small_edges INTEGER NOT NULL,
    changes INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    PRIMARY KEY (run_id, iteration),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

-- Converged (node, representative) pairs of a run
CREATE TABLE IF NOT EXISTS mappings (
    run_id TEXT NOT NULL,
    node INTEGER NOT NULL,
    representative INTEGER NOT NULL,
    PRIMARY KEY (run_id, node),
    CHECK (representative < node),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_mappings_representative ON mappings(run_id, representative);
`
