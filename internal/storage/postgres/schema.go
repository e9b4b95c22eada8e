package postgres

const schema = `
-- Candidate-duplicate edges, smaller endpoint first
CREATE TABLE IF NOT EXISTS edges (
    u BIGINT NOT NULL,
    v BIGINT NOT NULL,
    PRIMARY KEY (u, v),
    CHECK (u < v)
);

-- Resolver runs
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    input_edges BIGINT NOT NULL DEFAULT 0,
    partitions INTEGER NOT NULL,
    max_iterations INTEGER NOT NULL,
    iterations INTEGER NOT NULL DEFAULT 0,
    last_changes BIGINT NOT NULL DEFAULT 0,
    mapped_nodes BIGINT NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

-- Per-round statistics of a run
CREATE TABLE IF NOT EXISTS iterations (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    iteration INTEGER NOT NULL,
    large_edges BIGINT NOT NULL,
    small_edges BIGINT NOT NULL,
    changes BIGINT NOT NULL,
    duration_ns BIGINT NOT NULL,
    PRIMARY KEY (run_id, iteration)
);

-- Converged (node, representative) pairs of a run
CREATE TABLE IF NOT EXISTS mappings (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    node BIGINT NOT NULL,
    representative BIGINT NOT NULL,
    PRIMARY KEY (run_id, node),
    CHECK (representative < node)
);

CREATE INDEX IF NOT EXISTS idx_mappings_representative ON mappings(run_id, representative);
`
