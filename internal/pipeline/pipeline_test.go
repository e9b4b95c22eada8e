package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/sgcc/internal/cc"
	"github.com/steveyegge/sgcc/internal/config"
	"github.com/steveyegge/sgcc/internal/iterative"
	"github.com/steveyegge/sgcc/internal/logging"
	"github.com/steveyegge/sgcc/internal/storage"
	"github.com/steveyegge/sgcc/internal/storage/sqlite"
	"github.com/steveyegge/sgcc/internal/types"
)

func setup(t *testing.T, edges []types.Edge) (context.Context, storage.Storage) {
	t.Helper()
	ctx := logging.WithLogger(context.Background(), logging.Discard())
	st, err := storage.NewStorage(ctx, &storage.Config{Path: sqlite.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	_, err = st.AddEdges(ctx, edges)
	require.NoError(t, err)
	return ctx, st
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Partitions = 3
	cfg.Parallelism = 2
	return cfg
}

func path(n int) []types.Edge {
	var edges []types.Edge
	for i := 1; i < n; i++ {
		edges = append(edges, types.Edge{U: types.NodeID(i), V: types.NodeID(i + 1)})
	}
	return edges
}

func TestResolveRecordsConvergedRun(t *testing.T) {
	ctx, st := setup(t, []types.Edge{{U: 1, V: 2}, {U: 2, V: 3}, {U: 5, V: 4}, {U: 6, V: 6}})

	metrics := iterative.NewInMemoryMetricsCollector()
	out, err := Resolve(ctx, st, Options{Config: testConfig(), RunID: "run-1", Collector: metrics})
	require.NoError(t, err)

	assert.Equal(t, types.RunConverged, out.Run.Status)
	assert.Equal(t, int64(3), out.Run.InputEdges)
	assert.Equal(t, int64(3), out.Run.MappedNodes)
	assert.NotNil(t, out.Run.FinishedAt)
	assert.Equal(t, out.Result.Iterations, out.Run.Iterations)

	assert.Equal(t, types.NodeID(1), out.Lookup.Representative(3))
	assert.Equal(t, types.NodeID(4), out.Lookup.Representative(5))
	assert.True(t, out.Lookup.Keep(6))

	stats, err := st.GetIterations(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, stats, out.Run.Iterations)
	assert.Equal(t, 1, metrics.GetAggregateMetrics().ConvergedRuns)

	rep, ok, err := st.GetRepresentative(ctx, "run-1", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, types.NodeID(1), rep)

	latest, err := st.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.ID)
}

func TestResolveGeneratesRunID(t *testing.T) {
	ctx, st := setup(t, []types.Edge{{U: 1, V: 2}})
	out, err := Resolve(ctx, st, Options{Config: testConfig()})
	require.NoError(t, err)
	assert.Len(t, out.Run.ID, 36)
}

func TestResolveEmptyGraph(t *testing.T) {
	ctx, st := setup(t, nil)
	out, err := Resolve(ctx, st, Options{Config: testConfig(), RunID: "empty"})
	require.NoError(t, err)
	assert.Equal(t, types.RunConverged, out.Run.Status)
	assert.Equal(t, 0, out.Run.Iterations)
	assert.Equal(t, 0, out.Lookup.Len())
}

func TestResolveRecordsNotConverged(t *testing.T) {
	ctx, st := setup(t, path(5))
	cfg := testConfig()
	cfg.MaxIterations = 1

	out, err := Resolve(ctx, st, Options{Config: cfg, RunID: "capped"})
	require.Error(t, err)
	assert.ErrorIs(t, err, iterative.ErrIterationLimitExceeded)
	var nc *cc.NotConvergedError
	assert.True(t, errors.As(err, &nc))

	require.NotNil(t, out)
	assert.Equal(t, types.RunNotConverged, out.Run.Status)
	assert.Equal(t, 1, out.Run.Iterations)
	assert.Positive(t, out.Run.LastChanges)
	assert.NotEmpty(t, out.Run.Error)
	assert.Nil(t, out.Lookup)

	_, err = st.LatestRun(ctx)
	assert.ErrorIs(t, err, types.ErrRunNotFound)
}

// cancelingCollector cancels the run after the first iteration completes.
type cancelingCollector struct {
	*iterative.InMemoryMetricsCollector
	cancel context.CancelFunc
}

func (c *cancelingCollector) RecordIterationEnd(iteration int, m *iterative.IterationMetrics) {
	c.InMemoryMetricsCollector.RecordIterationEnd(iteration, m)
	c.cancel()
}

func TestResolveRecordsCanceled(t *testing.T) {
	ctx, st := setup(t, path(16))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	collector := &cancelingCollector{InMemoryMetricsCollector: iterative.NewInMemoryMetricsCollector(), cancel: cancel}
	out, err := Resolve(ctx, st, Options{Config: testConfig(), RunID: "canceled", Collector: collector})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, out)
	assert.Equal(t, types.RunCanceled, out.Run.Status)
	assert.Equal(t, 1, out.Run.Iterations)
}

func TestResolveRejectsInvalidConfig(t *testing.T) {
	ctx, st := setup(t, nil)
	cfg := testConfig()
	cfg.Partitions = 0
	_, err := Resolve(ctx, st, Options{Config: cfg})
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	ctx, st := setup(t, []types.Edge{{U: 10, V: 3}, {U: 3, V: 7}, {U: 8, V: 9}, {U: -2, V: 8}})
	_, err := Resolve(ctx, st, Options{Config: testConfig(), RunID: "run-1"})
	require.NoError(t, err)

	report, err := Verify(ctx, st, "run-1", 0)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 6, report.Nodes)
	assert.Equal(t, 2, report.Components)

	// Bridging the two components after the run makes the stored mapping stale.
	_, err = st.AddEdges(ctx, []types.Edge{{U: 7, V: 9}})
	require.NoError(t, err)
	report, err = Verify(ctx, st, "run-1", 1)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Len(t, report.Mismatches, 1)
	assert.True(t, report.Truncated)
	assert.Equal(t, types.NodeID(-2), report.Mismatches[0].Want)
}

func TestVerifyDetectsRemovedEdges(t *testing.T) {
	ctx, st := setup(t, []types.Edge{{U: 1, V: 2}, {U: 3, V: 4}})
	_, err := Resolve(ctx, st, Options{Config: testConfig(), RunID: "run-1"})
	require.NoError(t, err)

	_, err = st.ClearEdges(ctx)
	require.NoError(t, err)
	_, err = st.AddEdges(ctx, []types.Edge{{U: 1, V: 2}})
	require.NoError(t, err)

	_, err = Verify(ctx, st, "run-1", 0)
	assert.Error(t, err)
}

func TestVerifyRequiresConvergedRun(t *testing.T) {
	ctx, st := setup(t, path(5))
	cfg := testConfig()
	cfg.MaxIterations = 1
	_, _ = Resolve(ctx, st, Options{Config: cfg, RunID: "capped"})

	_, err := Verify(ctx, st, "capped", 0)
	assert.Error(t, err)
	_, err = Verify(ctx, st, "missing", 0)
	assert.ErrorIs(t, err, types.ErrRunNotFound)
}
