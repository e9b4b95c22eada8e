package cc

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/sgcc/internal/dataset"
	"github.com/steveyegge/sgcc/internal/iterative"
	"github.com/steveyegge/sgcc/internal/logging"
	"github.com/steveyegge/sgcc/internal/types"
	"github.com/steveyegge/sgcc/internal/unionfind"
)

// testContext carries a discarding logger so Resolve stays quiet in tests.
func testContext() context.Context {
	return logging.WithLogger(context.Background(), logging.Discard())
}

func testOpts() dataset.Options {
	return dataset.Options{Partitions: 5, Parallelism: 4, MaxTaskAttempts: 3}
}

func collection(t *testing.T, edges []types.Edge, opts dataset.Options) Edges {
	t.Helper()
	pairs := make([]dataset.Pair[types.NodeID], len(edges))
	for i, e := range edges {
		pairs[i] = dataset.Pair[types.NodeID]{Key: e.U, Value: e.V}
	}
	c, err := dataset.Parallelize(pairs, opts)
	require.NoError(t, err)
	return c
}

func resolveMapping(t *testing.T, edges []types.Edge) (map[types.NodeID]types.NodeID, *Result) {
	t.Helper()
	res, err := Resolve(testContext(), collection(t, edges, testOpts()), DefaultOptions())
	require.NoError(t, err)
	lookup, err := res.Mapping.Collect(testContext())
	require.NoError(t, err)

	got := make(map[types.NodeID]types.NodeID, lookup.Len())
	for _, e := range lookup.Entries() {
		_, dup := got[e.Key]
		require.False(t, dup, "node %d appears twice", e.Key)
		got[e.Key] = e.Value
	}
	return got, res
}

func edgeList(kv ...types.NodeID) []types.Edge {
	out := make([]types.Edge, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, types.Edge{U: kv[i], V: kv[i+1]})
	}
	return out
}

func TestResolve_ScenarioA(t *testing.T) {
	got, _ := resolveMapping(t, edgeList(1, 2, 2, 3, 4, 5))
	assert.Equal(t, map[types.NodeID]types.NodeID{2: 1, 3: 1, 5: 4}, got)

	var entries []dataset.Pair[types.NodeID]
	for n, r := range got {
		entries = append(entries, dataset.Pair[types.NodeID]{Key: n, Value: r})
	}
	lookup := NewLookup(entries)
	assert.Equal(t, types.NodeID(1), lookup.Representative(1))
	assert.Equal(t, types.NodeID(1), lookup.Representative(3))
	assert.Equal(t, types.NodeID(4), lookup.Representative(5))
	// never mentioned
	assert.Equal(t, types.NodeID(6), lookup.Representative(6))
	assert.True(t, lookup.Keep(6))
	assert.True(t, lookup.Keep(4))
	assert.False(t, lookup.Keep(2))
}

func TestResolve_ScenarioB_Star(t *testing.T) {
	got, _ := resolveMapping(t, edgeList(5, 1, 5, 2, 5, 3, 5, 4))
	assert.Equal(t, map[types.NodeID]types.NodeID{2: 1, 3: 1, 4: 1, 5: 1}, got)
}

func TestResolve_ScenarioC_Chain(t *testing.T) {
	got, res := resolveMapping(t, edgeList(1, 2, 2, 3, 3, 4, 4, 5))
	assert.Equal(t, map[types.NodeID]types.NodeID{2: 1, 3: 1, 4: 1, 5: 1}, got)
	assert.Greater(t, res.Iterations, 1, "multi-hop propagation needs more than one round")
}

func TestResolve_EmptyInput(t *testing.T) {
	collector := iterative.NewInMemoryMetricsCollector()
	opts := DefaultOptions()
	opts.Collector = collector

	res, err := Resolve(testContext(), collection(t, nil, testOpts()), opts)
	require.NoError(t, err)
	assert.Zero(t, res.Iterations)
	assert.Zero(t, res.InputEdges)
	n, err := res.Mapping.Count(testContext())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, collector.GetRuns(), "no phase should run")
}

func TestResolve_OnlySelfLoops(t *testing.T) {
	got, res := resolveMapping(t, edgeList(3, 3, 7, 7))
	assert.Empty(t, got)
	assert.Zero(t, res.Iterations)
}

func TestResolve_DuplicateAndReversedEdges(t *testing.T) {
	once, _ := resolveMapping(t, edgeList(1, 2))
	noisy, res := resolveMapping(t, edgeList(1, 2, 2, 1, 1, 2, 1, 2, 2, 2))
	assert.Equal(t, once, noisy)
	assert.Equal(t, int64(1), res.InputEdges)
}

func TestResolve_NegativeIDs(t *testing.T) {
	got, _ := resolveMapping(t, edgeList(0, -3, 10, 0, -1, -2))
	assert.Equal(t, map[types.NodeID]types.NodeID{0: -3, 10: -3, -1: -2}, got)
}

// Reference equality against union-find on generated graphs.

func erdosRenyi(r *rand.Rand, n int, p float64) []types.Edge {
	ids := make([]types.NodeID, n)
	for i := range ids {
		ids[i] = r.Int64N(1_000_000) - 500_000
	}
	var edges []types.Edge
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if r.Float64() < p {
				edges = append(edges, types.Edge{U: ids[i], V: ids[j]})
			}
		}
	}
	return edges
}

func pathGraph(r *rand.Rand, n int) []types.Edge {
	perm := r.Perm(n)
	edges := make([]types.Edge, 0, n-1)
	for i := 0; i+1 < n; i++ {
		edges = append(edges, types.Edge{U: types.NodeID(perm[i]), V: types.NodeID(perm[i+1])})
	}
	return edges
}

func starGraph(center types.NodeID, leaves int) []types.Edge {
	edges := make([]types.Edge, 0, leaves)
	for i := 1; i <= leaves; i++ {
		edges = append(edges, types.Edge{U: center, V: center + types.NodeID(i)*3 - 7*types.NodeID(i%2)})
	}
	return edges
}

func disjointCliques(r *rand.Rand, cliques, size int) []types.Edge {
	var edges []types.Edge
	next := types.NodeID(0)
	for c := 0; c < cliques; c++ {
		members := make([]types.NodeID, size)
		for i := range members {
			members[i] = next
			next += types.NodeID(1 + r.IntN(5))
		}
		r.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		for i := 0; i < size; i++ {
			for j := i + 1; j < size; j++ {
				edges = append(edges, types.Edge{U: members[i], V: members[j]})
			}
		}
	}
	return edges
}

func TestResolve_MatchesUnionFind(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 42))
	graphs := map[string][]types.Edge{
		"erdos-renyi sparse": erdosRenyi(r, 300, 0.004),
		"erdos-renyi dense":  erdosRenyi(r, 120, 0.05),
		"path":               pathGraph(r, 257),
		"ordered path":       edgeList(1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8, 9, 9, 10),
		"star":               starGraph(1000, 200),
		"disjoint cliques":   disjointCliques(r, 12, 6),
	}

	for name, edges := range graphs {
		t.Run(name, func(t *testing.T) {
			require.NotEmpty(t, edges)
			got, res := resolveMapping(t, edges)
			want := unionfind.FromEdges(edges).Mapping()
			assert.Equal(t, want, got)
			assert.Less(t, res.Iterations, DefaultMaxIterations)

			// minimality: every representative is the minimum of its node's component
			uf := unionfind.FromEdges(edges)
			for n, m := range got {
				assert.Equal(t, uf.Find(n), m)
				assert.Less(t, m, n)
			}
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	edges := erdosRenyi(r, 150, 0.01)
	ctx := testContext()

	res, err := Resolve(ctx, collection(t, edges, testOpts()), DefaultOptions())
	require.NoError(t, err)

	converged := res.Mapping.Pairs()
	afterLarge, err := LargeStar(ctx, converged)
	require.NoError(t, err)
	afterSmall, err := SmallStar(ctx, afterLarge)
	require.NoError(t, err)

	changed, err := SymmetricDifference(ctx, converged, afterSmall)
	require.NoError(t, err)
	assert.Empty(t, changed)
	changed, err = SymmetricDifference(ctx, afterLarge, afterSmall)
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestResolve_PartitioningDoesNotMatter(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	edges := erdosRenyi(r, 200, 0.008)
	want := unionfind.FromEdges(edges).Mapping()

	for _, opts := range []dataset.Options{
		{Partitions: 1, Parallelism: 1, MaxTaskAttempts: 1},
		{Partitions: 2, Parallelism: 8, MaxTaskAttempts: 1},
		{Partitions: 31, Parallelism: 3, MaxTaskAttempts: 1},
	} {
		res, err := Resolve(testContext(), collection(t, edges, opts), DefaultOptions())
		require.NoError(t, err)
		lookup, err := res.Mapping.Collect(testContext())
		require.NoError(t, err)
		got := map[types.NodeID]types.NodeID{}
		for _, e := range lookup.Entries() {
			got[e.Key] = e.Value
		}
		assert.Equal(t, want, got, "partitions=%d", opts.Partitions)
	}
}

func TestResolve_IterationCapIsFatal(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxIterations = 1

	_, err := Resolve(testContext(), collection(t, edgeList(1, 2, 2, 3, 3, 4, 4, 5), testOpts()), opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, iterative.ErrIterationLimitExceeded)

	var notConverged *NotConvergedError
	require.ErrorAs(t, err, &notConverged)
	assert.Equal(t, 1, notConverged.Iterations)
	assert.Positive(t, notConverged.LastChanges)
}

func TestResolve_InvalidOptions(t *testing.T) {
	_, err := Resolve(testContext(), collection(t, edgeList(1, 2), testOpts()), Options{})
	assert.Error(t, err)
}

func TestResolve_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext())
	cancel()
	_, err := Resolve(ctx, collection(t, edgeList(1, 2, 2, 3), testOpts()), DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve_CanceledBetweenIterations(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext())
	defer cancel()

	opts := DefaultOptions()
	opts.OnIteration = func(ctx context.Context, stat types.IterationStat) error {
		cancel()
		return nil
	}
	_, err := Resolve(ctx, collection(t, pathGraph(rand.New(rand.NewPCG(5, 5)), 64), testOpts()), opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve_RecoversFromTaskFailures(t *testing.T) {
	opts := testOpts()
	opts.FaultInjector = func(stage string, partition, attempt int) error {
		if attempt == 1 && partition%2 == 0 {
			return errors.New("executor lost")
		}
		return nil
	}
	edges := disjointCliques(rand.New(rand.NewPCG(9, 9)), 5, 4)

	res, err := Resolve(testContext(), collection(t, edges, opts), DefaultOptions())
	require.NoError(t, err)
	lookup, err := res.Mapping.Collect(testContext())
	require.NoError(t, err)
	got := map[types.NodeID]types.NodeID{}
	for _, e := range lookup.Entries() {
		got[e.Key] = e.Value
	}
	assert.Equal(t, unionfind.FromEdges(edges).Mapping(), got)
}

func TestResolve_TaskFailureExhausted(t *testing.T) {
	opts := testOpts()
	opts.FaultInjector = func(stage string, partition, attempt int) error {
		if stage == "flatmapgroups" {
			return errors.New("disk full")
		}
		return nil
	}
	_, err := Resolve(testContext(), collection(t, edgeList(1, 2), opts), DefaultOptions())
	assert.ErrorIs(t, err, dataset.ErrTaskFailed)
}

func TestResolve_IterationHookAndMetrics(t *testing.T) {
	collector := iterative.NewInMemoryMetricsCollector()
	var stats []types.IterationStat
	opts := DefaultOptions()
	opts.Collector = collector
	opts.OnIteration = func(ctx context.Context, stat types.IterationStat) error {
		stats = append(stats, stat)
		return nil
	}

	res, err := Resolve(testContext(), collection(t, edgeList(1, 2, 2, 3, 3, 4, 4, 5), testOpts()), opts)
	require.NoError(t, err)

	require.Len(t, stats, res.Iterations)
	for i, s := range stats {
		assert.Equal(t, i+1, s.Iteration)
	}
	last := stats[len(stats)-1]
	assert.Zero(t, last.Changes)
	assert.Equal(t, int64(4), last.SmallEdges)
	assert.Positive(t, stats[0].Changes)

	runs := collector.GetRuns()
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Converged)
	assert.Equal(t, res.Iterations, runs[0].TotalIterations)
	assert.Equal(t, "symmetric-difference", runs[0].Iterations[0].Strategy)
}

func TestResolve_IterationHookErrorAborts(t *testing.T) {
	boom := errors.New("store unavailable")
	opts := DefaultOptions()
	opts.OnIteration = func(ctx context.Context, stat types.IterationStat) error { return boom }

	_, err := Resolve(testContext(), collection(t, edgeList(1, 2), testOpts()), opts)
	assert.ErrorIs(t, err, boom)
}

func TestResolve_LogsToContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := logging.WithLogger(context.Background(), logging.New("info", "text", &buf))

	_, err := Resolve(ctx, collection(t, edgeList(1, 2, 2, 3), testOpts()), DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "connected components converged")
}
