package dataset

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/sgcc/internal/logging"
)

// testContext discards the retry warnings fault-injection tests trigger.
func testContext() context.Context {
	return logging.WithLogger(context.Background(), logging.Discard())
}

func testOptions() Options {
	return Options{Partitions: 4, Parallelism: 3, MaxTaskAttempts: 3}
}

func pairs(kv ...int64) []Pair[int64] {
	out := make([]Pair[int64], 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, Pair[int64]{Key: kv[i], Value: kv[i+1]})
	}
	return out
}

func sorted(t *testing.T, c Collection[int64]) []Pair[int64] {
	t.Helper()
	got, err := c.Collect(testContext())
	require.NoError(t, err)
	slices.SortFunc(got, comparePairs[int64])
	return got
}

func TestParallelize(t *testing.T) {
	in := pairs(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	c, err := Parallelize(in, testOptions())
	require.NoError(t, err)
	assert.Equal(t, 4, c.NumPartitions())

	n, err := c.Count(testContext())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	// input is copied
	in[0].Key = 100
	assert.Equal(t, pairs(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), sorted(t, c))
}

func TestParallelize_InvalidOptions(t *testing.T) {
	_, err := Parallelize(pairs(1, 2), Options{Partitions: 0, Parallelism: 1, MaxTaskAttempts: 1})
	assert.Error(t, err)
	_, err = Parallelize(pairs(1, 2), Options{Partitions: 1, Parallelism: 0, MaxTaskAttempts: 1})
	assert.Error(t, err)
	_, err = Parallelize(pairs(1, 2), Options{Partitions: 1, Parallelism: 1, MaxTaskAttempts: 0})
	assert.Error(t, err)
	assert.NoError(t, DefaultOptions().Validate())
}

func TestParallelize_Empty(t *testing.T) {
	c, err := Parallelize[int64](nil, testOptions())
	require.NoError(t, err)
	n, err := c.Count(testContext())
	require.NoError(t, err)
	assert.Zero(t, n)

	d, err := c.Distinct(testContext())
	require.NoError(t, err)
	assert.Empty(t, sorted(t, d))
}

func TestMapAndFlatMap(t *testing.T) {
	ctx := testContext()
	c, err := Parallelize(pairs(1, 2, 5, 3), testOptions())
	require.NoError(t, err)

	swapped, err := c.Map(ctx, Pair[int64].Swap)
	require.NoError(t, err)
	assert.Equal(t, pairs(2, 1, 3, 5), sorted(t, swapped))

	both, err := c.FlatMap(ctx, func(p Pair[int64], emit Emit[int64]) {
		emit(p)
		emit(p.Swap())
	})
	require.NoError(t, err)
	assert.Equal(t, pairs(1, 2, 2, 1, 3, 5, 5, 3), sorted(t, both))

	// receiver is unchanged
	assert.Equal(t, pairs(1, 2, 5, 3), sorted(t, c))
}

func TestDistinct(t *testing.T) {
	c, err := Parallelize(pairs(1, 2, 1, 2, 2, 1, 1, 2, 3, 3), testOptions())
	require.NoError(t, err)
	d, err := c.Distinct(testContext())
	require.NoError(t, err)
	assert.Equal(t, pairs(1, 2, 2, 1, 3, 3), sorted(t, d))
	assert.Equal(t, 4, d.NumPartitions())
}

func TestGroupByKey(t *testing.T) {
	ctx := testContext()
	c, err := Parallelize(pairs(1, 9, 2, 4, 1, 3, 1, 3, 7, 1), testOptions())
	require.NoError(t, err)

	g, err := c.GroupByKey(ctx)
	require.NoError(t, err)

	var mu sync.Mutex
	groups := map[int64][]int64{}
	out, err := g.FlatMapGroups(ctx, func(key int64, values []int64, emit Emit[int64]) {
		mu.Lock()
		groups[key] = slices.Clone(values)
		mu.Unlock()
		emit(Pair[int64]{Key: key, Value: int64(len(values))})
	})
	require.NoError(t, err)

	// values arrive sorted, duplicates kept
	assert.Equal(t, map[int64][]int64{1: {3, 3, 9}, 2: {4}, 7: {1}}, groups)
	assert.Equal(t, pairs(1, 3, 2, 1, 7, 1), sorted(t, out))
}

func TestUnionAndSubtract(t *testing.T) {
	ctx := testContext()
	a, err := Parallelize(pairs(1, 2, 2, 3, 3, 4, 3, 4), testOptions())
	require.NoError(t, err)
	b, err := Parallelize(pairs(2, 3, 9, 9), Options{Partitions: 2, Parallelism: 1, MaxTaskAttempts: 1})
	require.NoError(t, err)

	u, err := a.Union(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, a.NumPartitions()+b.NumPartitions(), u.NumPartitions())
	assert.Equal(t, pairs(1, 2, 2, 3, 2, 3, 3, 4, 3, 4, 9, 9), sorted(t, u))

	diff, err := a.Subtract(ctx, b)
	require.NoError(t, err)
	// every copy of a surviving element is kept
	assert.Equal(t, pairs(1, 2, 3, 4, 3, 4), sorted(t, diff))

	empty, err := a.Subtract(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, sorted(t, empty))
}

type foreign struct{ Collection[int64] }

func TestIncompatibleCollections(t *testing.T) {
	ctx := testContext()
	a, err := Parallelize(pairs(1, 2), testOptions())
	require.NoError(t, err)

	_, err = a.Union(ctx, foreign{})
	assert.ErrorIs(t, err, ErrIncompatible)
	_, err = a.Subtract(ctx, foreign{})
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestTaskRetry_RecomputesFailedPartition(t *testing.T) {
	opts := testOptions()
	var failures atomic.Int32
	opts.FaultInjector = func(stage string, partition, attempt int) error {
		if stage == "distinct/reduce" && partition == 1 && attempt < 3 {
			failures.Add(1)
			return errors.New("executor lost")
		}
		return nil
	}

	c, err := Parallelize(pairs(1, 2, 1, 2, 3, 4, 5, 6, 5, 6), opts)
	require.NoError(t, err)
	d, err := c.Distinct(testContext())
	require.NoError(t, err)
	assert.Equal(t, pairs(1, 2, 3, 4, 5, 6), sorted(t, d))
	assert.Equal(t, int32(2), failures.Load())
}

func TestTaskRetry_ExhaustedAttempts(t *testing.T) {
	opts := testOptions()
	lost := errors.New("executor lost")
	opts.FaultInjector = func(stage string, partition, attempt int) error {
		if stage == "map" && partition == 2 {
			return lost
		}
		return nil
	}

	c, err := Parallelize(pairs(1, 2, 3, 4, 5, 6, 7, 8), opts)
	require.NoError(t, err)
	_, err = c.Map(testContext(), Pair[int64].Swap)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskFailed)
	assert.ErrorIs(t, err, lost)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "map", taskErr.Stage)
	assert.Equal(t, 2, taskErr.Partition)
	assert.Equal(t, 3, taskErr.Attempts)
}

func TestTaskRetry_RecoversPanics(t *testing.T) {
	var calls atomic.Int32
	c, err := Parallelize(pairs(1, 2), Options{Partitions: 1, Parallelism: 1, MaxTaskAttempts: 2})
	require.NoError(t, err)

	out, err := c.Map(testContext(), func(p Pair[int64]) Pair[int64] {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return p.Swap()
	})
	require.NoError(t, err)
	assert.Equal(t, pairs(2, 1), sorted(t, out))
}

func TestCanceledContext(t *testing.T) {
	c, err := Parallelize(pairs(1, 2, 3, 4), testOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	_, err = c.Map(ctx, Pair[int64].Swap)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = c.Distinct(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = c.GroupByKey(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = c.Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = c.Cache(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = c.Count(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPartitioningIsDeterministic(t *testing.T) {
	for _, n := range []int{1, 3, 8} {
		for k := int64(-50); k < 50; k++ {
			p := Pair[int64]{Key: k, Value: k * 7}
			a := keyPartition(p, n)
			assert.Equal(t, a, keyPartition(Pair[int64]{Key: k, Value: 0}, n))
			assert.True(t, a >= 0 && a < n)
			b := pairPartition(p, n)
			assert.Equal(t, b, pairPartition(p, n))
			assert.True(t, b >= 0 && b < n)
		}
	}
}
