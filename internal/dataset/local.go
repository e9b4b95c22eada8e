package dataset

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/sgcc/internal/logging"
)

// cancelCheckInterval is how many elements a task processes between context checks.
const cancelCheckInterval = 1 << 12

// engine holds the configuration shared by every collection derived from one
// Parallelize call.
type engine struct {
	opts Options
}

type localCollection[K ID] struct {
	eng   *engine
	parts [][]Pair[K]
}

type localGrouped[K ID] struct {
	eng *engine
	// parts are sorted by (key, value) and every key lives in exactly one partition
	parts [][]Pair[K]
}

// Parallelize splits pairs into opts.Partitions contiguous partitions. The
// input slice is copied, so callers may reuse it.
func Parallelize[K ID](pairs []Pair[K], opts Options) (Collection[K], error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset options: %w", err)
	}
	n := opts.Partitions
	parts := make([][]Pair[K], n)
	for i := 0; i < n; i++ {
		lo := i * len(pairs) / n
		hi := (i + 1) * len(pairs) / n
		parts[i] = slices.Clone(pairs[lo:hi])
	}
	return &localCollection[K]{eng: &engine{opts: opts}, parts: parts}, nil
}

func (c *localCollection[K]) derive(parts [][]Pair[K]) *localCollection[K] {
	return &localCollection[K]{eng: c.eng, parts: parts}
}

func (c *localCollection[K]) NumPartitions() int {
	return len(c.parts)
}

func (c *localCollection[K]) Map(ctx context.Context, fn func(Pair[K]) Pair[K]) (Collection[K], error) {
	parts, err := runTasks(ctx, c.eng, "map", len(c.parts), func(ctx context.Context, p int) ([]Pair[K], error) {
		in := c.parts[p]
		out := make([]Pair[K], len(in))
		for i, x := range in {
			if err := checkCanceled(ctx, i); err != nil {
				return nil, err
			}
			out[i] = fn(x)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return c.derive(parts), nil
}

func (c *localCollection[K]) FlatMap(ctx context.Context, fn func(Pair[K], Emit[K])) (Collection[K], error) {
	parts, err := runTasks(ctx, c.eng, "flatmap", len(c.parts), func(ctx context.Context, p int) ([]Pair[K], error) {
		in := c.parts[p]
		out := make([]Pair[K], 0, len(in))
		emit := func(x Pair[K]) { out = append(out, x) }
		for i, x := range in {
			if err := checkCanceled(ctx, i); err != nil {
				return nil, err
			}
			fn(x, emit)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return c.derive(parts), nil
}

func (c *localCollection[K]) GroupByKey(ctx context.Context) (Grouped[K], error) {
	parts, err := exchange(ctx, c.eng, "groupbykey", c.parts, keyPartition[K], sortPairs[K])
	if err != nil {
		return nil, err
	}
	return &localGrouped[K]{eng: c.eng, parts: parts}, nil
}

func (c *localCollection[K]) Distinct(ctx context.Context) (Collection[K], error) {
	parts, err := exchange(ctx, c.eng, "distinct", c.parts, pairPartition[K], func(ctx context.Context, in []Pair[K]) ([]Pair[K], error) {
		in, err := sortPairs(ctx, in)
		if err != nil {
			return nil, err
		}
		return slices.Clip(slices.Compact(in)), nil
	})
	if err != nil {
		return nil, err
	}
	return c.derive(parts), nil
}

func (c *localCollection[K]) Union(ctx context.Context, other Collection[K]) (Collection[K], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, ok := other.(*localCollection[K])
	if !ok {
		return nil, fmt.Errorf("union with %T: %w", other, ErrIncompatible)
	}
	parts := make([][]Pair[K], 0, len(c.parts)+len(o.parts))
	parts = append(parts, c.parts...)
	parts = append(parts, o.parts...)
	return c.derive(parts), nil
}

func (c *localCollection[K]) Subtract(ctx context.Context, other Collection[K]) (Collection[K], error) {
	o, ok := other.(*localCollection[K])
	if !ok {
		return nil, fmt.Errorf("subtract %T: %w", other, ErrIncompatible)
	}
	left, err := exchange(ctx, c.eng, "subtract/left", c.parts, pairPartition[K], sortPairs[K])
	if err != nil {
		return nil, err
	}
	right, err := exchange(ctx, c.eng, "subtract/right", o.parts, pairPartition[K], sortPairs[K])
	if err != nil {
		return nil, err
	}
	parts, err := runTasks(ctx, c.eng, "subtract/merge", len(left), func(ctx context.Context, p int) ([]Pair[K], error) {
		return subtractSorted(ctx, left[p], right[p])
	})
	if err != nil {
		return nil, err
	}
	return c.derive(parts), nil
}

func (c *localCollection[K]) Collect(ctx context.Context) ([]Pair[K], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	size := 0
	for _, p := range c.parts {
		size += len(p)
	}
	out := make([]Pair[K], 0, size)
	for _, p := range c.parts {
		out = append(out, p...)
	}
	return out, nil
}

// Cache is a no-op for the local backend, which is always materialized.
func (c *localCollection[K]) Cache(ctx context.Context) (Collection[K], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *localCollection[K]) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for _, p := range c.parts {
		n += int64(len(p))
	}
	return n, nil
}

func (g *localGrouped[K]) NumPartitions() int {
	return len(g.parts)
}

func (g *localGrouped[K]) FlatMapGroups(ctx context.Context, fn func(key K, values []K, emit Emit[K])) (Collection[K], error) {
	parts, err := runTasks(ctx, g.eng, "flatmapgroups", len(g.parts), func(ctx context.Context, p int) ([]Pair[K], error) {
		in := g.parts[p]
		var out []Pair[K]
		emit := func(x Pair[K]) { out = append(out, x) }
		var values []K
		for start := 0; start < len(in); {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			key := in[start].Key
			end := start
			values = values[:0]
			for end < len(in) && in[end].Key == key {
				values = append(values, in[end].Value)
				end++
			}
			fn(key, values, emit)
			start = end
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return &localCollection[K]{eng: g.eng, parts: parts}, nil
}

// exchange redistributes parts into opts.Partitions outputs using route, then
// applies reduce to each output. The map side writes only its own bucket row;
// the reduce side reads one column, so no task shares mutable state.
func exchange[K ID](
	ctx context.Context,
	e *engine,
	stage string,
	parts [][]Pair[K],
	route func(Pair[K], int) int,
	reduce func(context.Context, []Pair[K]) ([]Pair[K], error),
) ([][]Pair[K], error) {
	n := e.opts.Partitions
	buckets, err := runTasks(ctx, e, stage+"/map", len(parts), func(ctx context.Context, p int) ([][]Pair[K], error) {
		out := make([][]Pair[K], n)
		for i, x := range parts[p] {
			if err := checkCanceled(ctx, i); err != nil {
				return nil, err
			}
			r := route(x, n)
			out[r] = append(out[r], x)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return runTasks(ctx, e, stage+"/reduce", n, func(ctx context.Context, r int) ([]Pair[K], error) {
		size := 0
		for _, row := range buckets {
			size += len(row[r])
		}
		merged := make([]Pair[K], 0, size)
		for _, row := range buckets {
			merged = append(merged, row[r]...)
		}
		return reduce(ctx, merged)
	})
}

func comparePairs[K ID](a, b Pair[K]) int {
	if c := cmp.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	return cmp.Compare(a.Value, b.Value)
}

// sortPairs sorts in place. Callers pass slices they own.
func sortPairs[K ID](ctx context.Context, in []Pair[K]) ([]Pair[K], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(in, comparePairs[K])
	return in, nil
}

// subtractSorted returns the elements of left that do not occur in right.
// Both inputs must be sorted.
func subtractSorted[K ID](ctx context.Context, left, right []Pair[K]) ([]Pair[K], error) {
	var out []Pair[K]
	j := 0
	for i, x := range left {
		if err := checkCanceled(ctx, i); err != nil {
			return nil, err
		}
		for j < len(right) && comparePairs(right[j], x) < 0 {
			j++
		}
		if j < len(right) && right[j] == x {
			continue
		}
		out = append(out, x)
	}
	return out, nil
}

func checkCanceled(ctx context.Context, i int) error {
	if i%cancelCheckInterval == 0 {
		return ctx.Err()
	}
	return nil
}

// runTasks runs task for partitions [0, n) on a bounded errgroup and returns
// the outputs in partition order.
func runTasks[T any](ctx context.Context, e *engine, stage string, n int, task func(context.Context, int) (T, error)) ([]T, error) {
	start := time.Now()
	out := make([]T, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for p := 0; p < n; p++ {
		g.Go(func() error {
			res, err := runWithRetry(gctx, e, stage, p, task)
			if err != nil {
				return err
			}
			out[p] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("stage complete",
		"stage", stage,
		"partitions", n,
		"duration", time.Since(start))
	return out, nil
}

// runWithRetry recomputes a failed task from its (immutable) inputs until it
// succeeds or MaxTaskAttempts is reached. Cancellation is never retried.
func runWithRetry[T any](ctx context.Context, e *engine, stage string, p int, task func(context.Context, int) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxTaskAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		res, err := runOnce(ctx, e, stage, p, attempt, task)
		if err == nil {
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		lastErr = err
		logging.FromContext(ctx).Warn("partition task failed",
			"stage", stage,
			"partition", p,
			"attempt", attempt,
			"max_attempts", e.opts.MaxTaskAttempts,
			"error", err)
	}
	return zero, &TaskError{Stage: stage, Partition: p, Attempts: e.opts.MaxTaskAttempts, Err: lastErr}
}

func runOnce[T any](ctx context.Context, e *engine, stage string, p, attempt int, task func(context.Context, int) (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	if e.opts.FaultInjector != nil {
		if err := e.opts.FaultInjector(stage, p, attempt); err != nil {
			return res, err
		}
	}
	return task(ctx, p)
}
