package cc

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/sgcc/internal/dataset"
	"github.com/steveyegge/sgcc/internal/types"
)

// Edges is the working collection: (u, v) pairs of record IDs.
type Edges = dataset.Collection[types.NodeID]

type pair = dataset.Pair[types.NodeID]

type emitFunc = dataset.Emit[types.NodeID]

var tracer = otel.Tracer("github.com/steveyegge/sgcc/internal/cc")

// Prepare turns a raw edge feed into the resolver's input: self-loops are
// dropped, each undirected edge is stored once as (larger, smaller), and
// duplicates are removed. That orientation matches what the star phases emit,
// so an input that is already a star forest converges in one round.
func Prepare(ctx context.Context, edges Edges) (Edges, error) {
	ctx, span := tracer.Start(ctx, "cc.Prepare")
	defer span.End()

	canonical, err := edges.FlatMap(ctx, func(p pair, emit emitFunc) {
		if p.Key == p.Value {
			return
		}
		if p.Key < p.Value {
			p = p.Swap()
		}
		emit(p)
	})
	if err != nil {
		return nil, phaseError(span, "prepare", err)
	}
	out, err := canonical.Distinct(ctx)
	if err != nil {
		return nil, phaseError(span, "prepare", err)
	}
	return out, nil
}

// LargeStar points every neighbor larger than x at the smallest ID visible
// from x (x included).
func LargeStar(ctx context.Context, edges Edges) (Edges, error) {
	ctx, span := tracer.Start(ctx, "cc.LargeStar")
	defer span.End()

	both, err := edges.FlatMap(ctx, func(p pair, emit emitFunc) {
		emit(p)
		emit(p.Swap())
	})
	if err != nil {
		return nil, phaseError(span, "large star", err)
	}
	return starReduce(ctx, span, "large star", both, largeStarReduce)
}

// SmallStar keys each edge by its larger endpoint and points the whole
// neighborhood, key included, at its minimum.
func SmallStar(ctx context.Context, edges Edges) (Edges, error) {
	ctx, span := tracer.Start(ctx, "cc.SmallStar")
	defer span.End()

	oriented, err := edges.Map(ctx, func(p pair) pair {
		if p.Value <= p.Key {
			return p
		}
		return p.Swap()
	})
	if err != nil {
		return nil, phaseError(span, "small star", err)
	}
	return starReduce(ctx, span, "small star", oriented, smallStarReduce)
}

func starReduce(ctx context.Context, span trace.Span, phase string, edges Edges, reduce func(types.NodeID, []types.NodeID, emitFunc)) (Edges, error) {
	groups, err := edges.GroupByKey(ctx)
	if err != nil {
		return nil, phaseError(span, phase, err)
	}
	reduced, err := groups.FlatMapGroups(ctx, reduce)
	if err != nil {
		return nil, phaseError(span, phase, err)
	}
	out, err := reduced.Distinct(ctx)
	if err != nil {
		return nil, phaseError(span, phase, err)
	}
	span.SetAttributes(attribute.Int("partitions", out.NumPartitions()))
	return out, nil
}

func largeStarReduce(x types.NodeID, neighbors []types.NodeID, emit emitFunc) {
	m := minOf(x, neighbors)
	for _, n := range neighbors {
		if n > x {
			emit(pair{Key: n, Value: m})
		}
	}
}

func smallStarReduce(x types.NodeID, neighbors []types.NodeID, emit emitFunc) {
	m := minOf(x, neighbors)
	if x != m {
		emit(pair{Key: x, Value: m})
	}
	for _, n := range neighbors {
		if n != m {
			emit(pair{Key: n, Value: m})
		}
	}
}

func minOf(x types.NodeID, rest []types.NodeID) types.NodeID {
	m := x
	for _, n := range rest {
		if n < m {
			m = n
		}
	}
	return m
}

func phaseError(span trace.Span, phase string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, phase+" failed")
	return fmt.Errorf("%s: %w", phase, err)
}
