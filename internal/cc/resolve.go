package cc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/sgcc/internal/iterative"
	"github.com/steveyegge/sgcc/internal/logging"
	"github.com/steveyegge/sgcc/internal/types"
)

// DefaultMaxIterations is the iteration cap used when none is configured.
// Real graphs converge in O(log diameter) rounds, far below this.
const DefaultMaxIterations = 100

// Options controls a Resolve call.
type Options struct {
	// MaxIterations is the hard cap on LargeStar+SmallStar rounds. Reaching
	// it returns *NotConvergedError.
	MaxIterations int

	// Timeout bounds the whole call, preparation and validation included.
	// Zero means no timeout.
	Timeout time.Duration

	// Collector receives iteration metrics. Optional.
	Collector iterative.MetricsCollector

	// OnIteration is called after each round's convergence check. Returning
	// an error aborts the run. Optional.
	OnIteration func(ctx context.Context, stat types.IterationStat) error
}

// DefaultOptions returns Options with the default iteration cap.
func DefaultOptions() Options {
	return Options{MaxIterations: DefaultMaxIterations}
}

// Result is a converged, validated resolution.
type Result struct {
	Mapping *Mapping

	// InputEdges is the number of distinct non-loop edges after preparation
	InputEdges int64

	// Iterations is the number of LargeStar+SmallStar rounds run
	Iterations int

	Elapsed time.Duration
}

// NotConvergedError reports that the iteration cap was reached while edges
// were still changing.
type NotConvergedError struct {
	Iterations  int
	LastChanges int64
}

func (e *NotConvergedError) Error() string {
	return fmt.Sprintf("connected components did not converge within %d iterations (%d edges still changing)",
		e.Iterations, e.LastChanges)
}

func (e *NotConvergedError) Unwrap() error {
	return iterative.ErrIterationLimitExceeded
}

// Round is the state carried between iterations. Both collections are
// cached snapshots; neither is mutated after the round is built.
type Round struct {
	Iteration  int
	AfterLarge Edges
	AfterSmall Edges
	LargeEdges int64
	SmallEdges int64
	Started    time.Time
}

// Size implements iterative.Sized.
func (r *Round) Size() int64 {
	return r.SmallEdges
}

// Resolve computes the representative mapping for edges. The input may hold
// duplicates, both orientations of an edge, and self-loops.
func Resolve(ctx context.Context, edges Edges, opts Options) (*Result, error) {
	start := time.Now()
	if opts.MaxIterations <= 0 {
		return nil, fmt.Errorf("max iterations must be positive (got %d)", opts.MaxIterations)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "cc.Resolve",
		trace.WithAttributes(
			attribute.Int("max_iterations", opts.MaxIterations),
			attribute.Int("partitions", edges.NumPartitions()),
		),
	)
	defer span.End()
	logger := logging.FromContext(ctx)

	prepared, err := Prepare(ctx, edges)
	if err != nil {
		return nil, failSpan(span, err)
	}
	prepared, err = prepared.Cache(ctx)
	if err != nil {
		return nil, failSpan(span, err)
	}
	inputEdges, err := prepared.Count(ctx)
	if err != nil {
		return nil, failSpan(span, err)
	}
	span.SetAttributes(attribute.Int64("input_edges", inputEdges))

	result := &Result{InputEdges: inputEdges}
	final := prepared

	if inputEdges == 0 {
		logger.Info("no edges to resolve")
	} else {
		logger.Info("resolving connected components",
			"edges", inputEdges,
			"partitions", prepared.NumPartitions(),
			"max_iterations", opts.MaxIterations)

		refiner, err := iterative.NewRefiner[*Round](refineRound, &changeDetector{onIteration: opts.OnIteration})
		if err != nil {
			return nil, failSpan(span, err)
		}
		initial := &Round{AfterSmall: prepared, SmallEdges: inputEdges}
		converged, err := iterative.Converge(ctx, initial, refiner,
			iterative.Config{MaxIterations: opts.MaxIterations}, opts.Collector)
		if err != nil {
			var limitErr *iterative.LimitError
			if errors.As(err, &limitErr) {
				err = &NotConvergedError{Iterations: limitErr.Iterations, LastChanges: limitErr.LastChanges}
			}
			logger.Error("resolution failed", "error", err)
			return nil, failSpan(span, err)
		}
		final = converged.Final.AfterSmall
		result.Iterations = converged.Iterations
	}

	mapping, err := Assign(ctx, final)
	if err != nil {
		return nil, failSpan(span, err)
	}
	result.Mapping = mapping
	result.Elapsed = time.Since(start)

	span.SetAttributes(attribute.Int("iterations", result.Iterations))
	logger.Info("connected components converged",
		"iterations", result.Iterations,
		"elapsed", result.Elapsed)
	return result, nil
}

// refineRound runs one LargeStar+SmallStar round on the previous round's
// output.
func refineRound(ctx context.Context, prev *Round) (*Round, error) {
	started := time.Now()
	iteration := prev.Iteration + 1
	ctx, span := tracer.Start(ctx, "cc.Round", trace.WithAttributes(attribute.Int("iteration", iteration)))
	defer span.End()

	afterLarge, err := LargeStar(ctx, prev.AfterSmall)
	if err != nil {
		return nil, failSpan(span, err)
	}
	if afterLarge, err = afterLarge.Cache(ctx); err != nil {
		return nil, failSpan(span, err)
	}
	afterSmall, err := SmallStar(ctx, afterLarge)
	if err != nil {
		return nil, failSpan(span, err)
	}
	if afterSmall, err = afterSmall.Cache(ctx); err != nil {
		return nil, failSpan(span, err)
	}

	largeEdges, err := afterLarge.Count(ctx)
	if err != nil {
		return nil, failSpan(span, err)
	}
	smallEdges, err := afterSmall.Count(ctx)
	if err != nil {
		return nil, failSpan(span, err)
	}
	return &Round{
		Iteration:  iteration,
		AfterLarge: afterLarge,
		AfterSmall: afterSmall,
		LargeEdges: largeEdges,
		SmallEdges: smallEdges,
		Started:    started,
	}, nil
}

// changeDetector declares a fixed point when a full round reproduces its
// input exactly. Comparing only the two phases of one round is not enough: on
// a path 1-2-3-4-5 both phases of the first round emit
// {(2,1) (3,1) (4,2) (5,3)} although 4 and 5 still point at non-minimal IDs.
type changeDetector struct {
	onIteration func(ctx context.Context, stat types.IterationStat) error
}

func (d *changeDetector) CheckConvergence(ctx context.Context, current, previous *Round) (*iterative.ConvergenceDecision, error) {
	changed, err := SymmetricDifference(ctx, previous.AfterSmall, current.AfterSmall)
	if err != nil {
		return nil, fmt.Errorf("convergence check: %w", err)
	}
	changes := int64(len(changed))

	logging.FromContext(ctx).Debug("iteration complete",
		"iteration", current.Iteration,
		"large_edges", current.LargeEdges,
		"small_edges", current.SmallEdges,
		"changes", changes)

	if d.onIteration != nil {
		stat := types.IterationStat{
			Iteration:  current.Iteration,
			LargeEdges: current.LargeEdges,
			SmallEdges: current.SmallEdges,
			Changes:    changes,
			Duration:   time.Since(current.Started),
		}
		if err := d.onIteration(ctx, stat); err != nil {
			return nil, fmt.Errorf("iteration hook: %w", err)
		}
	}

	return &iterative.ConvergenceDecision{
		Converged: changes == 0,
		Changes:   changes,
		Strategy:  "symmetric-difference",
	}, nil
}

// SymmetricDifference returns (a \ b) ∪ (b \ a). Collect is the blocking
// barrier; nothing downstream starts until the difference is on this side.
func SymmetricDifference(ctx context.Context, a, b Edges) ([]pair, error) {
	ctx, span := tracer.Start(ctx, "cc.SymmetricDifference")
	defer span.End()

	aOnly, err := a.Subtract(ctx, b)
	if err != nil {
		return nil, failSpan(span, err)
	}
	bOnly, err := b.Subtract(ctx, a)
	if err != nil {
		return nil, failSpan(span, err)
	}
	both, err := aOnly.Union(ctx, bOnly)
	if err != nil {
		return nil, failSpan(span, err)
	}
	changed, err := both.Collect(ctx)
	if err != nil {
		return nil, failSpan(span, err)
	}
	span.SetAttributes(attribute.Int("changes", len(changed)))
	return changed, nil
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
