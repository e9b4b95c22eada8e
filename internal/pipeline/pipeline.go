// Package pipeline runs the resolver end to end against storage: load the
// stored edge set, resolve it, persist the mapping and record the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/sgcc/internal/cc"
	"github.com/steveyegge/sgcc/internal/config"
	"github.com/steveyegge/sgcc/internal/iterative"
	"github.com/steveyegge/sgcc/internal/logging"
	"github.com/steveyegge/sgcc/internal/storage"
	"github.com/steveyegge/sgcc/internal/types"
)

var tracer = otel.Tracer("github.com/steveyegge/sgcc/internal/pipeline")

// Options configures one pipeline run.
type Options struct {
	Config config.Config

	// RunID names the run. Empty generates a UUID.
	RunID string

	// Collector receives iteration metrics. Optional.
	Collector iterative.MetricsCollector
}

// Outcome is what a pipeline run produced. Run is always set once the run
// row exists; Lookup only when the run converged.
type Outcome struct {
	Run    *types.Run
	Result *cc.Result
	Lookup *cc.Lookup
}

// Resolve resolves every stored edge and records the run. A failed or
// non-converged run is still recorded with its terminal status, and the
// returned Outcome carries it alongside the error.
func Resolve(ctx context.Context, st storage.Storage, opts Options) (*Outcome, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	logger := logging.FromContext(ctx).With("run_id", runID)
	ctx = logging.WithLogger(ctx, logger)

	ctx, span := tracer.Start(ctx, "pipeline.Resolve", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	stored, err := st.CountEdges(ctx)
	if err != nil {
		return nil, failSpan(span, err)
	}
	edges, err := storage.LoadEdges(ctx, st, cfg.DatasetOptions())
	if err != nil {
		return nil, failSpan(span, err)
	}

	run := &types.Run{
		ID:            runID,
		Status:        types.RunRunning,
		InputEdges:    stored,
		Partitions:    cfg.Partitions,
		MaxIterations: cfg.MaxIterations,
		StartedAt:     time.Now(),
	}
	if err := st.CreateRun(ctx, run); err != nil {
		return nil, failSpan(span, err)
	}
	out := &Outcome{Run: run}

	var last types.IterationStat
	ropts := cfg.ResolveOptions()
	ropts.Collector = opts.Collector
	ropts.OnIteration = func(ctx context.Context, stat types.IterationStat) error {
		stat.RunID = runID
		last = stat
		return st.RecordIteration(ctx, runID, &stat)
	}

	result, err := cc.Resolve(ctx, edges, ropts)
	if err != nil {
		status, iterations, changes := classify(err, last)
		finishErr := finish(ctx, st, out, status, iterations, changes, err.Error())
		return out, failSpan(span, errors.Join(err, finishErr))
	}
	out.Result = result

	lookup, err := result.Mapping.Collect(ctx)
	if err != nil {
		finishErr := finish(ctx, st, out, types.RunFailed, result.Iterations, 0, err.Error())
		return out, failSpan(span, errors.Join(err, finishErr))
	}
	out.Lookup = lookup

	if err := st.SaveMapping(ctx, runID, lookup.Entries()); err != nil {
		finishErr := finish(ctx, st, out, types.RunFailed, result.Iterations, 0, err.Error())
		return out, failSpan(span, errors.Join(err, finishErr))
	}
	if err := finish(ctx, st, out, types.RunConverged, result.Iterations, 0, ""); err != nil {
		return out, failSpan(span, err)
	}

	span.SetAttributes(attribute.Int("iterations", result.Iterations), attribute.Int("mapped_nodes", lookup.Len()))
	logger.Info("run recorded", "status", out.Run.Status, "iterations", result.Iterations, "mapped", lookup.Len())
	return out, nil
}

// classify maps a resolver error to the run's terminal status.
func classify(err error, last types.IterationStat) (types.RunStatus, int, int64) {
	var nc *cc.NotConvergedError
	switch {
	case errors.As(err, &nc):
		return types.RunNotConverged, nc.Iterations, nc.LastChanges
	case errors.Is(err, context.Canceled):
		return types.RunCanceled, last.Iteration, last.Changes
	default:
		return types.RunFailed, last.Iteration, last.Changes
	}
}

// finish writes the terminal status and refreshes out.Run. It ignores ctx
// cancellation so an interrupted run is still closed out.
func finish(ctx context.Context, st storage.Storage, out *Outcome, status types.RunStatus, iterations int, changes int64, msg string) error {
	ctx = context.WithoutCancel(ctx)
	if err := st.FinishRun(ctx, out.Run.ID, status, iterations, changes, msg); err != nil {
		return fmt.Errorf("failed to record run outcome: %w", err)
	}
	run, err := st.GetRun(ctx, out.Run.ID)
	if err != nil {
		return err
	}
	out.Run = run
	return nil
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
