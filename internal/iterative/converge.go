package iterative

import (
	"context"
	"fmt"
	"time"
)

// Converge refines initial until the refiner reports convergence or
// MaxIterations is reached.
//
// The refinement process:
// 1. Performs one Refine pass
// 2. Checks convergence of the new state against the previous one
// 3. Stops on convergence, or fails with *LimitError at MaxIterations
//
// Safeguards:
// - MaxIterations prevents runaway iteration and is fatal when hit
// - Context cancellation is checked before every pass
// - Timeout (if configured) limits total refinement duration
// - Errors from the refiner, including convergence checks, are propagated immediately
//
// Pass a MetricsCollector to record per-iteration and per-run metrics, or nil
// to disable collection.
//
// When the limit is hit the partial result is returned alongside the error so
// callers can report the last state; it must not be treated as converged.
func Converge[S any](ctx context.Context, initial S, refiner Refiner[S], config Config, collector MetricsCollector) (*ConvergenceResult[S], error) {
	startTime := time.Now()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if refiner == nil {
		return nil, fmt.Errorf("refiner cannot be nil")
	}

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	current := initial
	var lastChanges int64

	for i := 1; i <= config.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("refinement canceled after %d iterations: %w", i-1, err)
		}

		if collector != nil {
			collector.RecordIterationStart(i)
		}
		iterationStart := time.Now()

		refined, err := refiner.Refine(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("refinement failed at iteration %d: %w", i, err)
		}

		decision, err := refiner.CheckConvergence(ctx, refined, current)
		if err != nil {
			return nil, fmt.Errorf("convergence check failed at iteration %d: %w", i, err)
		}
		if decision == nil {
			return nil, fmt.Errorf("convergence check returned no decision at iteration %d", i)
		}

		current = refined
		lastChanges = decision.Changes

		if collector != nil {
			iterMetrics := &IterationMetrics{
				Iteration: i,
				Duration:  time.Since(iterationStart),
				Changes:   decision.Changes,
				Converged: decision.Converged,
				Strategy:  decision.Strategy,
			}
			if sized, ok := any(refined).(Sized); ok {
				iterMetrics.StateSize = sized.Size()
			}
			collector.RecordIterationEnd(i, iterMetrics)
		}

		if decision.Converged {
			result := &ConvergenceResult[S]{
				Final:       current,
				Iterations:  i,
				Converged:   true,
				LastChanges: lastChanges,
				ElapsedTime: time.Since(startTime),
			}
			if collector != nil {
				collector.RecordRunComplete(&RunMetrics{
					TotalIterations:   i,
					Converged:         true,
					ConvergenceReason: "fixed point",
					LastChanges:       lastChanges,
					TotalDuration:     result.ElapsedTime,
				})
			}
			return result, nil
		}
	}

	result := &ConvergenceResult[S]{
		Final:       current,
		Iterations:  config.MaxIterations,
		Converged:   false,
		LastChanges: lastChanges,
		ElapsedTime: time.Since(startTime),
	}
	if collector != nil {
		collector.RecordRunComplete(&RunMetrics{
			TotalIterations:   config.MaxIterations,
			Converged:         false,
			ConvergenceReason: "max iterations",
			LastChanges:       lastChanges,
			TotalDuration:     result.ElapsedTime,
		})
	}
	return result, &LimitError{Iterations: config.MaxIterations, LastChanges: lastChanges}
}
