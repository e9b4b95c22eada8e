// Package iterative provides a framework for running a refinement step to a
// fixed point.
//
// # Overview
//
// Many graph computations are expressed as "apply a transformation until the
// output stops changing". The iterative package owns the mechanics of that
// loop (counting, timeout, cancellation, metrics) and leaves the step and the
// fixed-point test to a pluggable Refiner.
//
// # Core Types
//
// Refiner[S] performs one pass over a state and judges convergence.
// NewRefiner builds one from a StepFunc and a ConvergenceDetector.
//
// Config bounds the loop. MaxIterations is mandatory; hitting it returns a
// *LimitError wrapping ErrIterationLimitExceeded rather than a silently
// partial result.
//
// # Usage Example
//
//	refiner, err := iterative.NewRefiner(step, iterative.DetectorFunc[State](check))
//	if err != nil {
//	    return err
//	}
//	collector := iterative.NewInMemoryMetricsCollector()
//	result, err := iterative.Converge(ctx, initial, refiner, iterative.Config{
//	    MaxIterations: 100,
//	    Timeout:       10 * time.Minute,
//	}, collector)
//	if errors.Is(err, iterative.ErrIterationLimitExceeded) {
//	    // result.Final holds the last state, but it is not a fixed point
//	}
//
// # Metrics
//
// MetricsCollector receives per-iteration and per-run callbacks.
// InMemoryMetricsCollector keeps them for tests and summaries, and
// MultiCollector fans out to several collectors (for example in-memory plus
// Prometheus). Pass nil to disable collection.
//
// # Error Handling
//
//   - Refiner errors are propagated immediately (fail-fast)
//   - Convergence check errors are fatal; the detectors are deterministic
//   - Context cancellation is respected at iteration boundaries
//   - Timeout (if configured) triggers cancellation
//   - Config validation catches invalid settings before iteration starts
package iterative
