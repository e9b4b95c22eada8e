package iterative

import (
	"context"
	"fmt"
)

// ConvergenceDetector determines whether a state has reached a fixed point.
type ConvergenceDetector[S any] interface {
	CheckConvergence(ctx context.Context, current, previous S) (*ConvergenceDecision, error)
}

// ConvergenceDecision captures the outcome of a single convergence check
type ConvergenceDecision struct {
	Converged bool   // Whether the state has converged
	Changes   int64  // Number of records that still differ
	Strategy  string // Which detection strategy was used
}

// DetectorFunc adapts a plain function to ConvergenceDetector.
type DetectorFunc[S any] func(ctx context.Context, current, previous S) (*ConvergenceDecision, error)

// CheckConvergence implements ConvergenceDetector
func (f DetectorFunc[S]) CheckConvergence(ctx context.Context, current, previous S) (*ConvergenceDecision, error) {
	return f(ctx, current, previous)
}

// StepFunc performs one refinement pass.
type StepFunc[S any] func(ctx context.Context, current S) (S, error)

// stepRefiner pairs a step with a detector.
type stepRefiner[S any] struct {
	step     StepFunc[S]
	detector ConvergenceDetector[S]
}

// NewRefiner builds a Refiner from a step function and a detector.
func NewRefiner[S any](step StepFunc[S], detector ConvergenceDetector[S]) (Refiner[S], error) {
	if step == nil {
		return nil, fmt.Errorf("step cannot be nil")
	}
	if detector == nil {
		return nil, fmt.Errorf("detector cannot be nil")
	}
	return &stepRefiner[S]{step: step, detector: detector}, nil
}

func (r *stepRefiner[S]) Refine(ctx context.Context, current S) (S, error) {
	return r.step(ctx, current)
}

func (r *stepRefiner[S]) CheckConvergence(ctx context.Context, current, previous S) (*ConvergenceDecision, error) {
	return r.detector.CheckConvergence(ctx, current, previous)
}
