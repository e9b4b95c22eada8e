package iterative

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrIterationLimitExceeded is returned (wrapped in a *LimitError) when the
// refinement loop runs MaxIterations passes without converging.
var ErrIterationLimitExceeded = errors.New("iteration limit exceeded")

// Config controls the refinement iteration behavior.
type Config struct {
	// MaxIterations is a hard limit on refinement passes. Hitting it without
	// convergence is an error, never a silent partial result.
	MaxIterations int

	// Timeout sets a maximum duration for the entire refinement process.
	// Zero means no timeout (rely on MaxIterations instead).
	Timeout time.Duration
}

// Validate checks the config before any iteration runs.
func (c Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("MaxIterations must be positive (got %d)", c.MaxIterations)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("Timeout cannot be negative (got %v)", c.Timeout)
	}
	return nil
}

// Refiner defines one refinement strategy over state S. The framework owns the
// loop, counting and timeout; the refiner owns the step and the convergence
// judgment.
type Refiner[S any] interface {
	// Refine performs one pass over the current state and returns the next
	// state. Implementations must not mutate their input.
	Refine(ctx context.Context, current S) (S, error)

	// CheckConvergence judges whether current (just produced by Refine from
	// previous) is a fixed point. Errors are fatal to the run.
	CheckConvergence(ctx context.Context, current, previous S) (*ConvergenceDecision, error)
}

// Sized is implemented by states that can report how many records they hold.
// Converge copies the value into IterationMetrics.StateSize when available.
type Sized interface {
	Size() int64
}

// ConvergenceResult captures the outcome of a refinement process.
type ConvergenceResult[S any] struct {
	// Final is the last state produced
	Final S

	// Iterations is the number of refinement passes performed
	Iterations int

	// Converged is false only when MaxIterations was reached
	Converged bool

	// LastChanges is the change count reported by the final convergence check
	LastChanges int64

	// ElapsedTime is the total duration of the refinement process
	ElapsedTime time.Duration
}

// LimitError reports that the loop stopped at MaxIterations.
type LimitError struct {
	Iterations  int
	LastChanges int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("no convergence after %d iterations (%d changes in last pass): %v",
		e.Iterations, e.LastChanges, ErrIterationLimitExceeded)
}

func (e *LimitError) Unwrap() error {
	return ErrIterationLimitExceeded
}
