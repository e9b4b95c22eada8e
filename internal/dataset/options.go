package dataset

import (
	"fmt"
	"runtime"
)

// FaultInjector lets tests fail a specific task attempt. Returning a non-nil
// error makes that attempt fail as if the worker had been lost.
type FaultInjector func(stage string, partition, attempt int) error

// Options configures the local backend.
type Options struct {
	// Partitions is the number of partitions produced by Parallelize and by
	// every wide transform.
	// Default: 8
	Partitions int

	// Parallelism bounds how many partition tasks run at once.
	// Default: runtime.GOMAXPROCS(0)
	Parallelism int

	// MaxTaskAttempts is how many times a failing task is recomputed from its
	// inputs before the transform fails.
	// Default: 4
	MaxTaskAttempts int

	// FaultInjector, when set, is consulted before every task attempt.
	FaultInjector FaultInjector
}

// DefaultOptions returns sensible defaults for a single machine.
func DefaultOptions() Options {
	return Options{
		Partitions:      8,
		Parallelism:     runtime.GOMAXPROCS(0),
		MaxTaskAttempts: 4,
	}
}

// Validate checks that the options are usable.
func (o Options) Validate() error {
	if o.Partitions <= 0 {
		return fmt.Errorf("Partitions must be positive (got %d)", o.Partitions)
	}
	if o.Parallelism <= 0 {
		return fmt.Errorf("Parallelism must be positive (got %d)", o.Parallelism)
	}
	if o.MaxTaskAttempts <= 0 {
		return fmt.Errorf("MaxTaskAttempts must be positive (got %d)", o.MaxTaskAttempts)
	}
	return nil
}
