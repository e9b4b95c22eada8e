package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a run id does not exist in storage.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a resolver run
type RunStatus string

const (
	RunRunning      RunStatus = "running"
	RunConverged    RunStatus = "converged"
	RunNotConverged RunStatus = "not_converged"
	RunFailed       RunStatus = "failed"
	RunCanceled     RunStatus = "canceled"
)

// IsTerminal reports whether a run in this state has finished.
func (s RunStatus) IsTerminal() bool {
	return s != RunRunning
}

// IsValid checks if the status value is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunRunning, RunConverged, RunNotConverged, RunFailed, RunCanceled:
		return true
	}
	return false
}

// Run records one invocation of the connected-components resolver.
type Run struct {
	ID            string     `json:"id"`
	Status        RunStatus  `json:"status"`
	InputEdges    int64      `json:"input_edges"`
	Partitions    int        `json:"partitions"`
	MaxIterations int        `json:"max_iterations"`
	Iterations    int        `json:"iterations"`
	LastChanges   int64      `json:"last_changes"`
	MappedNodes   int64      `json:"mapped_nodes"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Validate checks if the run has valid field values
func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	if r.Partitions <= 0 {
		return fmt.Errorf("partitions must be positive (got %d)", r.Partitions)
	}
	if r.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive (got %d)", r.MaxIterations)
	}
	if r.InputEdges < 0 {
		return fmt.Errorf("input_edges cannot be negative (got %d)", r.InputEdges)
	}
	return nil
}

// Duration returns how long the run took, or how long it has been running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// IterationStat captures one LargeStar+SmallStar round of a run.
type IterationStat struct {
	RunID      string        `json:"run_id"`
	Iteration  int           `json:"iteration"`
	LargeEdges int64         `json:"large_edges"`
	SmallEdges int64         `json:"small_edges"`
	Changes    int64         `json:"changes"`
	Duration   time.Duration `json:"duration"`
}
