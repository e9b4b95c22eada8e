package iterative

import (
	"sort"
	"sync"
	"time"
)

// MetricsCollector provides instrumentation for iterative refinement.
//
// This interface is optional - callers can pass nil to Converge() to disable
// metrics collection.
type MetricsCollector interface {
	// RecordIterationStart is called at the beginning of each refinement iteration
	RecordIterationStart(iteration int)

	// RecordIterationEnd is called when an iteration and its convergence check complete
	RecordIterationEnd(iteration int, metrics *IterationMetrics)

	// RecordRunComplete is called when the refinement loop finishes, converged or not
	RecordRunComplete(metrics *RunMetrics)

	// GetAggregateMetrics returns rolled-up statistics across all runs
	GetAggregateMetrics() *AggregateMetrics
}

// IterationMetrics captures metrics for a single refinement iteration.
type IterationMetrics struct {
	// Iteration is the iteration number (1-based)
	Iteration int

	// Duration is the time spent on the pass plus its convergence check
	Duration time.Duration

	// Changes is the number of records the convergence check found still moving
	Changes int64

	// StateSize is the record count of the new state, if the state is Sized
	StateSize int64

	// Converged indicates whether this iteration reached the fixed point
	Converged bool

	// Strategy is the detector strategy used
	Strategy string
}

// RunMetrics captures metrics for an entire refinement loop.
type RunMetrics struct {
	// TotalIterations is the number of refinement iterations performed
	TotalIterations int

	// Converged is false when the loop hit MaxIterations
	Converged bool

	// ConvergenceReason explains why refinement stopped
	ConvergenceReason string

	// LastChanges is the change count of the final iteration
	LastChanges int64

	// TotalDuration is the total time spent in the loop
	TotalDuration time.Duration

	// Iterations contains the per-iteration metrics
	Iterations []*IterationMetrics
}

// AggregateMetrics provides rolled-up statistics across multiple runs.
type AggregateMetrics struct {
	// TotalRuns is the total number of loops recorded
	TotalRuns int

	// ConvergedRuns is the count that reached a fixed point
	ConvergedRuns int

	// MaxedOutRuns is the count that hit MaxIterations
	MaxedOutRuns int

	// TotalIterations is the sum of iterations across all runs
	TotalIterations int

	// MeanIterations is the average iterations per run
	MeanIterations float64

	// P50Iterations is the median iterations to convergence
	P50Iterations int

	// P95Iterations is the 95th percentile iterations to convergence
	P95Iterations int

	// TotalDuration is the sum of all run durations
	TotalDuration time.Duration
}

// ConvergenceRate returns the percentage of runs that converged.
func (a *AggregateMetrics) ConvergenceRate() float64 {
	if a.TotalRuns == 0 {
		return 0
	}
	return float64(a.ConvergedRuns) / float64(a.TotalRuns) * 100
}

// InMemoryMetricsCollector is a simple in-memory implementation of MetricsCollector.
// It stores all metrics in memory for analysis and testing.
type InMemoryMetricsCollector struct {
	mu sync.Mutex

	// runs holds all completed run metrics
	runs []*RunMetrics

	// currentIterations tracks iterations for the run in progress
	currentIterations []*IterationMetrics
}

// NewInMemoryMetricsCollector creates a new in-memory metrics collector
func NewInMemoryMetricsCollector() *InMemoryMetricsCollector {
	return &InMemoryMetricsCollector{
		runs: make([]*RunMetrics, 0),
	}
}

// RecordIterationStart implements MetricsCollector
func (m *InMemoryMetricsCollector) RecordIterationStart(iteration int) {
	// Nothing to do - we record metrics at iteration end
	_ = iteration
}

// RecordIterationEnd implements MetricsCollector
func (m *InMemoryMetricsCollector) RecordIterationEnd(iteration int, metrics *IterationMetrics) {
	if metrics == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentIterations = append(m.currentIterations, metrics)
}

// RecordRunComplete implements MetricsCollector
func (m *InMemoryMetricsCollector) RecordRunComplete(metrics *RunMetrics) {
	if metrics == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics.Iterations = m.currentIterations
	m.runs = append(m.runs, metrics)
	m.currentIterations = nil
}

// GetAggregateMetrics implements MetricsCollector
func (m *InMemoryMetricsCollector) GetAggregateMetrics() *AggregateMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg := &AggregateMetrics{}
	if len(m.runs) == 0 {
		return agg
	}

	// Collect iteration counts for percentile calculation
	var iterationCounts []int

	for _, run := range m.runs {
		agg.TotalRuns++
		agg.TotalIterations += run.TotalIterations
		agg.TotalDuration += run.TotalDuration

		if run.Converged {
			agg.ConvergedRuns++
			iterationCounts = append(iterationCounts, run.TotalIterations)
		} else {
			agg.MaxedOutRuns++
		}
	}

	agg.MeanIterations = float64(agg.TotalIterations) / float64(agg.TotalRuns)

	if len(iterationCounts) > 0 {
		sort.Ints(iterationCounts)
		agg.P50Iterations = percentile(iterationCounts, 50)
		agg.P95Iterations = percentile(iterationCounts, 95)
	}

	return agg
}

// GetRuns returns all collected run metrics (useful for analysis)
func (m *InMemoryMetricsCollector) GetRuns() []*RunMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*RunMetrics(nil), m.runs...)
}

// MultiCollector fans every call out to several collectors. Aggregates come
// from the first collector.
type MultiCollector []MetricsCollector

// RecordIterationStart implements MetricsCollector
func (mc MultiCollector) RecordIterationStart(iteration int) {
	for _, c := range mc {
		c.RecordIterationStart(iteration)
	}
}

// RecordIterationEnd implements MetricsCollector
func (mc MultiCollector) RecordIterationEnd(iteration int, metrics *IterationMetrics) {
	for _, c := range mc {
		c.RecordIterationEnd(iteration, metrics)
	}
}

// RecordRunComplete implements MetricsCollector
func (mc MultiCollector) RecordRunComplete(metrics *RunMetrics) {
	for _, c := range mc {
		c.RecordRunComplete(metrics)
	}
}

// GetAggregateMetrics implements MetricsCollector
func (mc MultiCollector) GetAggregateMetrics() *AggregateMetrics {
	if len(mc) == 0 {
		return &AggregateMetrics{}
	}
	return mc[0].GetAggregateMetrics()
}

// Helper: percentile calculates the Nth percentile from a sorted slice
func percentile(sorted []int, p int) int {
	if len(sorted) == 0 {
		return 0
	}
	index := (len(sorted) * p) / 100
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
