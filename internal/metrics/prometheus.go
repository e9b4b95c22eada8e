// Package metrics exports resolver progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/steveyegge/sgcc/internal/iterative"
	"github.com/steveyegge/sgcc/internal/logging"
)

const namespace = "sgcc"

// Collector implements iterative.MetricsCollector on top of a Prometheus
// registry. Aggregates for GetAggregateMetrics are kept in memory alongside.
type Collector struct {
	*iterative.InMemoryMetricsCollector

	iterations        prometheus.Counter
	iterationDuration prometheus.Histogram
	changes           prometheus.Gauge
	stateSize         prometheus.Gauge
	runs              *prometheus.CounterVec
	runIterations     prometheus.Histogram
	runDuration       prometheus.Histogram
}

var _ iterative.MetricsCollector = (*Collector)(nil)

// NewCollector creates the resolver metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		InMemoryMetricsCollector: iterative.NewInMemoryMetricsCollector(),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Large-star/small-star rounds completed.",
		}),
		iterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iteration_duration_seconds",
			Help:      "Wall time of one round including its convergence check.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		changes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iteration_changes",
			Help:      "Edges that changed in the most recent round.",
		}),
		stateSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edges",
			Help:      "Edges in the working set after the most recent round.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Resolver runs by outcome.",
		}, []string{"outcome"}),
		runIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_iterations",
			Help:      "Rounds needed per run.",
			Buckets:   prometheus.LinearBuckets(1, 2, 12),
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the iteration loop per run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}

	for _, col := range []prometheus.Collector{
		c.iterations, c.iterationDuration, c.changes, c.stateSize,
		c.runs, c.runIterations, c.runDuration,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return c, nil
}

// RecordIterationEnd updates the per-round metrics.
func (c *Collector) RecordIterationEnd(iteration int, m *iterative.IterationMetrics) {
	c.InMemoryMetricsCollector.RecordIterationEnd(iteration, m)
	c.iterations.Inc()
	c.iterationDuration.Observe(m.Duration.Seconds())
	c.changes.Set(float64(m.Changes))
	c.stateSize.Set(float64(m.StateSize))
}

// RecordRunComplete updates the per-run metrics.
func (c *Collector) RecordRunComplete(m *iterative.RunMetrics) {
	c.InMemoryMetricsCollector.RecordRunComplete(m)
	outcome := "converged"
	if !m.Converged {
		outcome = "not_converged"
	}
	c.runs.WithLabelValues(outcome).Inc()
	c.runIterations.Observe(float64(m.TotalIterations))
	c.runDuration.Observe(m.TotalDuration.Seconds())
}

// Server serves /metrics for a Prometheus gatherer.
type Server struct {
	srv      *http.Server
	listener net.Listener
}

// Listen binds addr and returns a Server ready to Serve. Binding eagerly
// surfaces a bad --metrics-addr before the run starts.
func Listen(addr string, gatherer prometheus.Gatherer) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
	}, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks serving requests until ctx is canceled, then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(s.listener)
	}()
	logger.Info("serving metrics", "addr", s.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down metrics server: %w", err)
		}
		return nil
	}
}
