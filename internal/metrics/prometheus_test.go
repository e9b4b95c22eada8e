package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/sgcc/internal/iterative"
)

func TestCollectorRecordsIterationsAndRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.RecordIterationStart(1)
	c.RecordIterationEnd(1, &iterative.IterationMetrics{Iteration: 1, Duration: 20 * time.Millisecond, Changes: 7, StateSize: 12})
	c.RecordIterationStart(2)
	c.RecordIterationEnd(2, &iterative.IterationMetrics{Iteration: 2, Duration: 10 * time.Millisecond, Changes: 0, StateSize: 9, Converged: true})
	c.RecordRunComplete(&iterative.RunMetrics{TotalIterations: 2, Converged: true, TotalDuration: 30 * time.Millisecond})
	c.RecordRunComplete(&iterative.RunMetrics{TotalIterations: 5, Converged: false, LastChanges: 3})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.iterations))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.changes))
	assert.Equal(t, 9.0, testutil.ToFloat64(c.stateSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("converged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("not_converged")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.runs))

	agg := c.GetAggregateMetrics()
	assert.Equal(t, 2, agg.TotalRuns)
	assert.Equal(t, 1, agg.ConvergedRuns)
	assert.Equal(t, 1, agg.MaxedOutRuns)
}

func TestNewCollectorRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)
	_, err = NewCollector(reg)
	assert.Error(t, err)
}

func TestServerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.RecordIterationEnd(1, &iterative.IterationMetrics{Iteration: 1, Changes: 4})

	srv, err := Listen("127.0.0.1:0", reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "sgcc_iterations_total 1")
	assert.Contains(t, string(body), "sgcc_iteration_changes 4")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListenRejectsBadAddress(t *testing.T) {
	_, err := Listen("not-an-address", prometheus.NewRegistry())
	assert.Error(t, err)
}
