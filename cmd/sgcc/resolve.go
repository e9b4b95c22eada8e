package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/steveyegge/sgcc/internal/edgeio"
	"github.com/steveyegge/sgcc/internal/iterative"
	"github.com/steveyegge/sgcc/internal/logging"
	"github.com/steveyegge/sgcc/internal/metrics"
	"github.com/steveyegge/sgcc/internal/pipeline"
	"github.com/steveyegge/sgcc/internal/storage"
	"github.com/steveyegge/sgcc/internal/types"
)

var (
	resolveEdges       []string
	resolveOut         string
	resolveRunID       string
	resolveMaxIter     int
	resolvePartitions  int
	resolveParallelism int
	resolveTimeout     time.Duration
	resolveMetricsAddr string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Compute connected components of the stored edges",
	Long: `Resolve runs alternating large-star and small-star rounds over every stored
edge until a round leaves the edge set unchanged, then maps each node to the
smallest id in its component.

The run, its per-round statistics and the mapping are recorded in the
database. A run that hits --max-iterations is recorded as not_converged and no
mapping is written.

Example:
  sgcc resolve --out mapping.csv
  sgcc resolve --edges pairs.csv --partitions 32 --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := logging.FromContext(ctx)

		runCfg := cfg
		flags := cmd.Flags()
		if flags.Changed("max-iterations") {
			runCfg.MaxIterations = resolveMaxIter
		}
		if flags.Changed("partitions") {
			runCfg.Partitions = resolvePartitions
		}
		if flags.Changed("parallelism") {
			runCfg.Parallelism = resolveParallelism
		}
		if flags.Changed("timeout") {
			runCfg.Timeout = resolveTimeout
		}
		if flags.Changed("metrics-addr") {
			runCfg.MetricsAddr = resolveMetricsAddr
		}
		if err := runCfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		runID := resolveRunID
		if runID == "" {
			runID = uuid.NewString()
		}

		// Postgres deployments coordinate outside the project directory.
		if dbPath != "" && runCfg.PostgresURL == "" {
			lockPath, err := storage.AcquireResolveLock(dbPath, runID)
			if err != nil {
				return err
			}
			defer func() {
				if err := storage.ReleaseResolveLock(lockPath); err != nil {
					logger.Warn("failed to release resolve lock", "error", err)
				}
			}()
		}

		if len(resolveEdges) > 0 {
			read, added, err := importFiles(ctx, store, resolveEdges, storage.DefaultImportBatch)
			if err != nil {
				return err
			}
			logger.Info("imported edges", "read", read, "added", added)
		}

		var collector iterative.MetricsCollector = iterative.NewInMemoryMetricsCollector()
		if runCfg.MetricsAddr != "" {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			pc, err := metrics.NewCollector(reg)
			if err != nil {
				return err
			}
			srv, err := metrics.Listen(runCfg.MetricsAddr, reg)
			if err != nil {
				return err
			}
			serveCtx, stopServing := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := srv.Serve(serveCtx); err != nil {
					logger.Warn("metrics server stopped", "error", err)
				}
			}()
			defer func() {
				stopServing()
				<-done
			}()
			collector = pc
		}

		out, err := pipeline.Resolve(ctx, store, pipeline.Options{
			Config:    runCfg,
			RunID:     runID,
			Collector: collector,
		})
		if out != nil {
			printRunSummary(out)
		}
		if err != nil {
			return err
		}

		if resolveOut != "" {
			if err := edgeio.WriteMappingFile(resolveOut, out.Lookup.Entries()); err != nil {
				return err
			}
			fmt.Printf("  Mapping:     %s\n", resolveOut)
		}

		if runCfg.KeepRuns > 0 {
			pruned, err := store.PruneRuns(ctx, runCfg.KeepRuns)
			if err != nil {
				logger.Warn("failed to prune old runs", "error", err)
			} else if pruned > 0 {
				logger.Info("pruned old runs", "runs", pruned, "keep", runCfg.KeepRuns)
			}
		}
		return nil
	},
}

func printRunSummary(out *pipeline.Outcome) {
	run := out.Run
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	mark := green("✓")
	if run.Status != types.RunConverged {
		mark = red("✗")
	}
	fmt.Printf("\n%s Run %s %s\n\n", mark, run.ID, run.Status)
	fmt.Printf("  Edges:       %d\n", run.InputEdges)
	fmt.Printf("  Iterations:  %d %s\n", run.Iterations, gray(fmt.Sprintf("(cap %d)", run.MaxIterations)))
	fmt.Printf("  Duration:    %s\n", run.Duration().Round(time.Millisecond))
	if out.Lookup != nil {
		fmt.Printf("  Mapped:      %d nodes in %d clusters\n", out.Lookup.Len(), len(out.Lookup.Clusters()))
	}
	if run.Error != "" {
		fmt.Printf("  Error:       %s\n", red(run.Error))
	}
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	f := resolveCmd.Flags()
	f.StringSliceVar(&resolveEdges, "edges", nil, "Import these edge files before resolving")
	f.StringVarP(&resolveOut, "out", "o", "", "Write the node,representative mapping to this CSV file")
	f.StringVar(&resolveRunID, "run-id", "", "Run identifier (default: generated UUID)")
	f.IntVar(&resolveMaxIter, "max-iterations", 0, "Round cap; reaching it fails the run")
	f.IntVar(&resolvePartitions, "partitions", 0, "Partitions per wide transform")
	f.IntVar(&resolveParallelism, "parallelism", 0, "Concurrent partition tasks")
	f.DurationVar(&resolveTimeout, "timeout", 0, "Bound the whole resolve (0 disables)")
	f.StringVar(&resolveMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
}
