package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/sgcc/internal/types"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recorded runs or show one run's rounds",
	Long: `Without arguments, list the most recent runs. With a run id, show the run
and the edge counts of every LargeStar+SmallStar round it executed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			stats, err := store.GetIterations(ctx, run.ID)
			if err != nil {
				return err
			}
			printRunDetail(out, run, stats)
			return nil
		}

		runs, err := store.ListRuns(ctx, runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Fprintf(out, "%s\n", gray("No runs recorded"))
			return nil
		}
		for _, run := range runs {
			fmt.Fprintf(out, "%s  %-13s  %4d rounds  %8d edges  %8d mapped  %s\n",
				run.ID, runStatus(run.Status), run.Iterations, run.InputEdges, run.MappedNodes,
				run.StartedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

func printRunDetail(w io.Writer, run *types.Run, stats []*types.IterationStat) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(w, "\n%s %s\n\n", cyan("Run"), run.ID)
	fmt.Fprintf(w, "  Status:      %s\n", runStatus(run.Status))
	fmt.Fprintf(w, "  Edges:       %d\n", run.InputEdges)
	fmt.Fprintf(w, "  Partitions:  %d\n", run.Partitions)
	fmt.Fprintf(w, "  Iterations:  %d (cap %d)\n", run.Iterations, run.MaxIterations)
	fmt.Fprintf(w, "  Mapped:      %d\n", run.MappedNodes)
	fmt.Fprintf(w, "  Started:     %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "  Duration:    %s\n", run.Duration().Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(w, "  Error:       %s\n", run.Error)
	}
	if len(stats) == 0 {
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintf(w, "\n  %-6s %12s %12s %10s %10s\n", "ROUND", "LARGE", "SMALL", "CHANGES", "TIME")
	for _, s := range stats {
		fmt.Fprintf(w, "  %-6d %12d %12d %10d %10s\n",
			s.Iteration, s.LargeEdges, s.SmallEdges, s.Changes, s.Duration.Round(time.Millisecond))
	}
	fmt.Fprintln(w)
}

func runStatus(s types.RunStatus) string {
	switch s {
	case types.RunConverged:
		return color.GreenString(string(s))
	case types.RunRunning:
		return color.YellowString(string(s))
	default:
		return color.RedString(string(s))
	}
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list (0 lists all)")
}
