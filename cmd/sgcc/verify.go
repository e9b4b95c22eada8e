package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/sgcc/internal/pipeline"
)

var (
	verifyRun           string
	verifyMaxMismatches int
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a run's mapping against a sequential union-find",
	Long: `Recompute the components of the stored edges with a single-threaded
union-find and compare every node's representative with the mapping recorded
by a converged run. Exits non-zero on any mismatch.

Verification is only meaningful while the edge set is unchanged since the run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := selectRun(cmd, store, verifyRun)
		if err != nil {
			return err
		}

		report, err := pipeline.Verify(cmd.Context(), store, runID, verifyMaxMismatches)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		if report.OK() {
			fmt.Fprintf(out, "%s Run %s matches: %d nodes in %d components\n",
				green("✓"), report.RunID, report.Nodes, report.Components)
			return nil
		}

		fmt.Fprintf(out, "%s Run %s has mismatches:\n", red("✗"), report.RunID)
		for _, m := range report.Mismatches {
			fmt.Fprintf(out, "  node %d: want %d, got %d\n", m.Node, m.Want, m.Got)
		}
		if report.Truncated {
			fmt.Fprintf(out, "  ... more mismatches omitted\n")
		}
		return fmt.Errorf("mapping for run %s disagrees with union-find", report.RunID)
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyRun, "run", "", "Run to verify (default: latest converged run)")
	verifyCmd.Flags().IntVar(&verifyMaxMismatches, "max-mismatches", 20, "Mismatches to report (0 reports all)")
}
