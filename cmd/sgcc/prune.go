package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var pruneKeep int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old runs with their history and mappings",
	Long: `Delete finished runs beyond the most recent --keep, together with their
per-round history and mappings. Running runs and the latest converged run are
never deleted.

Without --keep the retention.keep_runs setting is used; resolve applies the
same setting automatically after every successful run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keep := cfg.KeepRuns
		if cmd.Flags().Changed("keep") {
			keep = pruneKeep
		}
		if keep <= 0 {
			return fmt.Errorf("--keep must be positive (retention.keep_runs is %d)", cfg.KeepRuns)
		}

		n, err := store.PruneRuns(cmd.Context(), keep)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(cmd.OutOrStdout(), "%s Pruned %d runs (kept %d most recent)\n", green("✓"), n, keep)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "Runs to keep (default: retention.keep_runs)")
}
