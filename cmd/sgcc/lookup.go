package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/steveyegge/sgcc/internal/storage"
	"github.com/steveyegge/sgcc/internal/types"
)

var (
	lookupRun     string
	lookupMembers bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <node>...",
	Short: "Print the representative of each node",
	Long: `Print "node,representative" for each node using a recorded run's mapping.
Nodes absent from the mapping are their own representative.

With --members, print every member of each node's component instead.

Example:
  sgcc lookup 42 77
  sgcc lookup --members --run 3f2a... 42`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runID, err := selectRun(cmd, store, lookupRun)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, arg := range args {
			node, err := types.ParseNodeID(arg)
			if err != nil {
				return err
			}
			rep, _, err := store.GetRepresentative(ctx, runID, node)
			if err != nil {
				return err
			}
			if !lookupMembers {
				fmt.Fprintf(out, "%d,%d\n", node, rep)
				continue
			}
			members, err := store.GetMembers(ctx, runID, rep)
			if err != nil {
				return err
			}
			printMembers(out, rep, members)
		}
		return nil
	},
}

// selectRun resolves an explicit --run flag or falls back to the latest
// converged run.
func selectRun(cmd *cobra.Command, st storage.Storage, runID string) (string, error) {
	if runID != "" {
		run, err := st.GetRun(cmd.Context(), runID)
		if err != nil {
			return "", err
		}
		if run.Status != types.RunConverged {
			return "", fmt.Errorf("run %s is %s; only converged runs have a mapping", run.ID, run.Status)
		}
		return run.ID, nil
	}
	run, err := st.LatestRun(cmd.Context())
	if err != nil {
		return "", fmt.Errorf("no converged run found (run 'sgcc resolve' first): %w", err)
	}
	return run.ID, nil
}

// printMembers writes "rep: rep m1 m2 ..."; the stored members exclude rep.
func printMembers(w io.Writer, rep types.NodeID, members []types.NodeID) {
	fmt.Fprintf(w, "%d: %d", rep, rep)
	for _, m := range members {
		fmt.Fprintf(w, " %d", m)
	}
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.Flags().StringVar(&lookupRun, "run", "", "Run to query (default: latest converged run)")
	lookupCmd.Flags().BoolVar(&lookupMembers, "members", false, "Print every member of the node's component")
}
