package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/sgcc/internal/repl"
)

var replRun string

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive query shell",
	Long: `Start an interactive shell for querying recorded runs.

The shell answers representative and component-membership queries against the
latest converged run, lists runs and shows per-round history.

Type 'help' in the shell for available commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repl.New(&repl.Config{
			Store: store,
			RunID: replRun,
		})
		if err != nil {
			return fmt.Errorf("failed to create REPL: %w", err)
		}
		return r.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
	replCmd.Flags().StringVar(&replRun, "run", "", "Run to query (default: latest converged run)")
}
