package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/sgcc/internal/config"
	"github.com/steveyegge/sgcc/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init [project-name]",
	Short: "Initialize an sgcc project in the current directory",
	Long: `Initialize an sgcc project by creating a .sgcc/ directory with a database.

This creates:
  - .sgcc/ directory
  - .sgcc/<project-name>.db (SQLite database)
  - .sgcc/config.yaml (annotated defaults, kept if it already exists)

If no project name is provided, the current directory name is used.

Example:
  cd ~/dedup
  sgcc init            # Creates .sgcc/dedup.db
  sgcc init customers  # Creates .sgcc/customers.db`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		projectName := ""
		if len(args) > 0 {
			projectName = args[0]
		}

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}

		path, err := storage.InitProject(cwd, projectName)
		if err != nil {
			return err
		}

		// Create the schema by opening and closing the database
		db, err := storage.NewStorage(cmd.Context(), &storage.Config{Path: path})
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		_ = db.Close()

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s Initialized sgcc project\n\n", green("✓"))
		fmt.Printf("  Database: %s\n", cyan(path))
		fmt.Printf("  Config:   %s\n", cyan(config.ProjectDir+"/"+config.ConfigFileName))
		fmt.Println()
		fmt.Printf("%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray("sgcc import pairs.csv"))
		fmt.Printf("  %s\n", gray("sgcc resolve --out mapping.csv"))
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
