package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/sgcc/internal/edgeio"
	"github.com/steveyegge/sgcc/internal/logging"
	"github.com/steveyegge/sgcc/internal/storage"
	"github.com/steveyegge/sgcc/internal/types"
)

var (
	importReplace bool
	importBatch   int
)

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import candidate-duplicate pairs into the edge store",
	Long: `Import "u,v" pairs from CSV (or TSV, by .tsv extension) files.

Lines starting with '#' are comments and a non-numeric first row is treated as
a header. Pairs are stored once regardless of orientation; self-pairs are
ignored. The first malformed line aborts the import with its line number;
batches already written are kept.

Example:
  sgcc import pairs.csv
  sgcc import --replace day1.csv day2.tsv`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if importReplace {
			n, err := store.ClearEdges(ctx)
			if err != nil {
				return err
			}
			logging.FromContext(ctx).Info("cleared existing edges", "edges", n)
		}

		read, added, err := importFiles(ctx, store, args, importBatch)
		if err != nil {
			return err
		}

		total, err := store.CountEdges(ctx)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Imported %d pairs (%d new), %d edges stored\n", green("✓"), read, added, total)
		return nil
	},
}

// importFiles streams every file into st through one batching Importer.
func importFiles(ctx context.Context, st storage.Storage, paths []string, batch int) (read, added int64, err error) {
	im := storage.NewImporter(ctx, st, batch)
	for _, path := range paths {
		err := edgeio.ReadFile(path, func(e types.Edge) error {
			return im.Add(ctx, e)
		})
		if err != nil {
			return im.Read(), im.Added(), err
		}
	}
	if err := im.Flush(ctx); err != nil {
		return im.Read(), im.Added(), err
	}
	return im.Read(), im.Added(), nil
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "Delete stored edges before importing")
	importCmd.Flags().IntVar(&importBatch, "batch", storage.DefaultImportBatch, "Edges written per transaction")
}
