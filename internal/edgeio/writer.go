package edgeio

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/steveyegge/sgcc/internal/dataset"
	"github.com/steveyegge/sgcc/internal/types"
)

// MappingHeader is the header row of a mapping file.
var MappingHeader = []string{"node", "representative"}

// WriteMapping writes (node, representative) rows sorted by node. pairs is
// not modified.
func WriteMapping(w io.Writer, pairs []dataset.Pair[types.NodeID]) error {
	sorted := slices.Clone(pairs)
	slices.SortFunc(sorted, func(a, b dataset.Pair[types.NodeID]) int {
		return cmp.Compare(a.Key, b.Key)
	})

	writer := csv.NewWriter(w)
	if err := writer.Write(MappingHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, 2)
	for i, p := range sorted {
		row[0] = strconv.FormatInt(p.Key, 10)
		row[1] = strconv.FormatInt(p.Value, 10)
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteMappingFile writes the mapping to path, creating parent directories.
func WriteMappingFile(path string, pairs []dataset.Pair[types.NodeID]) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := WriteMapping(file, pairs); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
