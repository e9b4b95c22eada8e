// Package edgeio reads candidate-duplicate edge lists and writes resolved
// node-to-representative mappings as CSV.
package edgeio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/steveyegge/sgcc/internal/types"
)

// Reader streams edges from a delimited file with one "u,v" pair per line.
// Lines starting with '#' are comments. A first row in which no field is an
// integer is treated as a header and skipped; a first row mixing ids and
// junk is a malformed edge.
type Reader struct {
	csv  *csv.Reader
	rows int
}

// NewReader returns a Reader splitting fields on comma.
func NewReader(r io.Reader, comma rune) *Reader {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &Reader{csv: cr}
}

// CommaFor picks the delimiter from a file name: tab for .tsv, comma otherwise.
func CommaFor(path string) rune {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}
	return ','
}

// Read returns the next edge, or io.EOF when the input is exhausted. Parse
// errors carry the 1-based line number and wrap types.ErrInvalidEdge.
func (r *Reader) Read() (types.Edge, error) {
	for {
		record, err := r.csv.Read()
		if err == io.EOF {
			return types.Edge{}, io.EOF
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return types.Edge{}, fmt.Errorf("line %d: %w: %v", perr.Line, types.ErrInvalidEdge, perr.Err)
			}
			return types.Edge{}, fmt.Errorf("failed to read edges: %w", err)
		}
		r.rows++
		line, _ := r.csv.FieldPos(0)

		if r.rows == 1 && isHeader(record) {
			continue
		}

		e, err := types.ParseEdge(record)
		if err != nil {
			return types.Edge{}, fmt.Errorf("line %d: %w", line, err)
		}
		return e, nil
	}
}

// ReadAll calls fn for every remaining edge. An error from fn stops reading
// and is returned unchanged.
func (r *Reader) ReadAll(fn func(types.Edge) error) error {
	for {
		e, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

// ReadFile streams every edge of the file at path to fn.
func ReadFile(path string, fn func(types.Edge) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open edge file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := NewReader(file, CommaFor(path)).ReadAll(fn); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	for _, field := range record {
		if _, err := types.ParseNodeID(field); err == nil {
			return false
		}
	}
	return true
}
