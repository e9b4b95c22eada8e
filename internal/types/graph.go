package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidEdge is returned when an edge cannot be ingested: a missing or
// non-integer identifier, or a row with the wrong number of fields.
var ErrInvalidEdge = errors.New("invalid edge")

// NodeID identifies one record. IDs are totally ordered and the minimum ID of
// a component is its canonical representative.
type NodeID = int64

// Edge is an undirected candidate-duplicate relation between two records.
// U and V may arrive in either order; storage keeps each edge once.
type Edge struct {
	U NodeID `json:"u"`
	V NodeID `json:"v"`
}

// IsSelfLoop reports whether both endpoints are the same record.
func (e Edge) IsSelfLoop() bool {
	return e.U == e.V
}

// Canonical returns the edge with the smaller endpoint first.
func (e Edge) Canonical() Edge {
	if e.V < e.U {
		return Edge{U: e.V, V: e.U}
	}
	return e
}

func (e Edge) String() string {
	return fmt.Sprintf("(%d, %d)", e.U, e.V)
}

// ParseNodeID parses a decimal record identifier.
func ParseNodeID(s string) (NodeID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: missing node id", ErrInvalidEdge)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: node id %q is not a 64-bit integer", ErrInvalidEdge, s)
	}
	return id, nil
}

// ParseEdge parses a two-field row into an Edge. Self-loops parse
// successfully; dropping them is the resolver's job.
func ParseEdge(fields []string) (Edge, error) {
	if len(fields) != 2 {
		return Edge{}, fmt.Errorf("%w: expected 2 fields, got %d", ErrInvalidEdge, len(fields))
	}
	u, err := ParseNodeID(fields[0])
	if err != nil {
		return Edge{}, err
	}
	v, err := ParseNodeID(fields[1])
	if err != nil {
		return Edge{}, err
	}
	return Edge{U: u, V: v}, nil
}
