package cc

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/sgcc/internal/dataset"
	"github.com/steveyegge/sgcc/internal/types"
)

// ErrInvariantViolation is wrapped by *InvariantError. It signals a bug
// upstream of Assign and is never corrected silently.
var ErrInvariantViolation = errors.New("representative mapping invariant violated")

// InvariantError describes the first offending entry (lowest node ID) and
// how many entries were bad in total.
type InvariantError struct {
	Node           types.NodeID
	Representative types.NodeID
	Reason         string
	Violations     int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%v: node %d -> %d: %s (%d violating entries)",
		ErrInvariantViolation, e.Node, e.Representative, e.Reason, e.Violations)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

const (
	reasonSelf     = "node is its own representative"
	reasonLarger   = "representative is larger than node"
	reasonMultiple = "node has more than one representative"
)

// Mapping is a validated (node, representative) collection. Nodes without an
// entry are their own representative.
type Mapping struct {
	pairs Edges
}

// Assign validates a converged edge set and exposes it as a Mapping. The
// collection is passed through unchanged. Every entry must satisfy
// representative < node, and no node may appear twice.
func Assign(ctx context.Context, converged Edges) (*Mapping, error) {
	ctx, span := tracer.Start(ctx, "cc.Assign")
	defer span.End()

	groups, err := converged.GroupByKey(ctx)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("assign: %w", err))
	}
	flagged, err := groups.FlatMapGroups(ctx, func(node types.NodeID, reps []types.NodeID, emit emitFunc) {
		multiple := false
		for _, r := range reps {
			if r != reps[0] {
				multiple = true
				break
			}
		}
		for _, r := range reps {
			if multiple || r >= node {
				emit(pair{Key: node, Value: r})
			}
		}
	})
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("assign: %w", err))
	}
	violations, err := flagged.Collect(ctx)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("assign: %w", err))
	}
	if len(violations) > 0 {
		return nil, failSpan(span, newInvariantError(violations))
	}

	span.SetAttributes(attribute.Int("partitions", converged.NumPartitions()))
	return &Mapping{pairs: converged}, nil
}

func newInvariantError(violations []pair) *InvariantError {
	slices.SortFunc(violations, func(a, b pair) int {
		if c := cmp.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	first := violations[0]
	var reason string
	switch {
	case len(violations) > 1 && violations[1].Key == first.Key && violations[1].Value != first.Value:
		reason = reasonMultiple
	case first.Key == first.Value:
		reason = reasonSelf
	default:
		reason = reasonLarger
	}
	return &InvariantError{
		Node:           first.Key,
		Representative: first.Value,
		Reason:         reason,
		Violations:     len(violations),
	}
}

// Pairs returns the underlying (node, representative) collection for a
// distributed consumer.
func (m *Mapping) Pairs() Edges {
	return m.pairs
}

// Count returns the number of non-self entries.
func (m *Mapping) Count(ctx context.Context) (int64, error) {
	return m.pairs.Count(ctx)
}

// Collect gathers the mapping into a local Lookup. Use it only when the
// mapping fits in memory.
func (m *Mapping) Collect(ctx context.Context) (*Lookup, error) {
	entries, err := m.pairs.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect mapping: %w", err)
	}
	return NewLookup(entries), nil
}

// Lookup answers representative queries against a collected mapping.
type Lookup struct {
	entries []pair // sorted by node
}

// NewLookup builds a Lookup from (node, representative) entries. The slice is
// sorted in place.
func NewLookup(entries []dataset.Pair[types.NodeID]) *Lookup {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return &Lookup{entries: entries}
}

// Representative returns the component minimum for id. IDs with no entry are
// their own representative.
func (l *Lookup) Representative(id types.NodeID) types.NodeID {
	i := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].Key >= id })
	if i < len(l.entries) && l.entries[i].Key == id {
		return l.entries[i].Value
	}
	return id
}

// Keep reports whether a record survives deduplication: only the
// representative of each cluster is kept.
func (l *Lookup) Keep(id types.NodeID) bool {
	return l.Representative(id) == id
}

// Len returns the number of non-self entries.
func (l *Lookup) Len() int {
	return len(l.entries)
}

// Entries returns the (node, representative) pairs ordered by node.
func (l *Lookup) Entries() []dataset.Pair[types.NodeID] {
	return slices.Clone(l.entries)
}

// Cluster is one component with more than one member.
type Cluster struct {
	Representative types.NodeID
	Members        []types.NodeID // sorted, representative first
}

// Clusters groups the mapping by representative, ordered by representative.
func (l *Lookup) Clusters() []Cluster {
	byRep := make(map[types.NodeID][]types.NodeID)
	for _, e := range l.entries {
		byRep[e.Value] = append(byRep[e.Value], e.Key)
	}
	out := make([]Cluster, 0, len(byRep))
	for rep, members := range byRep {
		all := append([]types.NodeID{rep}, members...)
		slices.Sort(all)
		out = append(out, Cluster{Representative: rep, Members: all})
	}
	slices.SortFunc(out, func(a, b Cluster) int {
		return cmp.Compare(a.Representative, b.Representative)
	})
	return out
}
