package pipeline

import (
	"context"
	"fmt"

	"github.com/steveyegge/sgcc/internal/storage"
	"github.com/steveyegge/sgcc/internal/types"
	"github.com/steveyegge/sgcc/internal/unionfind"
)

// Mismatch is a node whose stored representative disagrees with the oracle.
type Mismatch struct {
	Node types.NodeID
	Want types.NodeID
	Got  types.NodeID
}

// Report is the result of checking a run's mapping against union-find.
type Report struct {
	RunID      string
	Nodes      int
	Components int
	Mismatches []Mismatch

	// Truncated is set when more mismatches existed than were kept.
	Truncated bool
}

// OK reports whether every node matched.
func (r *Report) OK() bool {
	return len(r.Mismatches) == 0
}

// Verify recomputes components of the stored edges with a sequential
// union-find and compares every node's representative with the mapping
// stored for runID. At most maxMismatches are kept; <= 0 keeps all.
func Verify(ctx context.Context, st storage.Storage, runID string, maxMismatches int) (*Report, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != types.RunConverged {
		return nil, fmt.Errorf("run %s is %s; only converged runs can be verified", runID, run.Status)
	}

	uf := unionfind.New()
	err = st.StreamEdges(ctx, func(e types.Edge) error {
		uf.Union(e.U, e.V)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}

	components := uf.Components()
	report := &Report{RunID: runID, Components: len(components)}
	for _, members := range components {
		want := members[0]
		for _, node := range members {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			report.Nodes++
			got, _, err := st.GetRepresentative(ctx, runID, node)
			if err != nil {
				return nil, err
			}
			if got == want {
				continue
			}
			if maxMismatches > 0 && len(report.Mismatches) >= maxMismatches {
				report.Truncated = true
				continue
			}
			report.Mismatches = append(report.Mismatches, Mismatch{Node: node, Want: want, Got: got})
		}
	}

	// Stale rows for nodes no longer in the graph would not be visited above.
	if mapped := int64(report.Nodes - report.Components); run.MappedNodes != mapped && report.OK() {
		return report, fmt.Errorf("run %s stored %d mapping entries but the current edges imply %d; edges changed since the run",
			runID, run.MappedNodes, mapped)
	}
	return report, nil
}
