package cc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/sgcc/internal/dataset"
	"github.com/steveyegge/sgcc/internal/types"
)

func pairsOf(kv ...types.NodeID) []dataset.Pair[types.NodeID] {
	out := make([]dataset.Pair[types.NodeID], 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, dataset.Pair[types.NodeID]{Key: kv[i], Value: kv[i+1]})
	}
	return out
}

func assignPairs(t *testing.T, kv ...types.NodeID) (*Mapping, error) {
	t.Helper()
	c, err := dataset.Parallelize(pairsOf(kv...), testOpts())
	require.NoError(t, err)
	return Assign(testContext(), c)
}

func TestAssign_PassesValidMappingThrough(t *testing.T) {
	m, err := assignPairs(t, 2, 1, 3, 1, 9, 4)
	require.NoError(t, err)

	lookup, err := m.Collect(testContext())
	require.NoError(t, err)
	assert.Equal(t, pairsOf(2, 1, 3, 1, 9, 4), lookup.Entries())
}

func TestAssign_RejectsViolations(t *testing.T) {
	tests := []struct {
		name       string
		pairs      []types.NodeID
		node       types.NodeID
		rep        types.NodeID
		reason     string
		violations int
	}{
		{"self entry", []types.NodeID{2, 1, 5, 5}, 5, 5, reasonSelf, 1},
		{"larger representative", []types.NodeID{3, 8}, 3, 8, reasonLarger, 1},
		{"two representatives", []types.NodeID{7, 1, 7, 2, 9, 1}, 7, 1, reasonMultiple, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := assignPairs(t, tt.pairs...)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvariantViolation)

			var invErr *InvariantError
			require.ErrorAs(t, err, &invErr)
			assert.Equal(t, tt.node, invErr.Node)
			assert.Equal(t, tt.rep, invErr.Representative)
			assert.Equal(t, tt.reason, invErr.Reason)
			assert.Equal(t, tt.violations, invErr.Violations)
		})
	}
}

func TestLookup_Clusters(t *testing.T) {
	lookup := NewLookup(pairsOf(5, 4, 3, 1, 2, 1, 9, 4))

	assert.Equal(t, 4, lookup.Len())
	assert.Equal(t, []Cluster{
		{Representative: 1, Members: []types.NodeID{1, 2, 3}},
		{Representative: 4, Members: []types.NodeID{4, 5, 9}},
	}, lookup.Clusters())

	assert.Equal(t, types.NodeID(4), lookup.Representative(9))
	assert.Equal(t, types.NodeID(100), lookup.Representative(100))
	assert.True(t, lookup.Keep(1))
	assert.False(t, lookup.Keep(9))
}

func TestLookup_Empty(t *testing.T) {
	lookup := NewLookup(nil)
	assert.Zero(t, lookup.Len())
	assert.Empty(t, lookup.Clusters())
	assert.Equal(t, types.NodeID(3), lookup.Representative(3))
}

func TestPrepare(t *testing.T) {
	ctx := testContext()
	c, err := dataset.Parallelize(pairsOf(1, 2, 2, 1, 3, 3, 4, 2, 1, 2), testOpts())
	require.NoError(t, err)

	prepared, err := Prepare(ctx, c)
	require.NoError(t, err)
	got, err := prepared.Collect(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, pairsOf(2, 1, 4, 2), got)
}

func TestStarReducers(t *testing.T) {
	var out []dataset.Pair[types.NodeID]
	emit := func(p dataset.Pair[types.NodeID]) { out = append(out, p) }

	largeStarReduce(3, []types.NodeID{2, 4, 7}, emit)
	assert.Equal(t, pairsOf(4, 2, 7, 2), out)

	out = nil
	largeStarReduce(1, []types.NodeID{5, 9}, emit)
	assert.Equal(t, pairsOf(5, 1, 9, 1), out)

	out = nil
	smallStarReduce(8, []types.NodeID{3, 6}, emit)
	assert.Equal(t, pairsOf(8, 3, 6, 3), out)

	out = nil
	smallStarReduce(8, nil, emit)
	assert.Empty(t, out)
}
