package unionfind

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/sgcc/internal/types"
)

func TestUnionFind_MinimumIsRoot(t *testing.T) {
	uf := New()
	assert.True(t, uf.Union(5, 9))
	assert.True(t, uf.Union(9, 2))
	assert.False(t, uf.Union(2, 5))

	assert.Equal(t, types.NodeID(2), uf.Find(5))
	assert.Equal(t, types.NodeID(2), uf.Find(9))
	assert.Equal(t, types.NodeID(2), uf.Find(2))
	assert.Equal(t, 3, uf.Size(9))

	// unknown ids are singletons
	assert.Equal(t, types.NodeID(42), uf.Find(42))
	assert.Equal(t, 1, uf.Size(42))
}

func TestUnionFind_Mapping(t *testing.T) {
	uf := FromEdges([]types.Edge{{U: 1, V: 2}, {U: 2, V: 3}, {U: 10, V: 11}, {U: 7, V: 7}})
	assert.Equal(t, map[types.NodeID]types.NodeID{2: 1, 3: 1, 11: 10}, uf.Mapping())
	assert.Equal(t, [][]types.NodeID{{1, 2, 3}, {7}, {10, 11}}, uf.Components())
}

func TestUnionFind_NegativeIDs(t *testing.T) {
	uf := FromEdges([]types.Edge{{U: 3, V: -4}, {U: -4, V: 0}})
	assert.Equal(t, map[types.NodeID]types.NodeID{3: -4, 0: -4}, uf.Mapping())
}
