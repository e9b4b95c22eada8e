// Package unionfind is a sequential union-find used as a reference answer
// for the distributed resolver. It is not on the resolver's code path.
package unionfind

import (
	"sort"

	"github.com/steveyegge/sgcc/internal/types"
)

// UnionFind implements union-find with path compression. The root of every
// component is always its minimum member, so Find returns the canonical
// representative directly.
type UnionFind struct {
	parent map[types.NodeID]types.NodeID
	size   map[types.NodeID]int
}

// New creates an empty UnionFind. Nodes are added as they are first seen.
func New() *UnionFind {
	return &UnionFind{
		parent: make(map[types.NodeID]types.NodeID),
		size:   make(map[types.NodeID]int),
	}
}

// FromEdges builds a UnionFind over every endpoint in edges.
func FromEdges(edges []types.Edge) *UnionFind {
	uf := New()
	for _, e := range edges {
		uf.Union(e.U, e.V)
	}
	return uf
}

// Add registers id as a singleton if it is not already known.
func (uf *UnionFind) Add(id types.NodeID) {
	if _, ok := uf.parent[id]; !ok {
		uf.parent[id] = id
		uf.size[id] = 1
	}
}

// Find returns the minimum member of id's component. Unknown ids are their
// own component.
func (uf *UnionFind) Find(id types.NodeID) types.NodeID {
	root, ok := uf.parent[id]
	if !ok {
		return id
	}
	for uf.parent[root] != root {
		root = uf.parent[root]
	}
	// compress
	for id != root {
		next := uf.parent[id]
		uf.parent[id] = root
		id = next
	}
	return root
}

// Union merges the components containing a and b. Returns true if they were separate.
func (uf *UnionFind) Union(a, b types.NodeID) bool {
	uf.Add(a)
	uf.Add(b)
	rootA := uf.Find(a)
	rootB := uf.Find(b)
	if rootA == rootB {
		return false
	}
	if rootB < rootA {
		rootA, rootB = rootB, rootA
	}
	uf.parent[rootB] = rootA
	uf.size[rootA] += uf.size[rootB]
	delete(uf.size, rootB)
	return true
}

// Size returns the number of members in id's component.
func (uf *UnionFind) Size(id types.NodeID) int {
	if n, ok := uf.size[uf.Find(id)]; ok {
		return n
	}
	return 1
}

// Mapping returns node -> representative for every known node that is not
// its own representative.
func (uf *UnionFind) Mapping() map[types.NodeID]types.NodeID {
	out := make(map[types.NodeID]types.NodeID)
	for id := range uf.parent {
		if root := uf.Find(id); root != id {
			out[id] = root
		}
	}
	return out
}

// Components returns all components as sorted slices, ordered by representative.
func (uf *UnionFind) Components() [][]types.NodeID {
	groups := make(map[types.NodeID][]types.NodeID)
	for id := range uf.parent {
		root := uf.Find(id)
		groups[root] = append(groups[root], id)
	}
	out := make([][]types.NodeID, 0, len(groups))
	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
