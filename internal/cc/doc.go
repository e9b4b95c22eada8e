// Package cc resolves connected components of a candidate-duplicate graph
// using alternating large-star and small-star contractions.
//
// The graph is never held in one place. Every step is a pure transform of a
// dataset.Collection, so a lost partition can be recomputed from its input
// and a different engine can be swapped in without touching this package.
//
// Resolve prepares the edge set, then repeats
//
//	afterLarge = LargeStar(current)
//	afterSmall = SmallStar(afterLarge)
//	changed    = (afterSmall \ current) ∪ (current \ afterSmall)
//	current    = afterSmall
//
// until changed is empty, i.e. a full round is a no-op. The converged
// collection holds one (node, representative) pair per node whose component
// minimum is some other node. Assign validates that shape and exposes it as
// a Mapping. Nodes with no entry are their own representative.
package cc
