package pgo

import "sort"

// ConsistencyGraph is an undirected graph over admitted loop-closure
// measurements, identified by their insertion index. An edge marks a pair
// judged geometrically consistent. Edges are only ever added: admitting a
// new measurement extends the graph, it never invalidates existing edges.
//
// The accepted inlier set is the vertex set of the maximum clique,
// recomputed after every admission. Maximum clique is NP-hard in general;
// for the graph sizes loop-closure streams produce (hundreds of vertices)
// an exact search with pivoting is fast, and a fixed insertion order plus
// fixed thresholds always reproduces the same clique.
type ConsistencyGraph struct {
	adj []map[int]bool
}

// NewConsistencyGraph creates an empty consistency graph.
func NewConsistencyGraph() *ConsistencyGraph {
	return &ConsistencyGraph{}
}

// AddVertex appends a vertex and returns its index.
func (g *ConsistencyGraph) AddVertex() int {
	g.adj = append(g.adj, make(map[int]bool))
	return len(g.adj) - 1
}

// AddEdge records pairwise consistency between two vertices.
func (g *ConsistencyGraph) AddEdge(u, v int) {
	if u == v {
		return
	}
	g.adj[u][v] = true
	g.adj[v][u] = true
}

// HasEdge reports whether u and v are marked consistent.
func (g *ConsistencyGraph) HasEdge(u, v int) bool {
	if u < 0 || v < 0 || u >= len(g.adj) || v >= len(g.adj) {
		return false
	}
	return g.adj[u][v]
}

// Order returns the number of vertices.
func (g *ConsistencyGraph) Order() int { return len(g.adj) }

// Degree returns the number of consistent partners of v.
func (g *ConsistencyGraph) Degree(v int) int { return len(g.adj[v]) }

// MaxClique returns the vertices of a maximum clique in ascending order.
// The search is exact (Bron-Kerbosch with pivoting) and deterministic:
// candidates are always iterated in ascending vertex order and a larger
// clique is required to displace the incumbent, so among equal-sized
// maximum cliques the one reached first — biased toward the lowest
// insertion indices — always wins.
func (g *ConsistencyGraph) MaxClique() []int {
	n := len(g.adj)
	if n == 0 {
		return nil
	}

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	var best []int
	var expand func(r, p, x []int)
	expand = func(r, p, x []int) {
		if len(p) == 0 && len(x) == 0 {
			if len(r) > len(best) {
				best = append([]int(nil), r...)
			}
			return
		}
		if len(r)+len(p) <= len(best) {
			return
		}

		pivot := g.choosePivot(p, x)
		candidates := make([]int, 0, len(p))
		for _, v := range p {
			if !g.adj[pivot][v] {
				candidates = append(candidates, v)
			}
		}
		for _, v := range candidates {
			branch := make([]int, len(r), len(r)+1)
			copy(branch, r)
			expand(
				append(branch, v),
				intersect(p, g.adj[v]),
				intersect(x, g.adj[v]),
			)
			p = remove(p, v)
			x = insertSorted(x, v)
		}
	}
	expand(nil, all, nil)

	sort.Ints(best)
	return best
}

// choosePivot picks the vertex of P ∪ X with the most neighbors in P,
// breaking ties toward the lowest index for determinism.
func (g *ConsistencyGraph) choosePivot(p, x []int) int {
	bestV, bestCount := -1, -1
	consider := func(v int) {
		count := 0
		for _, u := range p {
			if g.adj[v][u] {
				count++
			}
		}
		if count > bestCount {
			bestV, bestCount = v, count
		}
	}
	for _, v := range p {
		consider(v)
	}
	for _, v := range x {
		consider(v)
	}
	return bestV
}

// intersect returns the members of sorted slice s adjacent per neighbors.
func intersect(s []int, neighbors map[int]bool) []int {
	out := make([]int, 0, len(s))
	for _, v := range s {
		if neighbors[v] {
			out = append(out, v)
		}
	}
	return out
}

// remove deletes v from sorted slice s, preserving order.
func remove(s []int, v int) []int {
	for i, u := range s {
		if u == v {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}

// insertSorted inserts v into sorted slice s, preserving order.
func insertSorted(s []int, v int) []int {
	i := sort.SearchInts(s, v)
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}
