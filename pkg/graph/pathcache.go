// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graph

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// PathCache is a transitive-closure index over a single edge kind, supporting
// O(1) reachability queries, bounded path enumeration, and incremental edge
// updates. It tolerates cyclic graphs.
type PathCache struct {
	mu sync.RWMutex

	kind EdgeKind

	nodes   []QualifiedName
	nodeIdx map[QualifiedName]int

	edgeSet map[[2]int]bool

	forward map[int]map[int]bool // node -> set of reachable nodes (excluding self unless a cycle reaches it)
	reverse map[int]map[int]bool

	adjOut map[int][]int
	adjIn  map[int][]int

	valid bool
}

// NewPathCache creates an (unbuilt) path cache for the given edge kind.
func NewPathCache(kind EdgeKind) *PathCache {
	return &PathCache{kind: kind, nodeIdx: make(map[QualifiedName]int)}
}

// Build constructs the transitive closure from the store's current edges of
// the configured kind. Per-node BFS fan-out runs in parallel.
func (p *PathCache) Build(ctx context.Context, s *Store) error {
	p.mu.Lock()

	nodeSet := make(map[QualifiedName]bool)
	for _, n := range s.AllNodes() {
		nodeSet[n.QualifiedName] = true
	}
	edges := make([]Edge, 0)
	for _, e := range s.AllEdges() {
		if e.Kind == p.kind {
			edges = append(edges, e)
			nodeSet[e.From] = true
			nodeSet[e.To] = true
		}
	}

	p.nodes = p.nodes[:0]
	p.nodeIdx = make(map[QualifiedName]int, len(nodeSet))
	for qn := range nodeSet {
		p.nodeIdx[qn] = len(p.nodes)
		p.nodes = append(p.nodes, qn)
	}

	p.adjOut = make(map[int][]int)
	p.adjIn = make(map[int][]int)
	p.edgeSet = make(map[[2]int]bool, len(edges))
	for _, e := range edges {
		from, to := p.nodeIdx[e.From], p.nodeIdx[e.To]
		p.adjOut[from] = append(p.adjOut[from], to)
		p.adjIn[to] = append(p.adjIn[to], from)
		p.edgeSet[[2]int{from, to}] = true
	}

	n := len(p.nodes)
	forward := make([]map[int]bool, n)
	reverse := make([]map[int]bool, n)

	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			forward[i] = bfsReach(p.adjOut, i)
			reverse[i] = bfsReach(p.adjIn, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fwd := make(map[int]map[int]bool, n)
	rev := make(map[int]map[int]bool, n)
	for i := 0; i < n; i++ {
		fwd[i] = forward[i]
		rev[i] = reverse[i]
	}

	p.mu.Lock()
	p.forward = fwd
	p.reverse = rev
	p.valid = true
	p.mu.Unlock()
	return nil
}

func bfsReach(adj map[int][]int, start int) map[int]bool {
	visited := map[int]bool{}
	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return visited
}

// CanReach reports whether b is reachable from a (strict: a==b with no cycle
// through a returns false).
func (p *PathCache) CanReach(a, b QualifiedName) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ai, aok := p.nodeIdx[a]
	bi, bok := p.nodeIdx[b]
	if !aok || !bok || !p.valid {
		return false
	}
	return p.forward[ai][bi]
}

// ReachableFrom returns every node reachable from a.
func (p *PathCache) ReachableFrom(a QualifiedName) []QualifiedName {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ai, ok := p.nodeIdx[a]
	if !ok || !p.valid {
		return nil
	}
	out := make([]QualifiedName, 0, len(p.forward[ai]))
	for idx := range p.forward[ai] {
		out = append(out, p.nodes[idx])
	}
	return out
}

// ShortestPathLength returns the length (edge count) of the shortest path
// from a to b, or -1 if unreachable.
func (p *PathCache) ShortestPathLength(a, b QualifiedName) int {
	p.mu.RLock()
	ai, aok := p.nodeIdx[a]
	bi, bok := p.nodeIdx[b]
	adjOut := p.adjOut
	p.mu.RUnlock()
	if !aok || !bok {
		return -1
	}
	if ai == bi {
		return 0
	}
	visited := map[int]bool{ai: true}
	queue := []struct {
		node, dist int
	}{{ai, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjOut[cur.node] {
			if next == bi {
				return cur.dist + 1
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, struct{ node, dist int }{next, cur.dist + 1})
			}
		}
	}
	return -1
}

// FindPaths enumerates simple paths from a to b up to maxLength edges,
// excluding the trivial length-1 self path when a == b.
func (p *PathCache) FindPaths(a, b QualifiedName, maxLength int) [][]QualifiedName {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ai, aok := p.nodeIdx[a]
	bi, bok := p.nodeIdx[b]
	if !aok || !bok || maxLength <= 0 {
		return nil
	}
	if a == b {
		return nil
	}

	var results [][]int
	path := []int{ai}
	onPath := map[int]bool{ai: true}

	var dfs func(cur int)
	dfs = func(cur int) {
		if len(path)-1 >= maxLength {
			return
		}
		for _, next := range p.adjOut[cur] {
			if onPath[next] {
				continue
			}
			if next == bi {
				found := make([]int, len(path)+1)
				copy(found, path)
				found[len(path)] = next
				results = append(results, found)
				continue
			}
			onPath[next] = true
			path = append(path, next)
			dfs(next)
			path = path[:len(path)-1]
			onPath[next] = false
		}
	}
	dfs(ai)

	out := make([][]QualifiedName, 0, len(results))
	for _, r := range results {
		qns := make([]QualifiedName, len(r))
		for i, idx := range r {
			qns[i] = p.nodes[idx]
		}
		out = append(out, qns)
	}
	return out
}

// FindCycles returns the shortest cycle touching each node that participates
// in at least one cycle.
func (p *PathCache) FindCycles() map[QualifiedName][]QualifiedName {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[QualifiedName][]QualifiedName)
	for i, qn := range p.nodes {
		if p.forward[i][i] {
			cycle := p.shortestCycleFrom(i)
			if cycle != nil {
				qns := make([]QualifiedName, len(cycle))
				for j, idx := range cycle {
					qns[j] = p.nodes[idx]
				}
				out[qn] = qns
			}
		}
	}
	return out
}

func (p *PathCache) shortestCycleFrom(start int) []int {
	visited := map[int]int{start: -1}
	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range p.adjOut[cur] {
			if next == start {
				path := []int{start}
				node := cur
				rev := []int{}
				for node != start {
					rev = append(rev, node)
					node = visited[node]
				}
				for i := len(rev) - 1; i >= 0; i-- {
					path = append(path, rev[i])
				}
				return path
			}
			if _, ok := visited[next]; !ok {
				visited[next] = cur
				queue = append(queue, next)
			}
		}
	}
	return nil
}

// AddEdge incrementally extends the closure for a new (from, to) edge:
// every node that reached `from` (plus `from` itself) can now reach every
// node `to` reaches (plus `to` itself). O(|reach(from)|*|reach(to)|).
func (p *PathCache) AddEdge(from, to QualifiedName) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.valid {
		return
	}
	fi, fok := p.nodeIdx[from]
	ti, tok := p.nodeIdx[to]
	if !fok || !tok {
		return
	}
	key := [2]int{fi, ti}
	if p.edgeSet[key] {
		return
	}
	p.edgeSet[key] = true
	p.adjOut[fi] = append(p.adjOut[fi], ti)
	p.adjIn[ti] = append(p.adjIn[ti], fi)

	sources := append([]int{fi}, reverseReachSlice(p.reverse[fi])...)
	targets := append([]int{ti}, reachSlice(p.forward[ti])...)

	for _, s := range sources {
		if p.forward[s] == nil {
			p.forward[s] = map[int]bool{}
		}
		for _, t := range targets {
			p.forward[s][t] = true
			if p.reverse[t] == nil {
				p.reverse[t] = map[int]bool{}
			}
			p.reverse[t][s] = true
		}
	}
}

func reachSlice(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func reverseReachSlice(m map[int]bool) []int { return reachSlice(m) }

// RemoveEdge drops an edge and triggers a full rebuild from the remaining
// edge set, matching the simplification the grounding algorithm makes
// (removal invalidates reachability in ways too costly to patch
// incrementally; it is expected to be infrequent relative to additions).
func (p *PathCache) RemoveEdge(ctx context.Context, s *Store, from, to QualifiedName) error {
	return p.Build(ctx, s)
}

// PathCacheStats summarizes a built cache's size.
type PathCacheStats struct {
	NumNodes          int
	NumEdges          int
	NumReachablePairs int
	AvgReachable      float64
}

// Stats reports size counters for the built cache.
func (p *PathCache) Stats() PathCacheStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pairs := 0
	for _, m := range p.forward {
		pairs += len(m)
	}
	avg := 0.0
	if len(p.nodes) > 0 {
		avg = float64(pairs) / float64(len(p.nodes))
	}
	return PathCacheStats{
		NumNodes:          len(p.nodes),
		NumEdges:          len(p.edgeSet),
		NumReachablePairs: pairs,
		AvgReachable:      avg,
	}
}
