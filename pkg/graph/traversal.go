// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graph

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Direction controls which edges a traversal follows.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// DirectionFromString parses a direction name, defaulting to Outgoing on an
// unrecognized value.
func DirectionFromString(s string) Direction {
	switch s {
	case "incoming":
		return Incoming
	case "both":
		return Both
	default:
		return Outgoing
	}
}

const (
	maxNodesExplored   = 5000
	maxQueriesPerStart = 1000
)

// Traverser runs bounded BFS/DFS over a pre-fetched node/edge snapshot,
// independent of the live Store — used for impact-analysis and "extract
// subgraph" operations where touching the store per-step would be too slow.
type Traverser struct {
	out map[QualifiedName][]Edge
	in  map[QualifiedName][]Edge
}

// NewTraverser builds a traverser from the store's current snapshot.
func NewTraverser(s *Store) *Traverser {
	t := &Traverser{out: make(map[QualifiedName][]Edge), in: make(map[QualifiedName][]Edge)}
	for _, e := range s.AllEdges() {
		t.out[e.From] = append(t.out[e.From], e)
		t.in[e.To] = append(t.in[e.To], e)
	}
	return t
}

func (t *Traverser) neighbors(qn QualifiedName, dir Direction, relFilter EdgeKind) []QualifiedName {
	var out []QualifiedName
	add := func(edges []Edge, pickTo bool) {
		for _, e := range edges {
			if relFilter != "" && e.Kind != relFilter {
				continue
			}
			if pickTo {
				out = append(out, e.To)
			} else {
				out = append(out, e.From)
			}
		}
	}
	if dir == Outgoing || dir == Both {
		add(t.out[qn], true)
	}
	if dir == Incoming || dir == Both {
		add(t.in[qn], false)
	}
	return out
}

// TraversalResult is the output of a bounded BFS/DFS.
type TraversalResult struct {
	VisitedNodes []QualifiedName
	Depths       map[QualifiedName]int
	Edges        []Edge
}

// BFS explores from start up to maxDepth hops (0 = unlimited, bounded by the
// safety caps), optionally filtered to a single relationship kind.
func (t *Traverser) BFS(ctx context.Context, start QualifiedName, maxDepth int, dir Direction, relFilter EdgeKind) (*TraversalResult, error) {
	return t.traverse(ctx, start, maxDepth, dir, relFilter, true)
}

// DFS is the depth-first analogue of BFS.
func (t *Traverser) DFS(ctx context.Context, start QualifiedName, maxDepth int, dir Direction, relFilter EdgeKind) (*TraversalResult, error) {
	return t.traverse(ctx, start, maxDepth, dir, relFilter, false)
}

func (t *Traverser) traverse(ctx context.Context, start QualifiedName, maxDepth int, dir Direction, relFilter EdgeKind, breadthFirst bool) (*TraversalResult, error) {
	depths := map[QualifiedName]int{start: 0}
	order := []QualifiedName{start}
	queries := 0

	type frame struct {
		qn    QualifiedName
		depth int
	}
	frontier := []frame{{start, 0}}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(order) >= maxNodesExplored {
			break
		}

		var cur frame
		if breadthFirst {
			cur, frontier = frontier[0], frontier[1:]
		} else {
			cur, frontier = frontier[len(frontier)-1], frontier[:len(frontier)-1]
		}

		if maxDepth > 0 && cur.depth >= maxDepth {
			continue
		}
		queries++
		if queries > maxQueriesPerStart {
			break
		}

		for _, next := range t.neighbors(cur.qn, dir, relFilter) {
			if _, seen := depths[next]; seen {
				continue
			}
			depths[next] = cur.depth + 1
			order = append(order, next)
			frontier = append(frontier, frame{next, cur.depth + 1})
			if len(order) >= maxNodesExplored {
				break
			}
		}
	}

	visitedSet := make(map[QualifiedName]bool, len(order))
	for _, qn := range order {
		visitedSet[qn] = true
	}
	edges := make([]Edge, 0)
	for _, qn := range order {
		for _, e := range t.out[qn] {
			if visitedSet[e.To] {
				edges = append(edges, e)
			}
		}
	}

	return &TraversalResult{VisitedNodes: order, Depths: depths, Edges: edges}, nil
}

// GetReachableNodes is a thin BFS wrapper returning just the visited set.
func (t *Traverser) GetReachableNodes(ctx context.Context, start QualifiedName, maxDepth int, dir Direction) ([]QualifiedName, error) {
	res, err := t.BFS(ctx, start, maxDepth, dir, "")
	if err != nil {
		return nil, err
	}
	return res.VisitedNodes, nil
}

// BatchTraverseBFS runs BFS independently from every start node.
func BatchTraverseBFS(ctx context.Context, t *Traverser, starts []QualifiedName, maxDepth int, dir Direction) (map[QualifiedName]*TraversalResult, error) {
	return batchTraverse(ctx, t, starts, maxDepth, dir, true)
}

// BatchTraverseDFS runs DFS independently from every start node.
func BatchTraverseDFS(ctx context.Context, t *Traverser, starts []QualifiedName, maxDepth int, dir Direction) (map[QualifiedName]*TraversalResult, error) {
	return batchTraverse(ctx, t, starts, maxDepth, dir, false)
}

func batchTraverse(ctx context.Context, t *Traverser, starts []QualifiedName, maxDepth int, dir Direction, breadthFirst bool) (map[QualifiedName]*TraversalResult, error) {
	results := make(map[QualifiedName]*TraversalResult, len(starts))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, start := range starts {
		start := start
		g.Go(func() error {
			var res *TraversalResult
			var err error
			if breadthFirst {
				res, err = t.BFS(gctx, start, maxDepth, dir, "")
			} else {
				res, err = t.DFS(gctx, start, maxDepth, dir, "")
			}
			if err != nil {
				return fmt.Errorf("traverse from %s: %w", start, err)
			}
			mu.Lock()
			results[start] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ExtractSubgraph runs parallel BFS from every start node (up to maxDepth)
// and returns the union of visited nodes plus the edges between them —
// the "extract subgraph" operation used by impact-analysis tooling.
func ExtractSubgraph(ctx context.Context, t *Traverser, starts []QualifiedName, maxDepth int, dir Direction) ([]QualifiedName, []Edge, error) {
	perStart, err := BatchTraverseBFS(ctx, t, starts, maxDepth, dir)
	if err != nil {
		return nil, nil, err
	}

	nodeSet := make(map[QualifiedName]bool)
	for _, res := range perStart {
		for _, qn := range res.VisitedNodes {
			nodeSet[qn] = true
		}
	}

	nodes := make([]QualifiedName, 0, len(nodeSet))
	for qn := range nodeSet {
		nodes = append(nodes, qn)
	}

	edges := make([]Edge, 0)
	for qn := range nodeSet {
		for _, e := range t.out[qn] {
			if nodeSet[e.To] {
				edges = append(edges, e)
			}
		}
	}

	return nodes, edges, nil
}
