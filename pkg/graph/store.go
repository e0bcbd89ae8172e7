// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graph

import (
	"fmt"
	"sort"
	"sync"

	rerrors "github.com/kraklabs/repotoire/internal/errors"
)

// Store is the embedded, in-memory property graph. It is safe for concurrent
// readers once Freeze has been called; writes before Freeze must come from a
// single goroutine (the ingestion writer), matching the teacher's single-
// writer ingestion pipeline idiom.
//
// This is not backed by an external embedded database: no CGO-bound graph
// engine ships in the example corpus, so the store is a plain adjacency-
// indexed map. See DESIGN.md (C1) for the reasoning.
type Store struct {
	mu sync.RWMutex

	nodes map[QualifiedName]*CodeNode
	order []QualifiedName // insertion order, for deterministic iteration

	outEdges map[QualifiedName][]Edge // From -> edges
	inEdges  map[QualifiedName][]Edge // To -> edges

	frozen bool
}

// NewStore constructs an empty graph store.
func NewStore() *Store {
	return &Store{
		nodes:    make(map[QualifiedName]*CodeNode),
		outEdges: make(map[QualifiedName][]Edge),
		inEdges:  make(map[QualifiedName][]Edge),
	}
}

// Freeze stops accepting writes. Safe to call multiple times.
func (s *Store) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}

// InsertNode adds or replaces a node. Returns GraphWriteFailure if the store
// is frozen.
func (s *Store) InsertNode(n *CodeNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return rerrors.NewGraphWriteError("cannot insert node into frozen graph", string(n.QualifiedName), nil)
	}
	if n.QualifiedName == "" {
		return rerrors.NewGraphWriteError("node has empty qualified name", n.Name, nil)
	}
	if n.LineStart > n.LineEnd && n.LineEnd != 0 {
		return rerrors.NewGraphWriteError("invalid node span", fmt.Sprintf("%s: start %d > end %d", n.QualifiedName, n.LineStart, n.LineEnd), nil)
	}
	if _, exists := s.nodes[n.QualifiedName]; !exists {
		s.order = append(s.order, n.QualifiedName)
	}
	s.nodes[n.QualifiedName] = n
	return nil
}

// InsertEdge adds a directed edge. Endpoints need not already exist (the
// parser adapter may discover edges before targets, e.g. calls to functions
// in files not yet processed); callers needing strict endpoint validation
// should check GetNode first.
func (s *Store) InsertEdge(e Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return rerrors.NewGraphWriteError("cannot insert edge into frozen graph", fmt.Sprintf("%s -%s-> %s", e.From, e.Kind, e.To), nil)
	}
	s.outEdges[e.From] = append(s.outEdges[e.From], e)
	s.inEdges[e.To] = append(s.inEdges[e.To], e)
	return nil
}

// GetNode returns the node for a qualified name, if present.
func (s *Store) GetNode(qn QualifiedName) (*CodeNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[qn]
	return n, ok
}

func (s *Store) nodesOfKind(kind NodeKind) []*CodeNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*CodeNode, 0)
	for _, qn := range s.order {
		if n := s.nodes[qn]; n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// GetFunctions returns all Function nodes in deterministic insertion order.
func (s *Store) GetFunctions() []*CodeNode { return s.nodesOfKind(KindFunction) }

// GetClasses returns all Class nodes in deterministic insertion order.
func (s *Store) GetClasses() []*CodeNode { return s.nodesOfKind(KindClass) }

// GetFiles returns all File nodes in deterministic insertion order.
func (s *Store) GetFiles() []*CodeNode { return s.nodesOfKind(KindFile) }

// AllNodes returns every node in deterministic insertion order.
func (s *Store) AllNodes() []*CodeNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*CodeNode, 0, len(s.order))
	for _, qn := range s.order {
		out = append(out, s.nodes[qn])
	}
	return out
}

// AllEdges returns every edge in the store in a deterministic order (sorted
// by From, Kind, To), used by callers that need a stable hash of the graph.
func (s *Store) AllEdges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Edge, 0)
	for _, edges := range s.outEdges {
		out = append(out, edges...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].To < out[j].To
	})
	return out
}

func dedupeNodes(s *Store, qns []QualifiedName) []*CodeNode {
	seen := make(map[QualifiedName]bool, len(qns))
	out := make([]*CodeNode, 0, len(qns))
	for _, qn := range qns {
		if seen[qn] {
			continue
		}
		seen[qn] = true
		if n, ok := s.nodes[qn]; ok {
			out = append(out, n)
		}
	}
	return out
}

func (s *Store) edgesOfKind(qn QualifiedName, kind EdgeKind, outgoing bool) []QualifiedName {
	var edges []Edge
	if outgoing {
		edges = s.outEdges[qn]
	} else {
		edges = s.inEdges[qn]
	}
	out := make([]QualifiedName, 0, len(edges))
	for _, e := range edges {
		if e.Kind != kind {
			continue
		}
		if outgoing {
			out = append(out, e.To)
		} else {
			out = append(out, e.From)
		}
	}
	return out
}

// GetCallers returns distinct functions that call qn.
func (s *Store) GetCallers(qn QualifiedName) []*CodeNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dedupeNodes(s, s.edgesOfKind(qn, EdgeCalls, false))
}

// GetCallees returns distinct functions called by qn.
func (s *Store) GetCallees(qn QualifiedName) []*CodeNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dedupeNodes(s, s.edgesOfKind(qn, EdgeCalls, true))
}

// InheritanceEdge is a (child, parent) pair derived from an INHERITS edge.
type InheritanceEdge struct {
	Child  QualifiedName
	Parent QualifiedName
}

// GetInheritance returns every INHERITS edge in the graph.
func (s *Store) GetInheritance() []InheritanceEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]InheritanceEdge, 0)
	for _, edges := range s.outEdges {
		for _, e := range edges {
			if e.Kind == EdgeInherits {
				out = append(out, InheritanceEdge{Child: e.From, Parent: e.To})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Child != out[j].Child {
			return out[i].Child < out[j].Child
		}
		return out[i].Parent < out[j].Parent
	})
	return out
}

// GetImports returns every IMPORTS edge in the graph, as (importer, imported)
// pairs, used by the circular-dependency detector to build the file-level
// import graph.
func (s *Store) GetImports() []InheritanceEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]InheritanceEdge, 0)
	for _, edges := range s.outEdges {
		for _, e := range edges {
			if e.Kind == EdgeImports {
				out = append(out, InheritanceEdge{Child: e.From, Parent: e.To})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Child != out[j].Child {
			return out[i].Child < out[j].Child
		}
		return out[i].Parent < out[j].Parent
	})
	return out
}

// GetContained returns the nodes directly contained by qn (e.g. a class's
// methods, or a file's top-level functions/classes).
func (s *Store) GetContained(qn QualifiedName) []*CodeNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dedupeNodes(s, s.edgesOfKind(qn, EdgeContains, true))
}

// GetContainer returns the node that contains qn, if any.
func (s *Store) GetContainer(qn QualifiedName) (*CodeNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parents := s.edgesOfKind(qn, EdgeContains, false)
	if len(parents) == 0 {
		return nil, false
	}
	n, ok := s.nodes[parents[0]]
	return n, ok
}

// Stats summarizes the graph's current size.
type Stats struct {
	NumNodes int
	NumEdges int
}

// Stats returns basic size counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edges := 0
	for _, e := range s.outEdges {
		edges += len(e)
	}
	return Stats{NumNodes: len(s.nodes), NumEdges: edges}
}
