// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package testing provides fixture helpers for building small graph.Store
// instances in unit tests without going through the parser adapter.
package testing

import (
	"testing"

	"github.com/kraklabs/repotoire/pkg/graph"
)

// NewTestStore creates an empty, unfrozen graph store for a test.
func NewTestStore(t *testing.T) *graph.Store {
	t.Helper()
	return graph.NewStore()
}

// InsertTestFile adds a File node.
func InsertTestFile(t *testing.T, s *graph.Store, path string, loc int) graph.QualifiedName {
	t.Helper()
	qn := graph.NewQualifiedName(path, "<file>")
	err := s.InsertNode(&graph.CodeNode{
		QualifiedName: qn,
		Name:          path,
		FilePath:      path,
		Kind:          graph.KindFile,
		Properties:    map[string]any{"loc": loc},
	})
	if err != nil {
		t.Fatalf("InsertTestFile: %v", err)
	}
	return qn
}

// InsertTestFunction adds a Function node with the given complexity/LOC and
// ties it to its containing file with a CONTAINS edge.
func InsertTestFunction(t *testing.T, s *graph.Store, filePath, name string, startLine, endLine int, complexity float64) graph.QualifiedName {
	t.Helper()
	qn := graph.NewQualifiedName(filePath, name)
	err := s.InsertNode(&graph.CodeNode{
		QualifiedName: qn,
		Name:          name,
		FilePath:      filePath,
		LineStart:     startLine,
		LineEnd:       endLine,
		Kind:          graph.KindFunction,
		Properties: map[string]any{
			"complexity": complexity,
			"loc":        endLine - startLine + 1,
		},
	})
	if err != nil {
		t.Fatalf("InsertTestFunction: %v", err)
	}
	fileQN := graph.NewQualifiedName(filePath, "<file>")
	if _, ok := s.GetNode(fileQN); ok {
		_ = s.InsertEdge(graph.Edge{From: fileQN, To: qn, Kind: graph.EdgeContains})
	}
	return qn
}

// InsertTestClass adds a Class node, contained by its file.
func InsertTestClass(t *testing.T, s *graph.Store, filePath, name string, startLine, endLine int) graph.QualifiedName {
	t.Helper()
	qn := graph.NewQualifiedName(filePath, name)
	err := s.InsertNode(&graph.CodeNode{
		QualifiedName: qn,
		Name:          name,
		FilePath:      filePath,
		LineStart:     startLine,
		LineEnd:       endLine,
		Kind:          graph.KindClass,
	})
	if err != nil {
		t.Fatalf("InsertTestClass: %v", err)
	}
	fileQN := graph.NewQualifiedName(filePath, "<file>")
	if _, ok := s.GetNode(fileQN); ok {
		_ = s.InsertEdge(graph.Edge{From: fileQN, To: qn, Kind: graph.EdgeContains})
	}
	return qn
}

// InsertTestMethod adds a Function node contained by a class (rather than a file).
func InsertTestMethod(t *testing.T, s *graph.Store, classQN graph.QualifiedName, filePath, name string, startLine, endLine int, complexity float64) graph.QualifiedName {
	t.Helper()
	qn := graph.NewQualifiedName(filePath, string(classQN)+"."+name)
	err := s.InsertNode(&graph.CodeNode{
		QualifiedName: qn,
		Name:          name,
		FilePath:      filePath,
		LineStart:     startLine,
		LineEnd:       endLine,
		Kind:          graph.KindFunction,
		Properties: map[string]any{
			"complexity": complexity,
			"loc":        endLine - startLine + 1,
		},
	})
	if err != nil {
		t.Fatalf("InsertTestMethod: %v", err)
	}
	_ = s.InsertEdge(graph.Edge{From: classQN, To: qn, Kind: graph.EdgeContains})
	return qn
}

// InsertTestCalls adds a CALLS edge from caller to callee.
func InsertTestCalls(t *testing.T, s *graph.Store, caller, callee graph.QualifiedName) {
	t.Helper()
	if err := s.InsertEdge(graph.Edge{From: caller, To: callee, Kind: graph.EdgeCalls}); err != nil {
		t.Fatalf("InsertTestCalls: %v", err)
	}
}

// InsertTestInherits adds an INHERITS edge from child to parent.
func InsertTestInherits(t *testing.T, s *graph.Store, child, parent graph.QualifiedName) {
	t.Helper()
	if err := s.InsertEdge(graph.Edge{From: child, To: parent, Kind: graph.EdgeInherits}); err != nil {
		t.Fatalf("InsertTestInherits: %v", err)
	}
}
