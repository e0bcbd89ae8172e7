// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graph

import "testing"

func TestInsertAndGetNode(t *testing.T) {
	s := NewStore()
	qn := NewQualifiedName("main.go", "main")
	if err := s.InsertNode(&CodeNode{QualifiedName: qn, Name: "main", Kind: KindFunction, LineStart: 1, LineEnd: 5}); err != nil {
		t.Fatalf("InsertNode: %v", err)
	}
	n, ok := s.GetNode(qn)
	if !ok || n.Name != "main" {
		t.Fatalf("GetNode = %v, %v", n, ok)
	}
}

func TestInsertNodeInvalidSpan(t *testing.T) {
	s := NewStore()
	err := s.InsertNode(&CodeNode{QualifiedName: "x", LineStart: 10, LineEnd: 5})
	if err == nil {
		t.Fatal("expected error for invalid span")
	}
}

func TestFrozenStoreRejectsWrites(t *testing.T) {
	s := NewStore()
	s.Freeze()
	if err := s.InsertNode(&CodeNode{QualifiedName: "x"}); err == nil {
		t.Fatal("expected error inserting into frozen store")
	}
	if err := s.InsertEdge(Edge{From: "a", To: "b", Kind: EdgeCalls}); err == nil {
		t.Fatal("expected error inserting edge into frozen store")
	}
}

func TestCallersAndCallees(t *testing.T) {
	s := NewStore()
	a := NewQualifiedName("a.go", "A")
	b := NewQualifiedName("b.go", "B")
	_ = s.InsertNode(&CodeNode{QualifiedName: a, Kind: KindFunction})
	_ = s.InsertNode(&CodeNode{QualifiedName: b, Kind: KindFunction})
	_ = s.InsertEdge(Edge{From: a, To: b, Kind: EdgeCalls})
	_ = s.InsertEdge(Edge{From: a, To: b, Kind: EdgeCalls}) // duplicate, should dedupe

	callees := s.GetCallees(a)
	if len(callees) != 1 {
		t.Fatalf("GetCallees dedup failed, got %d", len(callees))
	}
	callers := s.GetCallers(b)
	if len(callers) != 1 || callers[0].QualifiedName != a {
		t.Fatalf("GetCallers = %v", callers)
	}
}

func TestGetInheritance(t *testing.T) {
	s := NewStore()
	child := NewQualifiedName("f.go", "Penguin")
	parent := NewQualifiedName("f.go", "Bird")
	_ = s.InsertNode(&CodeNode{QualifiedName: child, Kind: KindClass})
	_ = s.InsertNode(&CodeNode{QualifiedName: parent, Kind: KindClass})
	_ = s.InsertEdge(Edge{From: child, To: parent, Kind: EdgeInherits})

	inh := s.GetInheritance()
	if len(inh) != 1 || inh[0].Child != child || inh[0].Parent != parent {
		t.Fatalf("GetInheritance = %v", inh)
	}
}

func TestContainsRelationship(t *testing.T) {
	s := NewStore()
	file := NewQualifiedName("f.go", "<file>")
	fn := NewQualifiedName("f.go", "helper")
	_ = s.InsertNode(&CodeNode{QualifiedName: file, Kind: KindFile})
	_ = s.InsertNode(&CodeNode{QualifiedName: fn, Kind: KindFunction})
	_ = s.InsertEdge(Edge{From: file, To: fn, Kind: EdgeContains})

	contained := s.GetContained(file)
	if len(contained) != 1 || contained[0].QualifiedName != fn {
		t.Fatalf("GetContained = %v", contained)
	}
	container, ok := s.GetContainer(fn)
	if !ok || container.QualifiedName != file {
		t.Fatalf("GetContainer = %v, %v", container, ok)
	}
}
