// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graph

import "testing"

func buildClassGraph(t *testing.T) *Store {
	t.Helper()
	s := NewStore()

	file := NewQualifiedName("shapes.go", "<file>")
	_ = s.InsertNode(&CodeNode{QualifiedName: file, Kind: KindFile})

	animal := NewQualifiedName("shapes.go", "Animal")
	dog := NewQualifiedName("shapes.go", "Dog")
	_ = s.InsertNode(&CodeNode{QualifiedName: animal, Kind: KindClass, LineStart: 1, LineEnd: 50})
	_ = s.InsertNode(&CodeNode{QualifiedName: dog, Kind: KindClass, LineStart: 51, LineEnd: 150})
	_ = s.InsertEdge(Edge{From: file, To: animal, Kind: EdgeContains})
	_ = s.InsertEdge(Edge{From: file, To: dog, Kind: EdgeContains})
	_ = s.InsertEdge(Edge{From: dog, To: animal, Kind: EdgeInherits})

	speak := NewQualifiedName("shapes.go", "Animal.Speak")
	bark := NewQualifiedName("shapes.go", "Dog.Bark")
	helper := NewQualifiedName("shapes.go", "helper")
	_ = s.InsertNode(&CodeNode{QualifiedName: speak, Kind: KindFunction, LineStart: 2, LineEnd: 10, Properties: map[string]any{"complexity": 3.0}})
	_ = s.InsertNode(&CodeNode{QualifiedName: bark, Kind: KindFunction, LineStart: 52, LineEnd: 60, Properties: map[string]any{"complexity": 12.0}})
	_ = s.InsertNode(&CodeNode{QualifiedName: helper, Kind: KindFunction, LineStart: 200, LineEnd: 210})
	_ = s.InsertEdge(Edge{From: animal, To: speak, Kind: EdgeContains})
	_ = s.InsertEdge(Edge{From: dog, To: bark, Kind: EdgeContains})
	_ = s.InsertEdge(Edge{From: bark, To: speak, Kind: EdgeCalls})
	_ = s.InsertEdge(Edge{From: helper, To: bark, Kind: EdgeCalls})

	return s
}

func TestQueryCachePrefetchIdempotent(t *testing.T) {
	s := buildClassGraph(t)
	qc := NewQueryCache(s)
	qc.Prefetch()
	qc.Prefetch()
	if qc.TotalFunctions() != 3 {
		t.Fatalf("TotalFunctions = %d, want 3", qc.TotalFunctions())
	}
	if qc.TotalClasses() != 2 {
		t.Fatalf("TotalClasses = %d, want 2", qc.TotalClasses())
	}
}

func TestQueryCacheClassOwnerAndInheritance(t *testing.T) {
	s := buildClassGraph(t)
	qc := NewQueryCache(s)
	qc.Prefetch()

	bark := NewQualifiedName("shapes.go", "Dog.Bark")
	fd, ok := qc.GetFunction(bark)
	if !ok || fd.ClassOwner != NewQualifiedName("shapes.go", "Dog") {
		t.Fatalf("GetFunction(bark).ClassOwner = %v, %v", fd, ok)
	}

	dog, ok := qc.GetClass(NewQualifiedName("shapes.go", "Dog"))
	if !ok {
		t.Fatal("expected Dog class")
	}
	if len(dog.Parents) != 1 || dog.Parents[0] != NewQualifiedName("shapes.go", "Animal") {
		t.Errorf("Dog.Parents = %v", dog.Parents)
	}
	if len(dog.Methods) != 1 {
		t.Errorf("Dog.Methods = %v", dog.Methods)
	}
}

func TestQueryCacheUsers(t *testing.T) {
	s := buildClassGraph(t)
	qc := NewQueryCache(s)
	qc.Prefetch()

	animal, ok := qc.GetClass(NewQualifiedName("shapes.go", "Animal"))
	if !ok {
		t.Fatal("expected Animal class")
	}
	if len(animal.Users) != 1 || animal.Users[0] != NewQualifiedName("shapes.go", "Dog") {
		t.Errorf("Animal.Users = %v, want [Dog]", animal.Users)
	}
}

func TestQueryCacheFileView(t *testing.T) {
	s := buildClassGraph(t)
	qc := NewQueryCache(s)
	qc.Prefetch()

	fd, ok := qc.GetFile(NewQualifiedName("shapes.go", "<file>"))
	if !ok {
		t.Fatal("expected file data")
	}
	if len(fd.Classes) != 2 {
		t.Errorf("file.Classes = %v", fd.Classes)
	}
}

func TestQueryCacheHighComplexityAndHub(t *testing.T) {
	s := buildClassGraph(t)
	qc := NewQueryCache(s)
	qc.Prefetch()

	high := qc.GetHighComplexityFunctions(10)
	if len(high) != 1 || high[0].Node.QualifiedName != NewQualifiedName("shapes.go", "Dog.Bark") {
		t.Errorf("GetHighComplexityFunctions = %v", high)
	}

	hubs := qc.GetHubFunctions(1, 1)
	if len(hubs) != 1 || hubs[0].Node.QualifiedName != NewQualifiedName("shapes.go", "Dog.Bark") {
		t.Errorf("GetHubFunctions = %v", hubs)
	}
}

func TestQueryCacheGodClasses(t *testing.T) {
	s := buildClassGraph(t)
	qc := NewQueryCache(s)
	qc.Prefetch()

	gods := qc.GetGodClasses(1, 50)
	if len(gods) != 2 {
		t.Errorf("GetGodClasses(1,50) = %d, want 2", len(gods))
	}
	gods = qc.GetGodClasses(1, 200)
	if len(gods) != 0 {
		t.Errorf("GetGodClasses(1,200) = %d, want 0", len(gods))
	}
}
