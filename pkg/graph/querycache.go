// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graph

import "sync"

// FunctionData is the denormalized per-function view used by detectors.
type FunctionData struct {
	Node       *CodeNode
	Calls      []QualifiedName
	CalledBy   []QualifiedName
	ClassOwner QualifiedName // empty if a free function
}

// ClassData is the denormalized per-class view used by detectors.
type ClassData struct {
	Node    *CodeNode
	Methods []QualifiedName
	Parents []QualifiedName
	Users   []QualifiedName // classes whose methods call a method of this class
}

// FileData is the denormalized per-file view used by detectors.
type FileData struct {
	Node      *CodeNode
	Functions []QualifiedName
	Classes   []QualifiedName
	Imports   []QualifiedName // files this file imports
}

// QueryCache is a one-shot, eagerly-populated denormalized index over a
// Store. After Prefetch, every lookup is O(1) or O(k) in result size and the
// cache never touches the underlying store again. Safe for concurrent readers
// once prefetched.
type QueryCache struct {
	store *Store

	once sync.Once

	functions map[QualifiedName]*FunctionData
	classes   map[QualifiedName]*ClassData
	files     map[QualifiedName]*FileData

	totalFunctions int
	totalClasses   int
	totalLOC       int
}

// NewQueryCache creates an (unpopulated) cache over store.
func NewQueryCache(store *Store) *QueryCache {
	return &QueryCache{store: store}
}

// Prefetch populates the cache from the store. Idempotent: subsequent calls
// are no-ops.
func (c *QueryCache) Prefetch() {
	c.once.Do(func() {
		c.functions = make(map[QualifiedName]*FunctionData)
		c.classes = make(map[QualifiedName]*ClassData)
		c.files = make(map[QualifiedName]*FileData)

		for _, n := range c.store.GetFunctions() {
			c.functions[n.QualifiedName] = &FunctionData{
				Node:     n,
				Calls:    qnsOf(c.store.GetCallees(n.QualifiedName)),
				CalledBy: qnsOf(c.store.GetCallers(n.QualifiedName)),
			}
			c.totalLOC += n.LineEnd - n.LineStart + 1
		}
		c.totalFunctions = len(c.functions)

		for _, n := range c.store.GetClasses() {
			cd := &ClassData{Node: n}
			for _, m := range c.store.GetContained(n.QualifiedName) {
				if m.Kind == KindFunction {
					cd.Methods = append(cd.Methods, m.QualifiedName)
					if fd, ok := c.functions[m.QualifiedName]; ok {
						fd.ClassOwner = n.QualifiedName
					}
				}
			}
			c.classes[n.QualifiedName] = cd
		}
		c.totalClasses = len(c.classes)

		for _, e := range c.store.GetInheritance() {
			if cd, ok := c.classes[e.Child]; ok {
				cd.Parents = append(cd.Parents, e.Parent)
			}
		}

		// Usage: class A "uses" class B if some method of A calls some method of B.
		for qn, cd := range c.classes {
			seen := make(map[QualifiedName]bool)
			for _, m := range cd.Methods {
				fd := c.functions[m]
				if fd == nil {
					continue
				}
				for _, callee := range fd.Calls {
					calleeFn := c.functions[callee]
					if calleeFn == nil || calleeFn.ClassOwner == "" || calleeFn.ClassOwner == qn {
						continue
					}
					if !seen[calleeFn.ClassOwner] {
						seen[calleeFn.ClassOwner] = true
						if target := c.classes[calleeFn.ClassOwner]; target != nil {
							target.Users = append(target.Users, qn)
						}
					}
				}
			}
		}

		for _, n := range c.store.GetFiles() {
			fd := &FileData{Node: n}
			for _, child := range c.store.GetContained(n.QualifiedName) {
				switch child.Kind {
				case KindFunction:
					fd.Functions = append(fd.Functions, child.QualifiedName)
				case KindClass:
					fd.Classes = append(fd.Classes, child.QualifiedName)
				}
			}
			c.files[n.QualifiedName] = fd
		}

		for _, e := range c.store.GetImports() {
			if fd, ok := c.files[e.Child]; ok {
				fd.Imports = append(fd.Imports, e.Parent)
			}
		}
	})
}

func qnsOf(nodes []*CodeNode) []QualifiedName {
	out := make([]QualifiedName, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.QualifiedName)
	}
	return out
}

// GetFunction returns the prefetched FunctionData for qn.
func (c *QueryCache) GetFunction(qn QualifiedName) (*FunctionData, bool) {
	fd, ok := c.functions[qn]
	return fd, ok
}

// GetClass returns the prefetched ClassData for qn.
func (c *QueryCache) GetClass(qn QualifiedName) (*ClassData, bool) {
	cd, ok := c.classes[qn]
	return cd, ok
}

// GetFile returns the prefetched FileData for qn.
func (c *QueryCache) GetFile(qn QualifiedName) (*FileData, bool) {
	fd, ok := c.files[qn]
	return fd, ok
}

// AllClasses returns every prefetched ClassData.
func (c *QueryCache) AllClasses() []*ClassData {
	out := make([]*ClassData, 0, len(c.classes))
	for _, cd := range c.classes {
		out = append(out, cd)
	}
	return out
}

// AllFunctions returns every prefetched FunctionData.
func (c *QueryCache) AllFunctions() []*FunctionData {
	out := make([]*FunctionData, 0, len(c.functions))
	for _, fd := range c.functions {
		out = append(out, fd)
	}
	return out
}

// GetHighComplexityFunctions returns functions whose complexity property
// meets or exceeds threshold.
func (c *QueryCache) GetHighComplexityFunctions(threshold float64) []*FunctionData {
	out := make([]*FunctionData, 0)
	for _, fd := range c.functions {
		if fd.Node.PropFloat("complexity", 0) >= threshold {
			out = append(out, fd)
		}
	}
	return out
}

// GetGodClasses returns classes with at least minMethods methods and at
// least minLOC lines of code.
func (c *QueryCache) GetGodClasses(minMethods int, minLOC int) []*ClassData {
	out := make([]*ClassData, 0)
	for _, cd := range c.classes {
		loc := cd.Node.LineEnd - cd.Node.LineStart + 1
		if len(cd.Methods) >= minMethods && loc >= minLOC {
			out = append(out, cd)
		}
	}
	return out
}

// GetHubFunctions returns functions whose fan-in and fan-out both exceed the
// given thresholds — structural "hub" candidates for bottleneck detection.
func (c *QueryCache) GetHubFunctions(minIn, minOut int) []*FunctionData {
	out := make([]*FunctionData, 0)
	for _, fd := range c.functions {
		if len(fd.CalledBy) >= minIn && len(fd.Calls) >= minOut {
			out = append(out, fd)
		}
	}
	return out
}

// TotalFunctions returns the number of functions seen at prefetch time.
func (c *QueryCache) TotalFunctions() int { return c.totalFunctions }

// TotalClasses returns the number of classes seen at prefetch time.
func (c *QueryCache) TotalClasses() int { return c.totalClasses }

// TotalLOC returns the sum of function LOC seen at prefetch time.
func (c *QueryCache) TotalLOC() int { return c.totalLOC }
