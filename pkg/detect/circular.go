// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/repotoire/pkg/finding"
	"github.com/kraklabs/repotoire/pkg/graph"
	"github.com/kraklabs/repotoire/pkg/walk"
)

// CircularDependencyDetector finds cycles in the file-level import graph.
type CircularDependencyDetector struct {
	config DetectorConfig
}

// NewCircularDependencyDetector constructs the detector with the given config.
func NewCircularDependencyDetector(config DetectorConfig) *CircularDependencyDetector {
	return &CircularDependencyDetector{config: config}
}

func (d *CircularDependencyDetector) Name() string { return "CircularDependencyDetector" }
func (d *CircularDependencyDetector) Description() string {
	return "Finds cycles in the file-level import graph"
}
func (d *CircularDependencyDetector) Category() string      { return "circular_dependency" }
func (d *CircularDependencyDetector) Config() DetectorConfig { return d.config }
func (d *CircularDependencyDetector) Scope() DetectorScope  { return ScopeWholeGraph }

// findCycles runs a DFS over the file import graph and returns every
// distinct simple cycle discovered, represented as an ordered list of
// qualified names (first == last).
func findCycles(graphEdges map[graph.QualifiedName][]graph.QualifiedName) [][]graph.QualifiedName {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[graph.QualifiedName]int)
	var stack []graph.QualifiedName
	var cycles [][]graph.QualifiedName
	seenCycles := make(map[string]bool)

	var roots []graph.QualifiedName
	for qn := range graphEdges {
		roots = append(roots, qn)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	var visit func(qn graph.QualifiedName)
	visit = func(qn graph.QualifiedName) {
		color[qn] = gray
		stack = append(stack, qn)

		neighbors := append([]graph.QualifiedName(nil), graphEdges[qn]...)
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
		for _, next := range neighbors {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				cycleStart := -1
				for i, n := range stack {
					if n == next {
						cycleStart = i
						break
					}
				}
				if cycleStart >= 0 {
					cycle := append([]graph.QualifiedName(nil), stack[cycleStart:]...)
					cycle = append(cycle, next)
					key := cycleKey(cycle)
					if !seenCycles[key] {
						seenCycles[key] = true
						cycles = append(cycles, cycle)
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[qn] = black
	}

	for _, qn := range roots {
		if color[qn] == white {
			visit(qn)
		}
	}
	return cycles
}

func cycleKey(cycle []graph.QualifiedName) string {
	members := append([]graph.QualifiedName(nil), cycle[:len(cycle)-1]...)
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = string(m)
	}
	return strings.Join(parts, "|")
}

func (d *CircularDependencyDetector) Detect(ctx context.Context, qc *graph.QueryCache, files []string) ([]finding.Finding, error) {
	graphEdges := make(map[graph.QualifiedName][]graph.QualifiedName)
	fileByQN := make(map[graph.QualifiedName]*graph.FileData)

	allFiles := collectFileData(qc)
	for _, fd := range allFiles {
		fileByQN[fd.Node.QualifiedName] = fd
		graphEdges[fd.Node.QualifiedName] = fd.Imports
	}

	cycles := findCycles(graphEdges)

	var out []finding.Finding
	for _, cycle := range cycles {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		if len(cycle) < 3 { // self-import isn't a meaningful cycle
			continue
		}

		var names []string
		var affected []string
		for _, qn := range cycle[:len(cycle)-1] {
			fd := fileByQN[qn]
			if fd == nil {
				continue
			}
			names = append(names, fd.Node.FilePath)
			affected = append(affected, fd.Node.FilePath)
		}
		if len(names) == 0 {
			continue
		}

		severity := finding.Medium
		if len(names) >= 4 {
			severity = finding.High
		}

		description := fmt.Sprintf(
			"Circular import dependency detected among %d files: %s. Cyclic imports make initialization order fragile and prevent any one file from being understood or tested in isolation.",
			len(names), strings.Join(names, " -> "),
		)

		f := finding.Finding{
			ID:            DeterministicID(d.Name(), names[0], 0, strings.Join(names, "|")),
			Detector:      d.Name(),
			Severity:      severity,
			Title:         fmt.Sprintf("Circular dependency among %d files", len(names)),
			Description:   description,
			AffectedFiles: affected,
			Category:      "circular_dependency",
			SuggestedFix:  "Break the cycle by extracting the shared interface/types into a separate file that the others depend on one-directionally.",
			WhyItMatters:  "Circular dependencies couple modules together tightly, preventing independent testing, reuse, and safe refactoring.",
			Confidence:    0.8,
		}
		ApplyPathDowngrade(&f, walk.ClassifyPath(names[0]))
		out = append(out, f)
	}

	return out, nil
}

func collectFileData(qc *graph.QueryCache) []*graph.FileData {
	var out []*graph.FileData
	seen := make(map[graph.QualifiedName]bool)
	for _, fd := range qc.AllFunctions() {
		fileQN := graph.NewQualifiedName(fd.Node.FilePath, "<file>")
		if file, ok := qc.GetFile(fileQN); ok && !seen[fileQN] {
			seen[fileQN] = true
			out = append(out, file)
		}
	}
	for _, cd := range qc.AllClasses() {
		fileQN := graph.NewQualifiedName(cd.Node.FilePath, "<file>")
		if file, ok := qc.GetFile(fileQN); ok && !seen[fileQN] {
			seen[fileQN] = true
			out = append(out, file)
		}
	}
	return out
}
