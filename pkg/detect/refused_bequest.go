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

const (
	refusedBequestMinRefusals      = 2
	refusedBequestMinParentMethods = 3
	potentialRefusalMaxComplexity  = 2.0
	potentialRefusalMaxLOC         = 5
)

var abstractNamePatterns = []string{"Abstract", "Base", "Interface", "ABC", "Protocol"}

func isAbstractParentName(name string) bool {
	for _, p := range abstractNamePatterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return strings.HasSuffix(name, "Mixin")
}

// RefusedBequestDetector flags subclasses that inherit a concrete parent's
// interface but use almost none of its behavior — the child overrides
// everything with thin, near-empty methods instead of building on it.
type RefusedBequestDetector struct {
	config DetectorConfig
}

// NewRefusedBequestDetector constructs the detector with the given config.
func NewRefusedBequestDetector(config DetectorConfig) *RefusedBequestDetector {
	return &RefusedBequestDetector{config: config}
}

func (d *RefusedBequestDetector) Name() string { return "refused_bequest" }

func (d *RefusedBequestDetector) Description() string {
	return "Detects subclasses that inherit a concrete parent's interface but refuse most of its behavior"
}

func (d *RefusedBequestDetector) Category() string        { return "inheritance" }
func (d *RefusedBequestDetector) Config() DetectorConfig   { return d.config }
func (d *RefusedBequestDetector) Scope() DetectorScope     { return ScopeWholeGraph }

type inheritanceEdge struct {
	Child  graph.QualifiedName
	Parent graph.QualifiedName
}

func inheritanceEdges(qc *graph.QueryCache) []inheritanceEdge {
	var out []inheritanceEdge
	for _, cd := range qc.AllClasses() {
		for _, p := range cd.Parents {
			out = append(out, inheritanceEdge{Child: cd.Node.QualifiedName, Parent: p})
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

// inheritanceDepths returns, for every class, the length of its deepest
// inheritance chain (a root class with no parents has depth 1).
func inheritanceDepths(qc *graph.QueryCache) map[graph.QualifiedName]int {
	memo := make(map[graph.QualifiedName]int)
	var depthOf func(qn graph.QualifiedName, onPath map[graph.QualifiedName]bool) int
	depthOf = func(qn graph.QualifiedName, onPath map[graph.QualifiedName]bool) int {
		if d, ok := memo[qn]; ok {
			return d
		}
		if onPath[qn] {
			return 1 // inheritance cycle; don't recurse forever
		}
		cd, ok := qc.GetClass(qn)
		if !ok || len(cd.Parents) == 0 {
			memo[qn] = 1
			return 1
		}
		onPath[qn] = true
		best := 0
		for _, p := range cd.Parents {
			if pd := depthOf(p, onPath); pd > best {
				best = pd
			}
		}
		delete(onPath, qn)
		memo[qn] = best + 1
		return memo[qn]
	}
	for _, cd := range qc.AllClasses() {
		depthOf(cd.Node.QualifiedName, make(map[graph.QualifiedName]bool))
	}
	return memo
}

func classCallers(qc *graph.QueryCache, cd *graph.ClassData) map[graph.QualifiedName]bool {
	callers := make(map[graph.QualifiedName]bool)
	for _, m := range cd.Methods {
		fd, ok := qc.GetFunction(m)
		if !ok {
			continue
		}
		for _, c := range fd.CalledBy {
			callers[c] = true
		}
	}
	return callers
}

func isUsedPolymorphically(childCallers, parentCallers map[graph.QualifiedName]bool) bool {
	for c := range childCallers {
		if parentCallers[c] {
			return true
		}
	}
	return false
}

func hasDivergentCallers(childCallers, parentCallers map[graph.QualifiedName]bool) bool {
	diff := 0
	for c := range childCallers {
		if !parentCallers[c] {
			diff++
		}
	}
	for c := range parentCallers {
		if !childCallers[c] {
			diff++
		}
	}
	return diff >= 2
}

func (d *RefusedBequestDetector) Detect(ctx context.Context, qc *graph.QueryCache, files []string) ([]finding.Finding, error) {
	var out []finding.Finding
	depth := inheritanceDepths(qc)

	for _, edge := range inheritanceEdges(qc) {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		parent, ok := qc.GetClass(edge.Parent)
		if !ok || isAbstractParentName(parent.Node.Name) {
			continue
		}
		if len(parent.Methods) < refusedBequestMinParentMethods {
			continue
		}
		child, ok := qc.GetClass(edge.Child)
		if !ok {
			continue
		}

		refusals := 0
		for _, m := range child.Methods {
			fd, ok := qc.GetFunction(m)
			if !ok {
				continue
			}
			loc := fd.Node.LineEnd - fd.Node.LineStart + 1
			if fd.Node.PropFloat("complexity", 0) <= potentialRefusalMaxComplexity && loc <= potentialRefusalMaxLOC {
				refusals++
			}
		}
		if refusals < refusedBequestMinRefusals {
			continue
		}

		childCallers := classCallers(qc, child)
		parentCallers := classCallers(qc, parent)
		polymorphic := isUsedPolymorphically(childCallers, parentCallers)
		divergent := hasDivergentCallers(childCallers, parentCallers)
		childDepth := depth[edge.Child]
		deepChain := childDepth >= 3

		severity := finding.Low
		switch {
		case polymorphic && divergent:
			severity = finding.High
		case polymorphic || divergent:
			severity = finding.Medium
		}
		if deepChain && severity == finding.Low {
			severity = finding.Medium
		}

		description := fmt.Sprintf(
			"%s inherits from %s but %d of its %d methods are thin refusals (complexity <= %.0f, LOC <= %d) that neither extend nor meaningfully use the parent's behavior.",
			child.Node.Name, parent.Node.Name, refusals, len(child.Methods), float64(potentialRefusalMaxComplexity), potentialRefusalMaxLOC,
		)

		var notes []string
		if polymorphic {
			notes = append(notes, "Used polymorphically (through parent type)")
		}
		if divergent {
			notes = append(notes, "Callers use it differently than parent")
		}
		if childDepth >= 2 {
			notes = append(notes, fmt.Sprintf("Inheritance depth: %d", childDepth))
		}
		if len(notes) > 0 {
			description += "\n\nGraph analysis:\n" + strings.Join(notes, "\n")
		}

		f := finding.Finding{
			ID:            DeterministicID(d.Name(), child.Node.FilePath, child.Node.LineStart, description),
			Detector:      d.Name(),
			Severity:      severity,
			Title:         fmt.Sprintf("%s refuses %s's bequest", child.Node.Name, parent.Node.Name),
			Description:   description,
			AffectedFiles: []string{child.Node.FilePath},
			LineStart:     child.Node.LineStart,
			LineEnd:       child.Node.LineEnd,
			SuggestedFix:  fmt.Sprintf("Favor composition: have %s hold a %s rather than inherit from it, or narrow the base class to the interface %s actually uses.", child.Node.Name, parent.Node.Name, child.Node.Name),
			Category:      "inheritance",
			Confidence:    0.7,
			ThresholdMeta: map[string]string{
				"inheritance_depth":     fmt.Sprintf("%d", childDepth),
				"is_polymorphic":        fmt.Sprintf("%t", polymorphic),
				"has_divergent_callers": fmt.Sprintf("%t", divergent),
			},
		}
		ApplyPathDowngrade(&f, walk.ClassifyPath(child.Node.FilePath))
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
