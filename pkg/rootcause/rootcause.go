// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package rootcause identifies cross-detector root-cause patterns: a god
// class that causes circular dependencies, shotgun surgery, and
// inappropriate intimacy, or a circular dependency that causes
// inappropriate intimacy. Fixing the root cause finding is expected to
// resolve the cascading findings it is linked to.
package rootcause

import (
	"fmt"
	"strings"

	"github.com/kraklabs/repotoire/pkg/finding"
)

const (
	godClassDetector    = "GodClassDetector"
	circularDepDetector = "CircularDependencyDetector"
	featureEnvyDetector = "FeatureEnvyDetector"
	shotgunDetector     = "ShotgunSurgeryDetector"
	intimacyDetector    = "InappropriateIntimacyDetector"
	middleManDetector   = "MiddleManDetector"
)

var relatedDetectors = map[string]bool{
	circularDepDetector: true,
	featureEnvyDetector: true,
	shotgunDetector:     true,
	intimacyDetector:    true,
	middleManDetector:   true,
}

// Analysis records one root-cause finding and the cascading findings it
// explains.
type Analysis struct {
	RootCauseFinding       finding.Finding
	RootCauseType          string
	CascadingFindings      []finding.Finding
	ImpactScore            float64
	EstimatedResolvedCount int
	RefactoringPriority    string
	SuggestedApproach      string
}

// Summary aggregates a completed analysis run.
type Summary struct {
	TotalRootCauses      int
	TotalCascadingIssues int
	RootCausesByType     map[string]int
	AverageImpactScore   float64
	HighPriorityCount    int
}

// Analyzer accumulates root-cause analyses across one Analyze call.
type Analyzer struct {
	analyses []Analysis
}

// New constructs an empty Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Analyze finds god-class and circular-dependency root-cause patterns
// among findings and returns an enriched copy of findings: root-cause
// findings gain a "ROOT CAUSE ANALYSIS" block and their suggested fix is
// replaced with a refactoring approach; cascading findings gain a pointer
// note back to their root cause.
func (a *Analyzer) Analyze(findings []finding.Finding) []finding.Finding {
	if len(findings) == 0 {
		return findings
	}

	byDetector := groupByDetector(findings)
	byFile := groupByFile(findings)

	a.analyzeGodClassCascade(byDetector, byFile)
	a.analyzeCircularDepCauses(byDetector)

	return a.enrichFindings(findings)
}

// Analyses returns every root-cause analysis found by the last Analyze call.
func (a *Analyzer) Analyses() []Analysis {
	return a.analyses
}

// Summary computes aggregate statistics over the last Analyze call.
func (a *Analyzer) Summary() Summary {
	byType := make(map[string]int)
	var totalCascading int
	var impactSum float64
	var highPriority int

	for _, an := range a.analyses {
		byType[an.RootCauseType]++
		totalCascading += len(an.CascadingFindings)
		impactSum += an.ImpactScore
		if an.RefactoringPriority == "HIGH" || an.RefactoringPriority == "CRITICAL" {
			highPriority++
		}
	}

	avg := 0.0
	if len(a.analyses) > 0 {
		avg = impactSum / float64(len(a.analyses))
	}

	return Summary{
		TotalRootCauses:      len(a.analyses),
		TotalCascadingIssues: totalCascading,
		RootCausesByType:     byType,
		AverageImpactScore:   roundTo2(avg),
		HighPriorityCount:    highPriority,
	}
}

func roundTo2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func groupByDetector(findings []finding.Finding) map[string][]finding.Finding {
	grouped := make(map[string][]finding.Finding)
	for _, f := range findings {
		grouped[f.Detector] = append(grouped[f.Detector], f)
	}
	return grouped
}

func groupByFile(findings []finding.Finding) map[string][]finding.Finding {
	grouped := make(map[string][]finding.Finding)
	for _, f := range findings {
		for _, path := range f.AffectedFiles {
			grouped[path] = append(grouped[path], f)
		}
	}
	return grouped
}

func fileSet(f finding.Finding) map[string]bool {
	set := make(map[string]bool, len(f.AffectedFiles))
	for _, p := range f.AffectedFiles {
		set[p] = true
	}
	return set
}

func disjoint(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return false
		}
	}
	return true
}

func (a *Analyzer) analyzeGodClassCascade(byDetector map[string][]finding.Finding, byFile map[string][]finding.Finding) {
	for _, godClass := range byDetector[godClassDetector] {
		var cascading []finding.Finding
		seen := make(map[string]bool)
		addCascading := func(f finding.Finding) {
			if !seen[f.ID] {
				seen[f.ID] = true
				cascading = append(cascading, f)
			}
		}

		godFiles := fileSet(godClass)

		for _, cd := range byDetector[circularDepDetector] {
			if !disjoint(godFiles, fileSet(cd)) {
				addCascading(cd)
			}
		}
		for _, sg := range byDetector[shotgunDetector] {
			if !disjoint(godFiles, fileSet(sg)) {
				addCascading(sg)
			}
		}
		for _, in := range byDetector[intimacyDetector] {
			if !disjoint(godFiles, fileSet(in)) {
				addCascading(in)
			}
		}

		for file := range godFiles {
			for _, f := range byFile[file] {
				if f.ID == godClass.ID || seen[f.ID] {
					continue
				}
				if relatedDetectors[f.Detector] {
					addCascading(f)
				}
			}
		}

		if len(cascading) == 0 {
			continue
		}

		impact := a.calculateImpactScore(godClass, cascading)
		priority := a.calculatePriority(godClass, cascading)

		a.analyses = append(a.analyses, Analysis{
			RootCauseFinding:       godClass,
			RootCauseType:          "god_class",
			CascadingFindings:      cascading,
			ImpactScore:            impact,
			EstimatedResolvedCount: len(cascading) + 1,
			RefactoringPriority:    priority,
			SuggestedApproach:      a.suggestGodClassRefactoring(godClass, cascading),
		})
	}
}

func (a *Analyzer) analyzeCircularDepCauses(byDetector map[string][]finding.Finding) {
	godClassFiles := make(map[string]bool)
	for _, an := range a.analyses {
		if an.RootCauseType != "god_class" {
			continue
		}
		for _, p := range an.RootCauseFinding.AffectedFiles {
			godClassFiles[p] = true
		}
	}

	for _, circDep := range byDetector[circularDepDetector] {
		circFiles := fileSet(circDep)
		if !disjoint(godClassFiles, circFiles) {
			continue
		}

		var cascading []finding.Finding
		for _, in := range byDetector[intimacyDetector] {
			if !disjoint(circFiles, fileSet(in)) {
				cascading = append(cascading, in)
			}
		}

		if len(cascading) == 0 {
			continue
		}

		impact := a.calculateImpactScore(circDep, cascading)
		priority := a.calculatePriority(circDep, cascading)

		a.analyses = append(a.analyses, Analysis{
			RootCauseFinding:       circDep,
			RootCauseType:          "circular_dependency",
			CascadingFindings:      cascading,
			ImpactScore:            impact,
			EstimatedResolvedCount: len(cascading) + 1,
			RefactoringPriority:    priority,
			SuggestedApproach:      a.suggestCircularDepRefactoring(circDep),
		})
	}
}

var impactSeverityScore = map[finding.Severity]float64{
	finding.Critical: 4.0,
	finding.High:     3.0,
	finding.Medium:   2.0,
	finding.Low:      1.0,
	finding.Info:     0.5,
}

func severityScore(s finding.Severity) float64 {
	if v, ok := impactSeverityScore[s]; ok {
		return v
	}
	return 1.0
}

func (a *Analyzer) calculateImpactScore(rootCause finding.Finding, cascading []finding.Finding) float64 {
	base := severityScore(rootCause.Severity)

	var cascadeScore float64
	for _, f := range cascading {
		cascadeScore += severityScore(f.Severity) * 0.5
	}

	countBonus := float64(len(cascading)) * 0.3
	if countBonus > 2.0 {
		countBonus = 2.0
	}

	total := base + cascadeScore + countBonus
	if total > 10.0 {
		total = 10.0
	}
	return total
}

func (a *Analyzer) calculatePriority(rootCause finding.Finding, cascading []finding.Finding) string {
	criticalCount, highCount := 0, 0
	for _, f := range cascading {
		switch f.Severity {
		case finding.Critical:
			criticalCount++
		case finding.High:
			highCount++
		}
	}

	switch {
	case rootCause.Severity == finding.Critical || criticalCount >= 1:
		return "CRITICAL"
	case rootCause.Severity == finding.High || highCount >= 2:
		return "HIGH"
	case len(cascading) >= 3:
		return "HIGH"
	case len(cascading) > 0:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

func classNameFromTitle(title string) string {
	parts := strings.Split(title, ":")
	name := strings.TrimSpace(parts[len(parts)-1])
	if name == "" {
		return "the class"
	}
	return name
}

func (a *Analyzer) suggestGodClassRefactoring(godClass finding.Finding, cascading []finding.Finding) string {
	className := classNameFromTitle(godClass.Title)

	hasCircular, hasShotgun := false, false
	for _, f := range cascading {
		if f.Detector == circularDepDetector {
			hasCircular = true
		}
		if f.Detector == shotgunDetector {
			hasShotgun = true
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ROOT CAUSE: God class '%s' is causing %d cascading issues.\n", className, len(cascading))
	b.WriteString("RECOMMENDED REFACTORING APPROACH:\n")

	step := 1
	if hasCircular {
		fmt.Fprintf(&b, "  %d. Extract interfaces to break circular dependencies\n", step)
		step++
	}

	fmt.Fprintf(&b, "  %d. Split into focused classes by responsibility:\n"+
		"      - Group related methods (look at shared field access)\n"+
		"      - Extract each group into a dedicated class\n", step)
	step++

	if hasShotgun {
		fmt.Fprintf(&b, "  %d. Create a facade to limit external coupling\n", step)
	}

	fmt.Fprintf(&b, "\nEXPECTED RESULT: Fixing '%s' will resolve ~%d related issues.", className, len(cascading))

	return b.String()
}

func (a *Analyzer) suggestCircularDepRefactoring(circDep finding.Finding) string {
	cycleLength := len(circDep.AffectedFiles)

	var b strings.Builder
	b.WriteString("ROOT CAUSE: Circular dependency creating tight coupling.\n")
	b.WriteString("RECOMMENDED REFACTORING APPROACH:\n")

	if cycleLength <= 3 {
		b.WriteString("  1. Consider merging tightly coupled modules\n" +
			"  2. Or extract shared types to a common module\n" +
			"  3. Use lazy/deferred imports for type-only references\n")
	} else {
		b.WriteString("  1. Identify the module with most incoming imports\n" +
			"  2. Extract its dependencies into an interface module\n" +
			"  3. Apply the Dependency Inversion Principle\n" +
			"  4. Consider using dependency injection\n")
	}

	return b.String()
}

func (a *Analyzer) enrichFindings(findings []finding.Finding) []finding.Finding {
	rootCauseByID := make(map[string]Analysis)
	cascadingByID := make(map[string]Analysis)

	for _, an := range a.analyses {
		rootCauseByID[an.RootCauseFinding.ID] = an
		for _, c := range an.CascadingFindings {
			cascadingByID[c.ID] = an
		}
	}

	out := make([]finding.Finding, len(findings))
	for i, f := range findings {
		out[i] = *f.Clone()

		if an, ok := rootCauseByID[f.ID]; ok {
			out[i].Description = fmt.Sprintf(
				"%s\n\nROOT CAUSE ANALYSIS\n- Type: %s\n- Impact Score: %.1f\n- Cascading Issues: %d\n- Priority: %s",
				out[i].Description, an.RootCauseType, an.ImpactScore, len(an.CascadingFindings), an.RefactoringPriority,
			)
			if an.SuggestedApproach != "" {
				out[i].SuggestedFix = an.SuggestedApproach
			}
			continue
		}

		if an, ok := cascadingByID[f.ID]; ok {
			rootName := classNameFromTitle(an.RootCauseFinding.Title)
			var note string
			if an.RootCauseType == "god_class" {
				note = fmt.Sprintf("\n\nROOT CAUSE: This issue is linked to god class '%s'. Fixing the god class may resolve this issue.", rootName)
			} else {
				note = fmt.Sprintf("\n\nROOT CAUSE: This issue is linked to %s. Fixing the root cause may resolve this issue.", strings.ReplaceAll(an.RootCauseType, "_", " "))
			}
			out[i].Description += note
		}
	}

	return out
}
