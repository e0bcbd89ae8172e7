// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package rootcause

import (
	"strings"
	"testing"

	"github.com/kraklabs/repotoire/pkg/finding"
)

func testFinding(id, detector string, severity finding.Severity, file string) finding.Finding {
	return finding.Finding{
		ID:            id,
		Detector:      detector,
		Severity:      severity,
		Title:         "Test: " + detector,
		Description:   "Test description",
		AffectedFiles: []string{file},
		LineStart:     10,
		LineEnd:       20,
		SuggestedFix:  "Fix it",
	}
}

func TestAnalyzeEmptyFindings(t *testing.T) {
	a := New()
	result := a.Analyze(nil)
	if len(result) != 0 {
		t.Fatalf("expected empty result, got %d", len(result))
	}
	if len(a.Analyses()) != 0 {
		t.Fatalf("expected no analyses, got %d", len(a.Analyses()))
	}
}

func TestAnalyzeGodClassCascade(t *testing.T) {
	a := New()
	findings := []finding.Finding{
		testFinding("1", godClassDetector, finding.High, "core/god.py"),
		testFinding("2", circularDepDetector, finding.Medium, "core/god.py"),
		testFinding("3", intimacyDetector, finding.Medium, "core/god.py"),
	}

	enriched := a.Analyze(findings)

	if len(a.Analyses()) != 1 {
		t.Fatalf("expected 1 root-cause analysis, got %d", len(a.Analyses()))
	}
	analysis := a.Analyses()[0]
	if analysis.RootCauseType != "god_class" {
		t.Errorf("expected root cause type god_class, got %s", analysis.RootCauseType)
	}
	if len(analysis.CascadingFindings) != 2 {
		t.Fatalf("expected 2 cascading findings, got %d", len(analysis.CascadingFindings))
	}

	var godClass *finding.Finding
	for i := range enriched {
		if enriched[i].ID == "1" {
			godClass = &enriched[i]
		}
	}
	if godClass == nil {
		t.Fatal("expected to find enriched god class finding")
	}
	if !strings.Contains(godClass.Description, "ROOT CAUSE ANALYSIS") {
		t.Error("expected god class description to contain ROOT CAUSE ANALYSIS")
	}
}

func TestAnalyzeCircularDepNotLinkedToGodClassBecomesRootCause(t *testing.T) {
	a := New()
	findings := []finding.Finding{
		testFinding("1", circularDepDetector, finding.Medium, "pkg/a.py"),
		testFinding("2", intimacyDetector, finding.Low, "pkg/a.py"),
	}

	enriched := a.Analyze(findings)

	if len(a.Analyses()) != 1 {
		t.Fatalf("expected 1 root-cause analysis, got %d", len(a.Analyses()))
	}
	if a.Analyses()[0].RootCauseType != "circular_dependency" {
		t.Errorf("expected circular_dependency root cause, got %s", a.Analyses()[0].RootCauseType)
	}

	var cascadingFinding *finding.Finding
	for i := range enriched {
		if enriched[i].ID == "2" {
			cascadingFinding = &enriched[i]
		}
	}
	if cascadingFinding == nil || !strings.Contains(cascadingFinding.Description, "ROOT CAUSE:") {
		t.Error("expected cascading finding to carry a root-cause pointer note")
	}
}

func TestImpactScoreBounded(t *testing.T) {
	a := New()
	root := testFinding("1", godClassDetector, finding.High, "test.py")
	cascading := []finding.Finding{
		testFinding("2", circularDepDetector, finding.Medium, "test.py"),
		testFinding("3", intimacyDetector, finding.Low, "test.py"),
	}

	score := a.calculateImpactScore(root, cascading)
	if score <= 0 || score > 10.0 {
		t.Errorf("expected impact score in (0, 10.0], got %.2f", score)
	}
}

func TestPriorityCalculation(t *testing.T) {
	a := New()

	critical := testFinding("1", godClassDetector, finding.Critical, "test.py")
	if got := a.calculatePriority(critical, nil); got != "CRITICAL" {
		t.Errorf("expected CRITICAL priority for a critical root cause, got %s", got)
	}

	mediumRoot := testFinding("2", godClassDetector, finding.Medium, "test.py")
	manyCascading := []finding.Finding{
		testFinding("3", circularDepDetector, finding.Low, "test.py"),
		testFinding("4", intimacyDetector, finding.Low, "test.py"),
		testFinding("5", shotgunDetector, finding.Low, "test.py"),
	}
	if got := a.calculatePriority(mediumRoot, manyCascading); got != "HIGH" {
		t.Errorf("expected HIGH priority for 3+ cascading issues, got %s", got)
	}
}

func TestSummaryCountsRootCauseTypes(t *testing.T) {
	a := New()
	findings := []finding.Finding{
		testFinding("1", godClassDetector, finding.High, "test.py"),
		testFinding("2", circularDepDetector, finding.Medium, "test.py"),
	}

	a.Analyze(findings)
	summary := a.Summary()

	if summary.TotalRootCauses != 1 {
		t.Errorf("expected 1 total root cause, got %d", summary.TotalRootCauses)
	}
	if summary.RootCausesByType["god_class"] != 1 {
		t.Errorf("expected god_class to appear in root_causes_by_type, got %+v", summary.RootCausesByType)
	}
}
