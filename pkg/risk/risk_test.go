// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package risk

import (
	"strings"
	"testing"

	"github.com/kraklabs/repotoire/pkg/finding"
)

func testFinding(detector string, severity finding.Severity, file string) finding.Finding {
	return finding.Finding{
		ID:            detector + "-" + file,
		Detector:      detector,
		Severity:      severity,
		Title:         "Test finding from " + detector,
		Description:   "Test description",
		AffectedFiles: []string{file},
		LineStart:     10,
		LineEnd:       20,
		SuggestedFix:  "Fix it",
	}
}

func TestAnalyzeSingleBottleneckNoEscalation(t *testing.T) {
	a := New()
	bottlenecks := []finding.Finding{testFinding("ArchitecturalBottleneckDetector", finding.Medium, "test.py")}

	modified, assessments := a.Analyze(bottlenecks, nil, nil, nil)

	if len(modified) != 1 || len(assessments) != 1 {
		t.Fatalf("expected 1 modified finding and 1 assessment, got %d/%d", len(modified), len(assessments))
	}
	if len(assessments[0].Factors) != 1 {
		t.Errorf("expected 1 risk factor (base bottleneck only), got %d", len(assessments[0].Factors))
	}
	if assessments[0].EscalatedSeverity != finding.Medium {
		t.Errorf("expected no escalation for a single factor, got %s", assessments[0].EscalatedSeverity)
	}
}

func TestAnalyzeBottleneckWithComplexityEscalatesOneLevel(t *testing.T) {
	a := New()
	bottlenecks := []finding.Finding{testFinding("ArchitecturalBottleneckDetector", finding.Medium, "test.py")}
	radon := []finding.Finding{testFinding("RadonDetector", finding.High, "test.py")}

	modified, assessments := a.Analyze(bottlenecks, radon, nil, nil)

	if len(assessments[0].Factors) != 2 {
		t.Fatalf("expected 2 risk factors, got %d", len(assessments[0].Factors))
	}
	if assessments[0].EscalatedSeverity != finding.High {
		t.Errorf("expected escalation by 1 level to High, got %s", assessments[0].EscalatedSeverity)
	}
	if modified[0].Severity != finding.High {
		t.Errorf("expected modified finding severity High, got %s", modified[0].Severity)
	}
}

func TestAnalyzeCompoundRiskIsCritical(t *testing.T) {
	a := New()
	bottlenecks := []finding.Finding{testFinding("ArchitecturalBottleneckDetector", finding.High, "test.py")}
	radon := []finding.Finding{testFinding("RadonDetector", finding.High, "test.py")}
	bandit := []finding.Finding{testFinding("BanditDetector", finding.High, "test.py")}

	modified, assessments := a.Analyze(bottlenecks, radon, bandit, nil)

	if !assessments[0].IsCriticalRisk() {
		t.Fatal("expected compound risk with 3 factor types to be critical")
	}
	if assessments[0].EscalatedSeverity != finding.Critical {
		t.Errorf("expected escalated severity Critical, got %s", assessments[0].EscalatedSeverity)
	}
	if modified[0].Severity != finding.Critical {
		t.Errorf("expected modified finding severity Critical, got %s", modified[0].Severity)
	}
	if !strings.Contains(modified[0].Description, "CRITICAL COMPOUND RISK") {
		t.Error("expected description to be prefixed with CRITICAL COMPOUND RISK")
	}
}

func TestCalculateRiskScoreBounded(t *testing.T) {
	a := New()
	factors := []Factor{
		{Type: "bottleneck", Detector: "Test", Severity: finding.High, Confidence: 0.9},
		{Type: "security_vulnerability", Detector: "Test", Severity: finding.Critical, Confidence: 0.8},
	}
	score := a.calculateRiskScore(factors)
	if score <= 0 || score > 1.0 {
		t.Errorf("expected risk score in (0, 1.0], got %.4f", score)
	}
}

func TestGenerateMitigationPlanSecurityFirst(t *testing.T) {
	a := New()
	assessment := Assessment{
		Entity:           "test.py",
		OriginalSeverity: finding.High,
		Factors: []Factor{
			{Type: "bottleneck", Detector: "Test", Severity: finding.High, Confidence: 0.9},
			{Type: "security_vulnerability", Detector: "Test", Severity: finding.Critical, Confidence: 0.8},
		},
	}
	plan := a.generateMitigationPlan(assessment)
	if len(plan) == 0 {
		t.Fatal("expected a non-empty mitigation plan")
	}
	if !strings.Contains(plan[0], "URGENT") && !strings.Contains(strings.ToLower(plan[0]), "security") {
		t.Errorf("expected security mitigation to lead the plan, got %q", plan[0])
	}
}

func TestIndexByEntityMatchesOnBaseFilename(t *testing.T) {
	bottlenecks := []finding.Finding{testFinding("ArchitecturalBottleneckDetector", finding.Medium, "src/pkg/service.py")}
	radon := []finding.Finding{testFinding("RadonDetector", finding.High, "service.py")}

	a := New()
	_, assessments := a.Analyze(bottlenecks, radon, nil, nil)
	if len(assessments[0].Factors) != 2 {
		t.Fatalf("expected the base-filename index to correlate a differently-pathed finding, got %d factors", len(assessments[0].Factors))
	}
}
