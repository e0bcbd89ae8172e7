// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package risk implements cross-detector risk amplification: architectural
// bottleneck findings are correlated with collocated complexity, security,
// and dead-code findings, and severity is escalated when those factors
// compound.
package risk

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kraklabs/repotoire/pkg/finding"
)

// Factor is a single contributing risk signal correlated against a
// bottleneck finding.
type Factor struct {
	Type       string
	Detector   string
	Severity   finding.Severity
	Confidence float64
	Evidence   []string
	FindingID  string
}

// Assessment is the complete risk picture built for one bottleneck finding.
type Assessment struct {
	Entity            string
	Factors           []Factor
	OriginalSeverity  finding.Severity
	EscalatedSeverity finding.Severity
	Score             float64
	MitigationPlan    []string
}

// IsCriticalRisk reports whether this assessment represents compound risk:
// at least two factors (the base bottleneck plus one more) escalating to
// Critical.
func (a Assessment) IsCriticalRisk() bool {
	return len(a.Factors) >= 2 && a.EscalatedSeverity == finding.Critical
}

// factorTypes returns the distinct factor type strings present.
func (a Assessment) factorTypes() map[string]bool {
	types := make(map[string]bool, len(a.Factors))
	for _, f := range a.Factors {
		types[f.Type] = true
	}
	return types
}

// riskWeights are the per-factor-type weights used when scoring.
func riskWeights() map[string]float64 {
	return map[string]float64{
		"bottleneck":            0.4,
		"high_complexity":       0.3,
		"security_vulnerability": 0.3,
		"dead_code":             0.1,
	}
}

var severityOrder = []finding.Severity{
	finding.Info, finding.Low, finding.Medium, finding.High, finding.Critical,
}

func severityIndex(s finding.Severity) int {
	for i, v := range severityOrder {
		if v == s {
			return i
		}
	}
	return 2
}

// Analyzer correlates bottleneck findings with collocated complexity,
// security, and dead-code findings to produce a risk-escalated finding set.
type Analyzer struct {
	complexityThreshold       int
	securitySeverityThreshold finding.Severity
}

// New constructs an Analyzer with the default thresholds: complexity
// threshold 15, security severity floor Medium.
func New() *Analyzer {
	return &Analyzer{
		complexityThreshold:       15,
		securitySeverityThreshold: finding.Medium,
	}
}

// NewWithThresholds constructs an Analyzer with custom thresholds.
func NewWithThresholds(complexityThreshold int, securitySeverityThreshold finding.Severity) *Analyzer {
	return &Analyzer{
		complexityThreshold:       complexityThreshold,
		securitySeverityThreshold: securitySeverityThreshold,
	}
}

// Analyze correlates each bottleneck finding against the complexity,
// security, and other (e.g. dead-code) finding buckets, producing a
// modified finding set (severity escalated where warranted) and the
// assessments that justify each escalation.
func (a *Analyzer) Analyze(bottleneckFindings, complexityFindings, securityFindings, otherFindings []finding.Finding) ([]finding.Finding, []Assessment) {
	complexityIndex := indexByEntity(complexityFindings)
	securityIndex := indexByEntity(securityFindings)
	otherIndex := indexByEntity(otherFindings)

	assessments := make([]Assessment, 0, len(bottleneckFindings))
	modified := make([]finding.Finding, 0, len(bottleneckFindings))

	for _, b := range bottleneckFindings {
		assessment := a.assessBottleneckRisk(b, complexityIndex, securityIndex, otherIndex)
		modified = append(modified, a.applyRiskEscalation(b, assessment))
		assessments = append(assessments, assessment)
	}

	return modified, assessments
}

// indexByEntity indexes findings by every affected file path, and
// separately by the base filename, so a bottleneck on "src/a/service.py"
// can still correlate against a finding indexed only as "service.py".
func indexByEntity(findings []finding.Finding) map[string][]finding.Finding {
	index := make(map[string][]finding.Finding)
	for _, f := range findings {
		for _, path := range f.AffectedFiles {
			index[path] = append(index[path], f)
			name := filepath.Base(path)
			if name != path {
				index[name] = append(index[name], f)
			}
		}
	}
	return index
}

// lookupEntity returns the findings indexed under path, falling back to
// the base filename when nothing is indexed under the full path.
func lookupEntity(index map[string][]finding.Finding, path string) []finding.Finding {
	if matches := index[path]; len(matches) > 0 {
		return matches
	}
	return index[filepath.Base(path)]
}

func (a *Analyzer) assessBottleneckRisk(bottleneck finding.Finding, complexityIndex, securityIndex, otherIndex map[string][]finding.Finding) Assessment {
	entity := ""
	if len(bottleneck.AffectedFiles) > 0 {
		entity = bottleneck.AffectedFiles[0]
	}

	assessment := Assessment{
		Entity:           entity,
		OriginalSeverity: bottleneck.Severity,
	}

	assessment.Factors = append(assessment.Factors, Factor{
		Type:       "bottleneck",
		Detector:   "ArchitecturalBottleneckDetector",
		Severity:   bottleneck.Severity,
		Confidence: 0.8,
		Evidence:   []string{"architectural_bottleneck"},
		FindingID:  bottleneck.ID,
	})

	assessment.Factors = append(assessment.Factors, a.findComplexityFactors(bottleneck, complexityIndex)...)
	assessment.Factors = append(assessment.Factors, a.findSecurityFactors(bottleneck, securityIndex)...)
	assessment.Factors = append(assessment.Factors, a.findOtherFactors(bottleneck, otherIndex)...)

	assessment.Score = a.calculateRiskScore(assessment.Factors)
	assessment.EscalatedSeverity = a.calculateEscalatedSeverity(assessment)
	assessment.MitigationPlan = a.generateMitigationPlan(assessment)

	return assessment
}

// findComplexityFactors adds at most one complexity factor per affected
// file, matching the first Medium-or-above complexity finding found there.
func (a *Analyzer) findComplexityFactors(bottleneck finding.Finding, complexityIndex map[string][]finding.Finding) []Factor {
	var factors []Factor
	for _, path := range bottleneck.AffectedFiles {
		for _, cf := range lookupEntity(complexityIndex, path) {
			if severityIndex(cf.Severity) >= severityIndex(finding.Medium) {
				factors = append(factors, Factor{
					Type:       "high_complexity",
					Detector:   "RadonDetector",
					Severity:   cf.Severity,
					Confidence: 0.95,
					Evidence:   []string{fmt.Sprintf("high_complexity_in_%s", filepath.Base(path))},
					FindingID:  cf.ID,
				})
				break
			}
		}
	}
	return factors
}

func (a *Analyzer) findSecurityFactors(bottleneck finding.Finding, securityIndex map[string][]finding.Finding) []Factor {
	var factors []Factor
	for _, path := range bottleneck.AffectedFiles {
		for _, sf := range lookupEntity(securityIndex, path) {
			if severityIndex(sf.Severity) >= severityIndex(a.securitySeverityThreshold) {
				factors = append(factors, Factor{
					Type:       "security_vulnerability",
					Detector:   "BanditDetector",
					Severity:   sf.Severity,
					Confidence: 0.8,
					Evidence:   []string{sf.Title},
					FindingID:  sf.ID,
				})
			}
		}
	}
	return factors
}

func (a *Analyzer) findOtherFactors(bottleneck finding.Finding, otherIndex map[string][]finding.Finding) []Factor {
	var factors []Factor
	for _, path := range bottleneck.AffectedFiles {
		for _, of := range lookupEntity(otherIndex, path) {
			factors = append(factors, Factor{
				Type:       determineFactorType(of.Detector),
				Detector:   of.Detector,
				Severity:   of.Severity,
				Confidence: 0.7,
				Evidence:   []string{"from_" + of.Detector},
				FindingID:  of.ID,
			})
		}
	}
	return factors
}

func determineFactorType(detector string) string {
	lower := strings.ToLower(detector)
	switch {
	case strings.Contains(lower, "dead"), strings.Contains(lower, "vulture"):
		return "dead_code"
	case strings.Contains(lower, "complexity"), strings.Contains(lower, "radon"):
		return "high_complexity"
	case strings.Contains(lower, "security"), strings.Contains(lower, "bandit"):
		return "security_vulnerability"
	default:
		return "other"
	}
}

func (a *Analyzer) calculateRiskScore(factors []Factor) float64 {
	if len(factors) == 0 {
		return 0
	}
	weights := riskWeights()
	score := 0.0
	for _, f := range factors {
		weight, ok := weights[f.Type]
		if !ok {
			weight = 0.1
		}
		severityMultiplier := float64(severityIndex(f.Severity)+1) / float64(len(severityOrder))
		score += weight * severityMultiplier * f.Confidence
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// calculateEscalatedSeverity applies the risk matrix: 0 additional factor
// types beyond the base bottleneck keeps the original severity, 1 steps up
// one level (clamped at Critical), 2 or more is Critical outright.
func (a *Analyzer) calculateEscalatedSeverity(assessment Assessment) finding.Severity {
	originalIdx := severityIndex(assessment.OriginalSeverity)
	additional := len(assessment.factorTypes()) - 1
	if additional < 0 {
		additional = 0
	}

	switch {
	case additional >= 2:
		return finding.Critical
	case additional == 1:
		newIdx := originalIdx + 1
		if newIdx > len(severityOrder)-1 {
			newIdx = len(severityOrder) - 1
		}
		return severityOrder[newIdx]
	default:
		if assessment.OriginalSeverity == "" {
			return finding.Medium
		}
		return assessment.OriginalSeverity
	}
}

func (a *Analyzer) generateMitigationPlan(assessment Assessment) []string {
	types := assessment.factorTypes()
	var plan []string

	if types["security_vulnerability"] {
		plan = append(plan, "1. [URGENT] Address security vulnerabilities first - review and fix identified security issues before other changes")
	}
	if types["bottleneck"] {
		plan = append(plan, "2. Reduce architectural coupling - consider extracting interfaces or introducing dependency injection")
	}
	if types["high_complexity"] {
		plan = append(plan, "3. Reduce cyclomatic complexity - break down complex methods into smaller, focused functions")
	}
	if types["dead_code"] {
		plan = append(plan, "4. Remove dead code - eliminate unused functions and classes to reduce maintenance burden")
	}

	if assessment.IsCriticalRisk() {
		plan = append([]string{"!!! CRITICAL COMPOUND RISK: Multiple risk factors combine to create systemic risk. Address all factors together."}, plan...)
	}

	return plan
}

func (a *Analyzer) applyRiskEscalation(f finding.Finding, assessment Assessment) finding.Finding {
	out := *f.Clone()

	if assessment.EscalatedSeverity != "" && assessment.EscalatedSeverity != assessment.OriginalSeverity {
		out.Severity = assessment.EscalatedSeverity
	}

	if assessment.IsCriticalRisk() {
		types := assessment.factorTypes()
		names := make([]string, 0, len(types))
		for t := range types {
			names = append(names, t)
		}
		sort.Strings(names)
		out.Description = fmt.Sprintf(
			"**CRITICAL COMPOUND RISK**: %s\n\nRisk factors: %s\nRisk score: %.2f",
			out.Description, strings.Join(names, ", "), assessment.Score,
		)
	}

	if len(assessment.MitigationPlan) > 0 {
		out.SuggestedFix = strings.Join(assessment.MitigationPlan, "\n")
	}

	return out
}

// AnalyzeCompoundRisks is a convenience entry point that buckets a flat
// finding slice by detector name (bottleneck / complexity / security /
// other) before running Analyze, for callers that have not already
// separated findings into the four buckets.
func AnalyzeCompoundRisks(allFindings []finding.Finding, complexityThreshold int, securitySeverityThreshold finding.Severity) ([]finding.Finding, []Assessment) {
	var bottleneck, complexity, security, other []finding.Finding

	for _, f := range allFindings {
		lower := strings.ToLower(f.Detector)
		switch {
		case strings.Contains(lower, "bottleneck"), strings.Contains(lower, "centrality"):
			bottleneck = append(bottleneck, f)
		case strings.Contains(lower, "radon"), strings.Contains(lower, "complexity"):
			complexity = append(complexity, f)
		case strings.Contains(lower, "bandit"), strings.Contains(lower, "security"):
			security = append(security, f)
		default:
			other = append(other, f)
		}
	}

	analyzer := NewWithThresholds(complexityThreshold, securitySeverityThreshold)
	return analyzer.Analyze(bottleneck, complexity, security, other)
}
