// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package voting implements the cross-detector consensus stage: findings
// from independent detectors that land on the same entity are grouped,
// checked against a configurable agreement strategy, and merged into a
// single consensus finding when they agree.
package voting

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/repotoire/pkg/finding"
)

// Strategy decides whether a group of same-entity findings has reached
// consensus.
type Strategy string

const (
	StrategyMajority  Strategy = "majority"
	StrategyUnanimous Strategy = "unanimous"
	StrategyWeighted  Strategy = "weighted"
	StrategyThreshold Strategy = "threshold"
)

// ConfidenceMethod aggregates the confidence values of a finding group into
// a single consensus confidence.
type ConfidenceMethod string

const (
	ConfidenceAverage  ConfidenceMethod = "average"
	ConfidenceWeighted ConfidenceMethod = "weighted"
	ConfidenceMax      ConfidenceMethod = "max"
	ConfidenceMin      ConfidenceMethod = "min"
	ConfidenceBayesian ConfidenceMethod = "bayesian"
)

// SeverityResolution decides the severity of the merged consensus finding.
type SeverityResolution string

const (
	SeverityHighest      SeverityResolution = "highest"
	SeverityLowest       SeverityResolution = "lowest"
	SeverityMajorityVote SeverityResolution = "majority_vote"
	SeverityWeightedVote SeverityResolution = "weighted_vote"
)

// lineBucketStride is the line-number bucketing granularity used when
// building an entity key, chosen so findings pointing at the same general
// area of a file (but not the exact same line) still merge. A tuning
// constant, not a contract.
const lineBucketStride = 5

// DetectorWeight carries the per-detector trust factors used by the
// Weighted strategy and the Weighted confidence/severity methods.
type DetectorWeight struct {
	// Weight scales how much this detector's vote counts toward the
	// Weighted strategy's total and the Weighted-vote severity method.
	Weight float64
	// Accuracy is the prior used by the Weighted confidence method.
	Accuracy float64
}

// defaultDetectorWeights returns the built-in per-detector weight table.
// Detectors absent from the table fall back to the "default" entry.
func defaultDetectorWeights() map[string]DetectorWeight {
	return map[string]DetectorWeight{
		"CircularDependencyDetector":    {Weight: 1.2, Accuracy: 0.95},
		"GodClassDetector":              {Weight: 1.1, Accuracy: 0.85},
		"FeatureEnvyDetector":           {Weight: 1.0, Accuracy: 0.80},
		"ShotgunSurgeryDetector":        {Weight: 1.0, Accuracy: 0.85},
		"InappropriateIntimacyDetector": {Weight: 1.0, Accuracy: 0.80},
		"ArchitecturalBottleneckDetector": {Weight: 1.1, Accuracy: 0.90},
		"RuffLintDetector":              {Weight: 1.3, Accuracy: 0.98},
		"RuffImportDetector":            {Weight: 1.2, Accuracy: 0.95},
		"MypyDetector":                  {Weight: 1.3, Accuracy: 0.99},
		"BanditDetector":                {Weight: 1.1, Accuracy: 0.85},
		"SemgrepDetector":               {Weight: 1.2, Accuracy: 0.90},
		"RadonDetector":                 {Weight: 1.0, Accuracy: 0.95},
		"JscpdDetector":                 {Weight: 1.1, Accuracy: 0.90},
		"VultureDetector":               {Weight: 0.9, Accuracy: 0.75},
		"PylintDetector":                {Weight: 1.0, Accuracy: 0.85},
		"default":                       {Weight: 1.0, Accuracy: 0.80},
	}
}

// Config configures a Engine's behavior; the zero value is not usable,
// construct with New or NewWithConfig.
type Config struct {
	Strategy           Strategy
	ConfidenceMethod   ConfidenceMethod
	SeverityResolution SeverityResolution
	// Threshold is the minimum confidence a singleton finding (or a group
	// under the Threshold strategy) must reach to survive.
	Threshold float64
	Weights   map[string]DetectorWeight
}

// Stats summarizes a single Vote invocation, used for reporting and tests.
type Stats struct {
	InputFindings    int
	GroupsFormed     int
	ConsensusReached int
	SingletonsKept   int
	Rejected         int
	OutputFindings   int
}

// Engine groups and merges findings from independent detectors that agree
// on the same entity.
type Engine struct {
	config Config
}

// New constructs an Engine with the defaults used across the corpus:
// Majority strategy, Weighted confidence, Highest severity resolution,
// threshold 0.6.
func New() *Engine {
	return NewWithConfig(Config{
		Strategy:           StrategyMajority,
		ConfidenceMethod:   ConfidenceWeighted,
		SeverityResolution: SeverityHighest,
		Threshold:          0.6,
	})
}

// NewWithConfig constructs an Engine with an explicit configuration; any
// zero-valued field is replaced with the New() default, and a nil weight
// table is replaced with defaultDetectorWeights.
func NewWithConfig(config Config) *Engine {
	if config.Strategy == "" {
		config.Strategy = StrategyMajority
	}
	if config.ConfidenceMethod == "" {
		config.ConfidenceMethod = ConfidenceWeighted
	}
	if config.SeverityResolution == "" {
		config.SeverityResolution = SeverityHighest
	}
	if config.Threshold <= 0 {
		config.Threshold = 0.6
	}
	if config.Weights == nil {
		config.Weights = defaultDetectorWeights()
	}
	return &Engine{config: config}
}

func (e *Engine) weightFor(detector string) DetectorWeight {
	if w, ok := e.config.Weights[detector]; ok {
		return w
	}
	return e.config.Weights["default"]
}

// entityKey groups findings pointing at the same general location in the
// same issue category: (issue_category, file_path, line_start/5, line_end/5).
type entityKey struct {
	category   string
	file       string
	startBucket int
	endBucket   int
}

func lineBucket(line int) int {
	if line <= 0 {
		return 0
	}
	return line / lineBucketStride
}

func getEntityKey(f finding.Finding) entityKey {
	file := ""
	if len(f.AffectedFiles) > 0 {
		file = f.AffectedFiles[0]
	}
	return entityKey{
		category:    issueCategory(f.Detector),
		file:        file,
		startBucket: lineBucket(f.LineStart),
		endBucket:   lineBucket(f.LineEnd),
	}
}

// issueCategory derives the closed-set issue category from a detector name
// using the same substring matching the corpus's detector-name heuristics
// use, reconciled against this repository's closed category set.
func issueCategory(detector string) string {
	lower := strings.ToLower(detector)
	switch {
	case strings.Contains(lower, "circular"):
		return "circular_dependency"
	case strings.Contains(lower, "god_class"), strings.Contains(lower, "godclass"):
		return "god_class"
	case strings.Contains(lower, "dead_code"), strings.Contains(lower, "deadcode"), strings.Contains(lower, "vulture"):
		return "dead_code"
	case strings.Contains(lower, "bandit"), strings.Contains(lower, "semgrep"),
		strings.Contains(lower, "security"), strings.Contains(lower, "tls"),
		strings.Contains(lower, "pickle"), strings.Contains(lower, "xxe"),
		strings.Contains(lower, "injection"), strings.Contains(lower, "template"):
		return "security"
	case strings.Contains(lower, "complexity"), strings.Contains(lower, "radon"),
		strings.Contains(lower, "bottleneck"), strings.Contains(lower, "envy"),
		strings.Contains(lower, "surprisal"):
		return "complexity"
	case strings.Contains(lower, "jscpd"), strings.Contains(lower, "duplication"), strings.Contains(lower, "clone"):
		return "duplication"
	case strings.Contains(lower, "mypy"), strings.Contains(lower, "type"):
		return "type_error"
	case strings.Contains(lower, "ruff"), strings.Contains(lower, "pylint"), strings.Contains(lower, "lint"):
		return "lint"
	default:
		return "other"
	}
}

func groupByEntity(findings []finding.Finding) map[entityKey][]finding.Finding {
	groups := make(map[entityKey][]finding.Finding)
	for _, f := range findings {
		key := getEntityKey(f)
		groups[key] = append(groups[key], f)
	}
	return groups
}

// distinctDetectors returns the sorted, de-duplicated detector names
// present in a finding group.
func distinctDetectors(group []finding.Finding) []string {
	seen := make(map[string]bool)
	var names []string
	for _, f := range group {
		if !seen[f.Detector] {
			seen[f.Detector] = true
			names = append(names, f.Detector)
		}
	}
	sort.Strings(names)
	return names
}

func (e *Engine) checkConsensus(group []finding.Finding) bool {
	detectors := distinctDetectors(group)
	switch e.config.Strategy {
	case StrategyUnanimous:
		return len(detectors) == len(group)
	case StrategyWeighted:
		total := 0.0
		for _, f := range group {
			total += e.weightFor(f.Detector).Weight
		}
		return total >= 2.0
	case StrategyThreshold:
		return e.calculateConfidence(group) >= e.config.Threshold
	case StrategyMajority:
		fallthrough
	default:
		return len(detectors) >= 2
	}
}

func (e *Engine) calculateConfidence(group []finding.Finding) float64 {
	var base float64
	switch e.config.ConfidenceMethod {
	case ConfidenceMax:
		for _, f := range group {
			if f.Confidence > base {
				base = f.Confidence
			}
		}
	case ConfidenceMin:
		base = 1.0
		for _, f := range group {
			if f.Confidence < base {
				base = f.Confidence
			}
		}
	case ConfidenceWeighted:
		var weightedSum, weightTotal float64
		for _, f := range group {
			w := e.weightFor(f.Detector).Accuracy
			weightedSum += f.Confidence * w
			weightTotal += w
		}
		if weightTotal > 0 {
			base = weightedSum / weightTotal
		}
	case ConfidenceBayesian:
		base = 0.5
		for _, f := range group {
			base = bayesianUpdate(base, f.Confidence)
		}
	case ConfidenceAverage:
		fallthrough
	default:
		var sum float64
		for _, f := range group {
			sum += f.Confidence
		}
		if len(group) > 0 {
			base = sum / float64(len(group))
		}
	}

	detectors := distinctDetectors(group)
	if len(detectors) >= 2 {
		boost := 0.05 * float64(len(detectors)-1)
		if boost > 0.20 {
			boost = 0.20
		}
		base += boost
	}
	if base > 1.0 {
		base = 1.0
	}
	return base
}

// bayesianUpdate folds a new confidence observation into a running
// posterior via a sequential Bayesian update, treating both prior and
// observation as independent evidence of the same underlying probability.
func bayesianUpdate(prior, observation float64) float64 {
	numerator := prior * observation
	denominator := numerator + (1-prior)*(1-observation)
	if denominator <= 0 {
		return prior
	}
	return numerator / denominator
}

func (e *Engine) resolveSeverity(group []finding.Finding) finding.Severity {
	switch e.config.SeverityResolution {
	case SeverityLowest:
		lowest := group[0].Severity
		for _, f := range group[1:] {
			if f.Severity.Index() < lowest.Index() {
				lowest = f.Severity
			}
		}
		return lowest
	case SeverityMajorityVote:
		counts := make(map[finding.Severity]int)
		for _, f := range group {
			counts[f.Severity]++
		}
		var best finding.Severity
		bestCount := -1
		for _, f := range group {
			c := counts[f.Severity]
			if c > bestCount || (c == bestCount && f.Severity.Index() > best.Index()) {
				best = f.Severity
				bestCount = c
			}
		}
		return best
	case SeverityWeightedVote:
		scores := make(map[finding.Severity]float64)
		for _, f := range group {
			scores[f.Severity] += f.Confidence * e.weightFor(f.Detector).Weight
		}
		var best finding.Severity
		bestScore := -1.0
		for sev, score := range scores {
			if score > bestScore || (score == bestScore && sev.Index() > best.Index()) {
				best = sev
				bestScore = score
			}
		}
		return best
	case SeverityHighest:
		fallthrough
	default:
		highest := group[0].Severity
		for _, f := range group[1:] {
			if f.Severity.Index() > highest.Index() {
				highest = f.Severity
			}
		}
		return highest
	}
}

func mergeSuggestions(group []finding.Finding) string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range group {
		fix := strings.TrimSpace(f.SuggestedFix)
		if fix == "" || seen[fix] {
			continue
		}
		seen[fix] = true
		out = append(out, fix)
	}
	return strings.Join(out, " ")
}

func mergeAffectedFiles(group []finding.Finding) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range group {
		for _, file := range f.AffectedFiles {
			if !seen[file] {
				seen[file] = true
				out = append(out, file)
			}
		}
	}
	sort.Strings(out)
	return out
}

func consensusID(group []finding.Finding) string {
	detectors := distinctDetectors(group)
	key := getEntityKey(group[0])
	h := sha256.New()
	fmt.Fprintf(h, "consensus|%s|%s|%d|%d|%s", key.category, key.file, key.startBucket, key.endBucket, strings.Join(detectors, ","))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (e *Engine) createConsensusFinding(group []finding.Finding) finding.Finding {
	detectors := distinctDetectors(group)

	base := group[0]
	for _, f := range group[1:] {
		if f.Severity.Index() > base.Severity.Index() {
			base = f
		}
	}

	var contributors strings.Builder
	contributors.WriteString("\n\nConsensus Analysis:\n")
	for _, d := range detectors {
		contributors.WriteString(fmt.Sprintf("- %s\n", d))
	}

	merged := finding.Finding{
		ID:             consensusID(group),
		Detector:       strings.Join(detectors, "+"),
		Severity:       e.resolveSeverity(group),
		Title:          fmt.Sprintf("%s [%d detectors]", base.Title, len(detectors)),
		Description:    strings.TrimRight(base.Description, "\n") + contributors.String(),
		AffectedFiles:  mergeAffectedFiles(group),
		LineStart:      base.LineStart,
		LineEnd:        base.LineEnd,
		SuggestedFix:   mergeSuggestions(group),
		EstimatedEffort: base.EstimatedEffort,
		Category:       getEntityKey(base).category,
		CWEID:          base.CWEID,
		WhyItMatters:   base.WhyItMatters,
		Confidence:     e.calculateConfidence(group),
	}
	return merged
}

// Vote groups findings by entity key, applies the configured consensus
// strategy to each group, and returns the merged/filtered finding set
// along with summary statistics. Stable ordering (severity descending,
// file, line_start, detector name) is the caller's (engine package)
// responsibility after voting, risk, and root-cause have all run.
func (e *Engine) Vote(findings []finding.Finding) ([]finding.Finding, Stats) {
	stats := Stats{InputFindings: len(findings)}
	if len(findings) == 0 {
		return nil, stats
	}

	groups := groupByEntity(findings)
	stats.GroupsFormed = len(groups)

	var out []finding.Finding
	for _, group := range groups {
		if len(group) == 1 {
			f := group[0]
			if f.Confidence >= e.config.Threshold {
				out = append(out, f)
				stats.SingletonsKept++
			} else {
				stats.Rejected++
			}
			continue
		}

		if e.checkConsensus(group) {
			out = append(out, e.createConsensusFinding(group))
			stats.ConsensusReached++
		} else {
			stats.Rejected += len(group)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity.Index() != b.Severity.Index() {
			return a.Severity.Index() > b.Severity.Index()
		}
		af, bf := fileOf(a), fileOf(b)
		if af != bf {
			return af < bf
		}
		if a.LineStart != b.LineStart {
			return a.LineStart < b.LineStart
		}
		return a.Detector < b.Detector
	})

	stats.OutputFindings = len(out)
	return out, stats
}

func fileOf(f finding.Finding) string {
	if len(f.AffectedFiles) > 0 {
		return f.AffectedFiles[0]
	}
	return ""
}
