// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kraklabs/repotoire/pkg/finding"
	"github.com/kraklabs/repotoire/pkg/graph"
	"github.com/kraklabs/repotoire/pkg/ngram"
	"github.com/kraklabs/repotoire/pkg/walk"
)

const (
	surprisalMinFunctionLines = 8
	surprisalZThreshold       = 2.0
	surprisalZHigh            = 3.5
	surprisalZMedium          = 2.5
	surprisalMaxFindings      = 30
)

// surprisalCandidate is a function scored against the trained n-gram model,
// kept around until the corpus-wide mean/stddev are known.
type surprisalCandidate struct {
	fn        *graph.FunctionData
	avg       float64
	max       float64
	peakLine  int
	lines     []string
}

// SurprisalDetector flags functions whose token sequences are statistically
// unusual relative to the rest of the codebase, using a smoothed n-gram
// language model trained on every scanned file.
type SurprisalDetector struct {
	config DetectorConfig
}

// NewSurprisalDetector constructs the detector with the given config.
func NewSurprisalDetector(config DetectorConfig) *SurprisalDetector {
	return &SurprisalDetector{config: config}
}

func (d *SurprisalDetector) Name() string { return "code_surprisal" }
func (d *SurprisalDetector) Description() string {
	return "Flags functions whose token patterns are statistically unusual for this codebase"
}
func (d *SurprisalDetector) Category() string        { return "maintainability" }
func (d *SurprisalDetector) Config() DetectorConfig  { return d.config }
func (d *SurprisalDetector) Scope() DetectorScope    { return ScopeWholeGraph }

func (d *SurprisalDetector) Detect(ctx context.Context, qc *graph.QueryCache, files []string) ([]finding.Finding, error) {
	fileLines := make(map[string][]string)
	linesFor := func(path string) []string {
		if ls, ok := fileLines[path]; ok {
			return ls
		}
		ls := readLines(path)
		fileLines[path] = ls
		return ls
	}

	model := ngram.New()
	for _, path := range files {
		ls := linesFor(path)
		if ls == nil {
			continue
		}
		var tokens []string
		for _, line := range ls {
			tokens = append(tokens, ngram.TokenizeLine(line)...)
			tokens = append(tokens, "<EOL>")
		}
		model.TrainOnTokens(tokens)
	}

	if !model.IsConfident() {
		return nil, nil
	}

	var candidates []surprisalCandidate
	for _, fn := range qc.AllFunctions() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		node := fn.Node
		if node.FilePath == "" {
			continue
		}
		loc := node.LineEnd - node.LineStart + 1
		if loc < surprisalMinFunctionLines {
			continue
		}
		ls := linesFor(node.FilePath)
		if ls == nil {
			continue
		}
		start := node.LineStart - 1
		end := node.LineEnd
		if start < 0 {
			start = 0
		}
		if end > len(ls) {
			end = len(ls)
		}
		if start >= end {
			continue
		}
		fnLines := ls[start:end]
		var prevBeforeFunc *string
		if start > 0 {
			prevBeforeFunc = &ls[start-1]
		}
		if surprisalFunctionSuppressed(d.Name(), fnLines, prevBeforeFunc) {
			continue
		}

		avg, max, peak := model.FunctionSurprisal(fnLines)
		if avg <= 0 {
			continue
		}
		candidates = append(candidates, surprisalCandidate{fn: fn, avg: avg, max: max, peakLine: peak, lines: fnLines})
	}

	if len(candidates) < 2 {
		return nil, nil
	}

	mean, stddev := surprisalMeanStddev(candidates)
	if stddev == 0 {
		return nil, nil
	}

	type scored struct {
		f finding.Finding
		z float64
	}
	var out []scored
	for _, c := range candidates {
		z := (c.avg - mean) / stddev
		if z < surprisalZThreshold {
			continue
		}

		severity := finding.Low
		switch {
		case z > surprisalZHigh:
			severity = finding.High
		case z > surprisalZMedium:
			severity = finding.Medium
		}

		node := c.fn.Node
		peakLineNum := node.LineStart + c.peakLine
		description := fmt.Sprintf(
			"Function %s has an unusually high token-surprisal score (z=%.2f) relative to the rest of this codebase's style. Average surprisal %.2f bits/token (corpus mean %.2f, stddev %.2f), peaking at line %d.",
			node.Name, z, c.avg, mean, stddev, peakLineNum,
		)

		f := finding.Finding{
			ID:            DeterministicID(d.Name(), node.FilePath, node.LineStart, node.Name),
			Detector:      d.Name(),
			Severity:      severity,
			Title:         fmt.Sprintf("Statistically unusual code in %s", node.Name),
			Description:   description,
			AffectedFiles: []string{node.FilePath},
			LineStart:     node.LineStart,
			LineEnd:       node.LineEnd,
			SuggestedFix:  "Review this function for inconsistent style, copy-pasted or generated code, or a latent bug; compare it against similar functions elsewhere in the codebase.",
			Category:      "maintainability",
			WhyItMatters:  "Code that deviates sharply from a codebase's typical patterns is correlated with higher defect rates and harder-to-follow logic.",
			Confidence:    surprisalConfidence(z),
			ThresholdMeta: map[string]string{
				"mean":   fmt.Sprintf("%.4f", mean),
				"stddev": fmt.Sprintf("%.4f", stddev),
				"avg":    fmt.Sprintf("%.4f", c.avg),
				"z":      fmt.Sprintf("%.4f", z),
			},
		}
		ApplyPathDowngrade(&f, walk.ClassifyPath(node.FilePath))
		out = append(out, scored{f: f, z: z})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].z > out[j].z })
	if len(out) > surprisalMaxFindings {
		out = out[:surprisalMaxFindings]
	}

	result := make([]finding.Finding, 0, len(out))
	for _, s := range out {
		result = append(result, s.f)
	}
	return result, nil
}

// surprisalFunctionSuppressed reports whether any line of the function (or
// the line immediately preceding it, for the function's first line) carries
// a suppression marker targeting this detector.
func surprisalFunctionSuppressed(detectorSlug string, fnLines []string, prevBeforeFunc *string) bool {
	for i, line := range fnLines {
		var prev *string
		if i > 0 {
			prev = &fnLines[i-1]
		} else {
			prev = prevBeforeFunc
		}
		if walk.IsLineSuppressedFor(line, prev, detectorSlug) {
			return true
		}
	}
	return false
}

func surprisalConfidence(z float64) float64 {
	c := 0.5 + (z-surprisalZThreshold)*0.1
	if c > 0.95 {
		c = 0.95
	}
	if c < 0.5 {
		c = 0.5
	}
	return c
}

func surprisalMeanStddev(candidates []surprisalCandidate) (mean, stddev float64) {
	n := float64(len(candidates))
	sum := 0.0
	for _, c := range candidates {
		sum += c.avg
	}
	mean = sum / n

	variance := 0.0
	for _, c := range candidates {
		d := c.avg - mean
		variance += d * d
	}
	variance /= n
	stddev = math.Sqrt(variance)
	return mean, stddev
}
