// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"context"
	"fmt"

	"github.com/kraklabs/repotoire/pkg/finding"
	"github.com/kraklabs/repotoire/pkg/graph"
	"github.com/kraklabs/repotoire/pkg/walk"
)

const (
	godClassMinMethods = 20
	godClassMinLOC     = 200
	godClassHighMethods = 40
	godClassHighLOC     = 500
)

// GodClassDetector flags classes that have grown too large along both
// method count and line count, a structural smell the root-cause analyzer
// treats as a common origin for cascading coupling issues.
type GodClassDetector struct {
	config DetectorConfig
}

// NewGodClassDetector constructs the detector with the given config.
func NewGodClassDetector(config DetectorConfig) *GodClassDetector {
	return &GodClassDetector{config: config}
}

func (d *GodClassDetector) Name() string        { return "GodClassDetector" }
func (d *GodClassDetector) Description() string  { return "Flags classes with too many methods and too much code" }
func (d *GodClassDetector) Category() string     { return "complexity" }
func (d *GodClassDetector) Config() DetectorConfig { return d.config }
func (d *GodClassDetector) Scope() DetectorScope { return ScopeWholeGraph }

func (d *GodClassDetector) Detect(ctx context.Context, qc *graph.QueryCache, files []string) ([]finding.Finding, error) {
	minMethods := d.config.Int("min_methods", godClassMinMethods)
	minLOC := d.config.Int("min_loc", godClassMinLOC)

	var out []finding.Finding
	for _, cd := range qc.GetGodClasses(minMethods, minLOC) {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		node := cd.Node
		if node.FilePath == "" {
			continue
		}
		loc := node.LineEnd - node.LineStart + 1
		methodCount := len(cd.Methods)

		severity := finding.Medium
		if methodCount >= godClassHighMethods || loc >= godClassHighLOC {
			severity = finding.High
		}

		description := fmt.Sprintf(
			"Class %s at %s:%d has %d methods and %d lines, well beyond what a single class should own. Large classes accumulate unrelated responsibilities and tend to attract circular dependencies and tight coupling with their collaborators.",
			node.Name, node.FilePath, node.LineStart, methodCount, loc,
		)

		f := finding.Finding{
			ID:            DeterministicID(d.Name(), node.FilePath, node.LineStart, node.Name),
			Detector:      d.Name(),
			Severity:      severity,
			Title:         fmt.Sprintf("God class: %s", node.Name),
			Description:   description,
			AffectedFiles: []string{node.FilePath},
			LineStart:     node.LineStart,
			LineEnd:       node.LineEnd,
			SuggestedFix:  "Split this class along its distinct responsibilities; extract cohesive method groups into their own collaborator types.",
			Category:      "complexity",
			WhyItMatters:  "Oversized classes are hard to understand, test, and change safely, and they tend to cause cascading coupling problems elsewhere.",
			Confidence:    0.85,
		}
		ApplyPathDowngrade(&f, walk.ClassifyPath(node.FilePath))
		out = append(out, f)
	}
	return out, nil
}
