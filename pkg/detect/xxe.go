// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"context"
	"fmt"
	"os"

	"github.com/kraklabs/repotoire/pkg/finding"
	"github.com/kraklabs/repotoire/pkg/graph"
	"github.com/kraklabs/repotoire/pkg/taint"
	"github.com/kraklabs/repotoire/pkg/walk"
)

// XXEDetector is a taint-consuming detector: it runs the intra-procedural
// taint analyzer over every function body and reports unsanitized
// source-to-sink flows whose sink is a path/file-access operation, the
// shape an XML-external-entity-style file disclosure takes once tainted
// input reaches a parser or file accessor.
type XXEDetector struct {
	config DetectorConfig
}

// NewXXEDetector constructs the detector with the given config.
func NewXXEDetector(config DetectorConfig) *XXEDetector {
	return &XXEDetector{config: config}
}

func (d *XXEDetector) Name() string        { return "xxe_injection" }
func (d *XXEDetector) Description() string { return "Flags tainted input reaching file/path access operations (XXE-style disclosure)" }
func (d *XXEDetector) Category() string     { return "security" }
func (d *XXEDetector) Config() DetectorConfig { return d.config }
func (d *XXEDetector) Scope() DetectorScope { return ScopeHybrid }

func (d *XXEDetector) makeFinding(p taint.Path) finding.Finding {
	severity := finding.High
	description := fmt.Sprintf(
		"Untrusted data from `%s` (line %d) reaches `%s` (line %d) without sanitization: `%s`. "+
			"When file or path operations are driven by attacker-controlled input, the attacker can "+
			"read arbitrary files or trigger XML-external-entity-style disclosure.",
		p.Source, p.SourceLine, p.Sink, p.SinkLine, p.Snippet,
	)

	f := finding.Finding{
		ID:            DeterministicID("xxe_injection", p.File, p.SinkLine, p.Source+"->"+p.Sink),
		Detector:      "xxe_injection",
		Severity:      severity,
		Title:         "Unsanitized path/file access from tainted input",
		Description:   description,
		AffectedFiles: []string{p.File},
		LineStart:     p.SourceLine,
		LineEnd:       p.SinkLine,
		SuggestedFix:  "Validate and canonicalize the path against an allow-list before using it in a file or parser operation; for XML parsing specifically, disable external entity resolution (e.g. defusedxml, resolve_entities=False).",
		Category:      "security",
		CWEID:         "CWE-611",
		WhyItMatters:  "Unsanitized path/file access lets an attacker read files outside the intended directory or trigger external entity expansion, leaking server-side data.",
		Confidence:    0.75,
	}
	ApplyPathDowngrade(&f, walk.ClassifyPath(p.File))
	return f
}

func (d *XXEDetector) Detect(ctx context.Context, qc *graph.QueryCache, files []string) ([]finding.Finding, error) {
	var out []finding.Finding
	coveredFiles := make(map[string]bool)
	fileLines := make(map[string][]string)

	for _, fn := range qc.AllFunctions() {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		node := fn.Node
		if node.FilePath == "" || node.LineStart == 0 {
			continue
		}
		lines, ok := fileLines[node.FilePath]
		if !ok {
			lines = readLines(node.FilePath)
			fileLines[node.FilePath] = lines
		}
		if lines == nil {
			continue
		}
		start := node.LineStart - 1
		end := node.LineEnd
		if start < 0 {
			start = 0
		}
		if end > len(lines) {
			end = len(lines)
		}
		if start >= end {
			continue
		}
		coveredFiles[node.FilePath] = true

		paths := taint.AnalyzeFunction(node.QualifiedName, node.FilePath, lines[start:end], node.LineStart)
		for _, p := range paths {
			if p.SinkCategory != taint.SinkPathTraversal {
				continue
			}
			out = append(out, d.makeFinding(p))
		}
	}

	for _, path := range files {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		if coveredFiles[path] {
			continue
		}
		ext := extOf(path)
		if !xxeScannableExts[ext] {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if len(content) > maxScannableFileSize {
			continue
		}
		fallbackPaths := taint.AnalyzeFileFallback(path, string(content))
		for _, p := range fallbackPaths {
			if p.SinkCategory != taint.SinkPathTraversal {
				continue
			}
			out = append(out, d.makeFinding(p))
		}
	}

	return out, nil
}

var xxeScannableExts = map[string]bool{
	"py": true, "js": true, "ts": true, "jsx": true, "tsx": true,
	"java": true, "go": true, "rb": true, "php": true, "cs": true,
}
