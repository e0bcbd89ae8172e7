// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kraklabs/repotoire/pkg/finding"
	"github.com/kraklabs/repotoire/pkg/graph"
	"github.com/kraklabs/repotoire/pkg/walk"
)

var entryPointNames = map[string]bool{
	"main": true, "__init__": true,
}

var callbackPattern = regexp.MustCompile(`^(?:on|handle)[A-Z]\w*$`)

var explicitCallbackSuffixes = []string{"_callback", "_listener", "_handler"}

var frameworkAutoloadDirs = []string{
	"plugins/", "routes/", "handlers/", "commands/", "migrations/", "seeds/",
}

// DeadCodeDetector flags functions with no callers that are not entry
// points, magic methods, callbacks, or framework-autoloaded code, and
// classes whose methods are mostly unreferenced.
type DeadCodeDetector struct {
	config DetectorConfig
}

// NewDeadCodeDetector constructs the detector with the given config.
func NewDeadCodeDetector(config DetectorConfig) *DeadCodeDetector {
	return &DeadCodeDetector{config: config}
}

func (d *DeadCodeDetector) Name() string        { return "dead_code" }
func (d *DeadCodeDetector) Description() string  { return "Flags functions and classes with no detectable callers" }
func (d *DeadCodeDetector) Category() string     { return "dead_code" }
func (d *DeadCodeDetector) Config() DetectorConfig { return d.config }
func (d *DeadCodeDetector) Scope() DetectorScope { return ScopeWholeGraph }

func (d *DeadCodeDetector) isEntryPoint(name string) bool {
	if entryPointNames[name] {
		return true
	}
	return strings.HasPrefix(name, "test_")
}

func (d *DeadCodeDetector) isMagicMethod(name string) bool {
	return strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") && len(name) > 4
}

func (d *DeadCodeDetector) isCallbackPattern(name string) bool {
	if callbackPattern.MatchString(name) {
		return true
	}
	for _, suffix := range explicitCallbackSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return name == "my_callback" || name == "event_handler" || name == "click_listener"
}

func (d *DeadCodeDetector) isFrameworkAutoLoad(path string) bool {
	normalized := strings.ToLower(path)
	for _, dir := range frameworkAutoloadDirs {
		if strings.Contains(normalized, "/"+dir) || strings.HasPrefix(normalized, dir) {
			return true
		}
	}
	return false
}

// shouldFilter decides whether a function with zero callers should still be
// excluded from dead-code reporting. Public visibility alone is not a
// blanket exclusion — only the name pattern, entry-point, magic-method, and
// decorated-method rules exempt a function.
func (d *DeadCodeDetector) shouldFilter(name string, isPublic bool, isDecorated bool) bool {
	if d.isMagicMethod(name) {
		return true
	}
	if d.isEntryPoint(name) {
		return true
	}
	if isDecorated {
		return true
	}
	if d.isCallbackPattern(name) {
		return true
	}
	return false
}

func (d *DeadCodeDetector) calculateFunctionSeverity(loc int) finding.Severity {
	switch {
	case loc >= 20:
		return finding.High
	case loc >= 8:
		return finding.Medium
	default:
		return finding.Low
	}
}

func (d *DeadCodeDetector) calculateClassSeverity(unusedMethods, totalMethods int) finding.Severity {
	if totalMethods == 0 {
		return finding.Low
	}
	ratio := float64(unusedMethods) / float64(totalMethods)
	switch {
	case ratio >= 0.8:
		return finding.High
	case ratio >= 0.4:
		return finding.Medium
	default:
		return finding.Low
	}
}

func (d *DeadCodeDetector) Detect(ctx context.Context, qc *graph.QueryCache, files []string) ([]finding.Finding, error) {
	var out []finding.Finding

	for _, fd := range qc.AllFunctions() {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		if len(fd.CalledBy) > 0 {
			continue
		}
		node := fd.Node
		if node.FilePath == "" {
			continue
		}
		if d.isFrameworkAutoLoad(node.FilePath) {
			continue
		}
		isPublic := !strings.HasPrefix(node.Name, "_")
		isDecorated := node.PropBool("decorated", false)
		if d.shouldFilter(node.Name, isPublic, isDecorated) {
			continue
		}

		loc := node.LineEnd - node.LineStart + 1
		severity := d.calculateFunctionSeverity(loc)
		pathClass := walk.ClassifyPath(node.FilePath)

		description := fmt.Sprintf(
			"Function %s (%d lines) at %s:%d has no detected callers and does not match any known entry-point, magic-method, or callback pattern. It may be unreferenced.",
			node.Name, loc, node.FilePath, node.LineStart,
		)

		f := finding.Finding{
			ID:            DeterministicID(d.Name(), node.FilePath, node.LineStart, node.Name),
			Detector:      d.Name(),
			Severity:      severity,
			Title:         fmt.Sprintf("Unreferenced function: %s", node.Name),
			Description:   description,
			AffectedFiles: []string{node.FilePath},
			LineStart:     node.LineStart,
			LineEnd:       node.LineEnd,
			SuggestedFix:  "Confirm this function is unused (check for dynamic dispatch, reflection, or external callers) and remove it, or wire it up if it was meant to be called.",
			Category:      "dead_code",
			WhyItMatters:  "Unreferenced code adds maintenance burden and obscures the project's real surface area.",
			Confidence:    0.7,
		}
		ApplyPathDowngrade(&f, pathClass)
		out = append(out, f)
	}

	for _, cd := range qc.AllClasses() {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		if len(cd.Methods) == 0 {
			continue
		}
		node := cd.Node
		if node.FilePath == "" {
			continue
		}
		unused := 0
		for _, m := range cd.Methods {
			mfd, ok := qc.GetFunction(m)
			if !ok {
				continue
			}
			if len(mfd.CalledBy) == 0 && !d.shouldFilter(mfd.Node.Name, !strings.HasPrefix(mfd.Node.Name, "_"), mfd.Node.PropBool("decorated", false)) {
				unused++
			}
		}
		if unused == 0 {
			continue
		}
		severity := d.calculateClassSeverity(unused, len(cd.Methods))
		if severity == finding.Low {
			continue
		}
		pathClass := walk.ClassifyPath(node.FilePath)

		description := fmt.Sprintf(
			"Class %s has %d of %d methods with no detected callers, suggesting most of its surface is unused.",
			node.Name, unused, len(cd.Methods),
		)

		f := finding.Finding{
			ID:            DeterministicID(d.Name(), node.FilePath, node.LineStart, node.Name+":class"),
			Detector:      d.Name(),
			Severity:      severity,
			Title:         fmt.Sprintf("Mostly-unreferenced class: %s", node.Name),
			Description:   description,
			AffectedFiles: []string{node.FilePath},
			LineStart:     node.LineStart,
			LineEnd:       node.LineEnd,
			SuggestedFix:  "Review whether this class is still needed; trim or remove unused methods.",
			Category:      "dead_code",
			WhyItMatters:  "A class whose methods are mostly unreferenced likely represents dead functionality retained out of caution.",
			Confidence:    0.65,
		}
		ApplyPathDowngrade(&f, pathClass)
		out = append(out, f)
	}

	return out, nil
}
