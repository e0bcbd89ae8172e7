// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package detect defines the detector contract every analysis rule
// implements, plus the shared helpers (path-class severity downgrade,
// adaptive threshold resolution, deterministic ID derivation) that keep
// individual detectors small.
package detect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kraklabs/repotoire/pkg/finding"
	"github.com/kraklabs/repotoire/pkg/graph"
	"github.com/kraklabs/repotoire/pkg/walk"
)

// DetectorScope declares how a detector wants to be invoked: over
// individual source files, over the whole prefetched graph, or both (graph
// first to find candidates, file scan second to confirm).
type DetectorScope string

const (
	ScopePerFile    DetectorScope = "per_file"
	ScopeWholeGraph DetectorScope = "whole_graph"
	ScopeHybrid     DetectorScope = "hybrid"
)

// ThresholdSource records whether a threshold value came from a detector's
// hard-coded default or from a predictive (calibrated) resolver.
type ThresholdSource string

const (
	ThresholdStatic     ThresholdSource = "static"
	ThresholdPredictive ThresholdSource = "predictive"
)

// ThresholdResolver resolves a named adaptive threshold from a style
// profile calibrated across prior runs. Detectors fall back to their own
// hard-coded default when Resolve reports !ok.
type ThresholdResolver interface {
	Resolve(name string, def float64) (value float64, ok bool)
}

// ResolveThreshold looks up name in resolver (if non-nil) and returns the
// value plus which source satisfied it, for recording in a finding's
// ThresholdMeta.
func ResolveThreshold(resolver ThresholdResolver, name string, def float64) (float64, ThresholdSource) {
	if resolver != nil {
		if v, ok := resolver.Resolve(name, def); ok {
			return v, ThresholdPredictive
		}
	}
	return def, ThresholdStatic
}

// DetectorConfig is the configuration a single detector run observes: a
// free-form option bag, an optional adaptive-threshold resolver, and a
// project-type hint (e.g. "python", "go", "node") detectors may use to
// narrow pattern tables.
type DetectorConfig struct {
	Options         map[string]any
	Resolver        ThresholdResolver
	ProjectTypeHint string
}

// Bool returns a boolean option, defaulting to def when absent or of the
// wrong type.
func (c DetectorConfig) Bool(name string, def bool) bool {
	if v, ok := c.Options[name]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Float returns a numeric option, defaulting to def when absent or of the
// wrong type.
func (c DetectorConfig) Float(name string, def float64) float64 {
	if v, ok := c.Options[name]; ok {
		switch t := v.(type) {
		case float64:
			return t
		case int:
			return float64(t)
		}
	}
	return def
}

// Int returns an integer option, defaulting to def when absent or of the
// wrong type.
func (c DetectorConfig) Int(name string, def int) int {
	return int(c.Float(name, float64(def)))
}

// String returns a string option, defaulting to def when absent or of the
// wrong type.
func (c DetectorConfig) String(name string, def string) string {
	if v, ok := c.Options[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// ProgressCallback is invoked by long-running detectors to report
// granular progress (e.g. per file scanned) back to the engine.
type ProgressCallback func(completed, total int)

// DetectionSummary is the per-detector outcome the engine records after a
// run, independent of the findings themselves.
type DetectionSummary struct {
	DetectorName string
	FindingCount int
	Duration     time.Duration
	TimedOut     bool
	Err          error
}

// Detector is a single analysis rule: it knows its own identity and
// configuration, declares how it wants to be invoked, and produces
// findings from a prefetched graph and/or a file list.
type Detector interface {
	Name() string
	Description() string
	Category() string
	Config() DetectorConfig
	Scope() DetectorScope
	Detect(ctx context.Context, qc *graph.QueryCache, files []string) ([]finding.Finding, error)
}

// ApplyPathDowngrade applies the monotonic test/vendor/generated severity
// downgrade to f in place: Critical→Medium, High→Low, Medium→Low, Low→Low.
// Info findings are left untouched since they carry no risk to downgrade.
func ApplyPathDowngrade(f *finding.Finding, class walk.PathClass) {
	if class != walk.ClassTest && class != walk.ClassVendor && class != walk.ClassGenerated {
		return
	}
	switch f.Severity {
	case finding.Critical, finding.High, finding.Medium:
		f.Severity = f.Severity.Downgrade()
	case finding.Low:
		f.Severity = finding.Low
	}
}

// DeterministicID derives a stable finding ID from the detector name, file
// path, line, and description, so the same finding re-emitted across runs
// keeps the same identity (required for incremental-cache reuse and voting
// dedup).
func DeterministicID(detector, path string, line int, description string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s", detector, path, line, description)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
