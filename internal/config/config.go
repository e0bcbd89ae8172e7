// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package config loads and normalizes the project-local analysis
// configuration: per-detector overrides, scoring weights, path exclusions,
// and CLI defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	kerrors "github.com/kraklabs/repotoire/internal/errors"
)

// FileName is the fixed project-local config file name searched for under
// the repository root.
const FileName = ".repotoire/project.yaml"

// DetectorOverride holds per-detector configuration overrides.
type DetectorOverride struct {
	Enabled    *bool              `yaml:"enabled"`
	Severity   string             `yaml:"severity"`
	Thresholds map[string]float64 `yaml:"thresholds"`
}

// PillarWeights weights the three scoring pillars; normalized to sum 1.
type PillarWeights struct {
	Structure    float64 `yaml:"structure"`
	Quality      float64 `yaml:"quality"`
	Architecture float64 `yaml:"architecture"`
}

// Scoring configures the overall severity/score weighting.
type Scoring struct {
	SecurityMultiplier float64       `yaml:"security_multiplier"`
	PillarWeights      PillarWeights `yaml:"pillar_weights"`
}

// Defaults configures CLI defaults applied when a flag is not given
// explicitly.
type Defaults struct {
	Format        string   `yaml:"format"`
	Severity      string   `yaml:"severity"`
	Workers       int      `yaml:"workers"`
	PerPage       int      `yaml:"per_page"`
	SkipDetectors []string `yaml:"skip_detectors"`
	Thorough      bool     `yaml:"thorough"`
	NoGit         bool     `yaml:"no_git"`
	NoEmoji       bool     `yaml:"no_emoji"`
	FailOn        string   `yaml:"fail_on"`
}

// Exclude configures paths excluded from analysis.
type Exclude struct {
	Paths []string `yaml:"paths"`
}

// rawProjectConfig mirrors the on-disk YAML shape before normalization.
type rawProjectConfig struct {
	Detectors map[string]DetectorOverride `yaml:"detectors"`
	Scoring   Scoring                     `yaml:"scoring"`
	Exclude   Exclude                     `yaml:"exclude"`
	Defaults  Defaults                    `yaml:"defaults"`
}

// ProjectConfig is the fully loaded and normalized project configuration.
// Detector keys are normalized: PascalCase/snake_case/kebab-case all fold
// to the same lowercase-with-underscores key, and a trailing "-detector"
// or "_detector" suffix is stripped.
type ProjectConfig struct {
	Detectors map[string]DetectorOverride
	Scoring   Scoring
	Exclude   Exclude
	Defaults  Defaults
}

// Default returns the zero-configuration ProjectConfig: no overrides, even
// pillar weights, no exclusions, zero-value defaults.
func Default() ProjectConfig {
	return ProjectConfig{
		Detectors: map[string]DetectorOverride{},
		Scoring: Scoring{
			SecurityMultiplier: 1.0,
			PillarWeights:      PillarWeights{Structure: 1.0 / 3, Quality: 1.0 / 3, Architecture: 1.0 / 3},
		},
	}
}

// Load reads and normalizes the project config file under repoRoot. A
// missing file is not an error: Load returns Default(). A malformed file
// is a KindConfigInvalid error.
func Load(repoRoot string) (ProjectConfig, error) {
	path := filepath.Join(repoRoot, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return ProjectConfig{}, kerrors.NewIOError(
			"cannot read project config",
			err.Error(),
			"check file permissions on "+path,
			err,
		)
	}

	var raw rawProjectConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ProjectConfig{}, kerrors.NewConfigInvalidError(
			"project config is not valid YAML",
			err.Error(),
			"fix the YAML syntax in "+path,
			err,
		)
	}

	return normalize(raw)
}

func normalize(raw rawProjectConfig) (ProjectConfig, error) {
	cfg := Default()
	cfg.Exclude = raw.Exclude
	cfg.Defaults = raw.Defaults

	cfg.Detectors = make(map[string]DetectorOverride, len(raw.Detectors))
	for key, override := range raw.Detectors {
		cfg.Detectors[normalizeDetectorKey(key)] = override
	}

	cfg.Scoring.SecurityMultiplier = raw.Scoring.SecurityMultiplier
	if cfg.Scoring.SecurityMultiplier == 0 {
		cfg.Scoring.SecurityMultiplier = 1.0
	}

	weights := raw.Scoring.PillarWeights
	total := weights.Structure + weights.Quality + weights.Architecture
	if total <= 0 {
		cfg.Scoring.PillarWeights = PillarWeights{Structure: 1.0 / 3, Quality: 1.0 / 3, Architecture: 1.0 / 3}
	} else {
		cfg.Scoring.PillarWeights = PillarWeights{
			Structure:    weights.Structure / total,
			Quality:      weights.Quality / total,
			Architecture: weights.Architecture / total,
		}
	}

	return cfg, nil
}

// normalizeDetectorKey folds PascalCase/snake_case/kebab-case detector
// names to a single lowercase-underscore key and strips a trailing
// "-detector"/"_detector" suffix so "GodClassDetector", "god-class-detector",
// and "god_class" all resolve to the same override entry.
func normalizeDetectorKey(key string) string {
	lower := toSnakeCase(key)
	lower = strings.TrimSuffix(lower, "_detector")
	return lower
}

func toSnakeCase(s string) string {
	s = strings.ReplaceAll(s, "-", "_")
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] != '_' {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "_")
}

// OverrideFor looks up the normalized override for a detector name,
// applying the same key normalization used when loading the config.
func (c ProjectConfig) OverrideFor(detectorName string) (DetectorOverride, bool) {
	o, ok := c.Detectors[normalizeDetectorKey(detectorName)]
	return o, ok
}
