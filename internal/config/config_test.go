// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Detectors) != 0 {
		t.Errorf("expected no detector overrides, got %+v", cfg.Detectors)
	}
	if cfg.Scoring.SecurityMultiplier != 1.0 {
		t.Errorf("expected default security multiplier 1.0, got %v", cfg.Scoring.SecurityMultiplier)
	}
}

func TestLoadNormalizesDetectorKeysAndWeights(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".repotoire"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := `
detectors:
  GodClassDetector:
    enabled: false
    severity: high
  pickle-detector:
    thresholds:
      max_findings: 10
scoring:
  security_multiplier: 2.0
  pillar_weights:
    structure: 2
    quality: 1
    architecture: 1
exclude:
  paths:
    - "vendor/**"
defaults:
  format: json
  workers: 4
`
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, ok := cfg.OverrideFor("GodClassDetector"); !ok {
		t.Error("expected GodClassDetector override to be found by its PascalCase name")
	}
	if o, ok := cfg.OverrideFor("god_class"); !ok || o.Severity != "high" {
		t.Errorf("expected normalized key god_class to resolve, got ok=%v override=%+v", ok, o)
	}
	if _, ok := cfg.OverrideFor("PickleDetector"); !ok {
		t.Error("expected kebab-case pickle-detector to resolve under PascalCase lookup")
	}

	if cfg.Scoring.SecurityMultiplier != 2.0 {
		t.Errorf("expected security multiplier 2.0, got %v", cfg.Scoring.SecurityMultiplier)
	}
	sum := cfg.Scoring.PillarWeights.Structure + cfg.Scoring.PillarWeights.Quality + cfg.Scoring.PillarWeights.Architecture
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("expected pillar weights to normalize to 1.0, got sum %v", sum)
	}
	if cfg.Scoring.PillarWeights.Structure <= cfg.Scoring.PillarWeights.Quality {
		t.Errorf("expected structure weight (2) to remain proportionally larger than quality (1), got %+v", cfg.Scoring.PillarWeights)
	}

	if len(cfg.Exclude.Paths) != 1 || cfg.Exclude.Paths[0] != "vendor/**" {
		t.Errorf("expected exclude paths to carry through, got %+v", cfg.Exclude.Paths)
	}
	if cfg.Defaults.Format != "json" || cfg.Defaults.Workers != 4 {
		t.Errorf("expected defaults to carry through, got %+v", cfg.Defaults)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".repotoire"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("detectors: [this is not a map"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected malformed YAML to be rejected")
	}
}
