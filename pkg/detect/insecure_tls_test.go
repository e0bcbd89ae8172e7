// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kraklabs/repotoire/pkg/finding"
	"github.com/kraklabs/repotoire/pkg/graph"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestInsecureTLSPythonVerifyFalse(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "client.py", "response = requests.get(url, verify=False)\n")

	d := NewInsecureTLSDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].Severity != finding.High {
		t.Errorf("expected High severity, got %s", findings[0].Severity)
	}
}

func TestInsecureTLSGoInsecureSkipVerify(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "client.go", "tlsConfig := &tls.Config{InsecureSkipVerify: true}\n")

	d := NewInsecureTLSDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
}

func TestInsecureTLSTestFileDowngraded(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, filepath.Join("tests", "test_client.py"), "response = requests.get(url, verify=False)\n")

	d := NewInsecureTLSDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].Severity != finding.Low {
		t.Errorf("expected High->Low downgrade in test path, got %s", findings[0].Severity)
	}
}

func TestInsecureTLSCleanCodeNoFindings(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "client.py", "response = requests.get(url)\nprint(response.status_code)\n")

	d := NewInsecureTLSDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no findings, got %d", len(findings))
	}
}

func TestInsecureTLSSuppressedLineSkipped(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "client.py", "response = requests.get(url, verify=False)  # repotoire:ignore\n")

	d := NewInsecureTLSDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected suppressed line to yield no findings, got %d", len(findings))
	}
}
