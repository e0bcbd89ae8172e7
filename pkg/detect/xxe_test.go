// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"context"
	"testing"

	ktesting "github.com/kraklabs/repotoire/internal/testing"
	"github.com/kraklabs/repotoire/pkg/graph"
)

func TestXXEDetectorFlagsTaintedSendFile(t *testing.T) {
	dir := t.TempDir()
	content := "def download(request):\n" +
		"    path = request.args\n" +
		"    return send_file(path)\n"
	path := writeFile(t, dir, "views.py", content)

	s := ktesting.NewTestStore(t)
	ktesting.InsertTestFile(t, s, path, 3)
	ktesting.InsertTestFunction(t, s, path, "download", 1, 3, 1.0)

	qc := graph.NewQueryCache(s)
	qc.Prefetch()

	d := NewXXEDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), qc, []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) == 0 {
		t.Fatal("expected at least one finding for tainted send_file")
	}
	if findings[0].CWEID != "CWE-611" {
		t.Errorf("expected CWE-611, got %s", findings[0].CWEID)
	}
}

func TestXXEDetectorFallbackWhenNoFunctionNode(t *testing.T) {
	dir := t.TempDir()
	content := "path = request.args\nsend_file(path)\n"
	path := writeFile(t, dir, "orphan.py", content)

	qc := graph.NewQueryCache(graph.NewStore())
	qc.Prefetch()

	d := NewXXEDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), qc, []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) == 0 {
		t.Fatal("expected the fallback file scan to flag the tainted send_file")
	}
}

func TestXXEDetectorNoFindingsForCleanCode(t *testing.T) {
	dir := t.TempDir()
	content := "def download(path):\n    return send_file(safe_path(path))\n"
	path := writeFile(t, dir, "views.py", content)

	s := ktesting.NewTestStore(t)
	ktesting.InsertTestFile(t, s, path, 2)
	ktesting.InsertTestFunction(t, s, path, "download", 1, 2, 1.0)

	qc := graph.NewQueryCache(s)
	qc.Prefetch()

	d := NewXXEDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), qc, []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no findings for code with no tainted source, got %d", len(findings))
	}
}
