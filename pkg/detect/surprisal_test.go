// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"context"
	"fmt"
	"strings"
	"testing"

	ktesting "github.com/kraklabs/repotoire/internal/testing"
	"github.com/kraklabs/repotoire/pkg/graph"
)

func TestSurprisalDetectorFlagsOutlierFunction(t *testing.T) {
	dir := t.TempDir()
	s := ktesting.NewTestStore(t)

	var normalLines []string
	lineNum := 1
	for i := 0; i < 150; i++ {
		start := lineNum
		for j := 0; j < 10; j++ {
			normalLines = append(normalLines, "val = 1")
			lineNum++
		}
		end := lineNum - 1
		path := normalPathFor(dir)
		ktesting.InsertTestFile(t, s, path, lineNum)
		ktesting.InsertTestFunction(t, s, path, fmt.Sprintf("normal%d", i), start, end, 1.0)
	}
	normalContent := strings.Join(normalLines, "\n") + "\n"
	normalPath := writeFile(t, dir, "normal.go", normalContent)

	var weirdLines []string
	for i := 0; i < 10; i++ {
		weirdLines = append(weirdLines, "@#$ %^&* ()_+ {}| :<> ?~`")
	}
	weirdContent := strings.Join(weirdLines, "\n") + "\n"
	weirdPath := writeFile(t, dir, "weird.go", weirdContent)
	ktesting.InsertTestFile(t, s, weirdPath, len(weirdLines))
	ktesting.InsertTestFunction(t, s, weirdPath, "weirdFunc", 1, len(weirdLines), 1.0)

	qc := graph.NewQueryCache(s)
	qc.Prefetch()

	d := NewSurprisalDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), qc, []string{normalPath, weirdPath})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) == 0 {
		t.Fatal("expected at least one surprisal finding")
	}
	found := false
	for _, f := range findings {
		if f.AffectedFiles[0] == weirdPath {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the outlier function's file to be flagged, got findings: %+v", findings)
	}
}

func TestSurprisalDetectorNoFindingsWhenUnderTrained(t *testing.T) {
	dir := t.TempDir()
	s := ktesting.NewTestStore(t)
	path := writeFile(t, dir, "tiny.go", "val = 1\nval = 2\nval = 3\nval = 4\nval = 5\nval = 6\nval = 7\nval = 8\n")
	ktesting.InsertTestFile(t, s, path, 8)
	ktesting.InsertTestFunction(t, s, path, "tiny", 1, 8, 1.0)

	qc := graph.NewQueryCache(s)
	qc.Prefetch()

	d := NewSurprisalDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), qc, []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("expected no findings below training confidence threshold, got %d", len(findings))
	}
}

func TestSurprisalDetectorSkipsSuppressedFunction(t *testing.T) {
	dir := t.TempDir()
	s := ktesting.NewTestStore(t)

	var normalLines []string
	lineNum := 1
	for i := 0; i < 150; i++ {
		start := lineNum
		for j := 0; j < 10; j++ {
			normalLines = append(normalLines, "val = 1")
			lineNum++
		}
		end := lineNum - 1
		path := normalPathFor(dir)
		ktesting.InsertTestFile(t, s, path, lineNum)
		ktesting.InsertTestFunction(t, s, path, fmt.Sprintf("normal%d", i), start, end, 1.0)
	}
	normalContent := strings.Join(normalLines, "\n") + "\n"
	normalPath := writeFile(t, dir, "normal.go", normalContent)

	weirdLines := []string{"@#$ %^&* ()_+ {}| :<> ?~` // repotoire:ignore[code_surprisal]"}
	for i := 0; i < 9; i++ {
		weirdLines = append(weirdLines, "@#$ %^&* ()_+ {}| :<> ?~`")
	}
	weirdContent := strings.Join(weirdLines, "\n") + "\n"
	weirdPath := writeFile(t, dir, "weird.go", weirdContent)
	ktesting.InsertTestFile(t, s, weirdPath, len(weirdLines))
	ktesting.InsertTestFunction(t, s, weirdPath, "weirdFunc", 1, len(weirdLines), 1.0)

	qc := graph.NewQueryCache(s)
	qc.Prefetch()

	d := NewSurprisalDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), qc, []string{normalPath, weirdPath})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	for _, f := range findings {
		if f.AffectedFiles[0] == weirdPath {
			t.Errorf("expected suppressed function's file to yield no findings, got %+v", f)
		}
	}
}

func normalPathFor(dir string) string {
	return dir + "/normal.go"
}
