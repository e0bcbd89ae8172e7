// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kraklabs/repotoire/pkg/finding"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func testFinding(file string) finding.Finding {
	return finding.Finding{
		ID:            "test-1",
		Detector:      "TestDetector",
		Severity:      finding.Medium,
		Title:         "Test finding",
		Description:   "Test description",
		AffectedFiles: []string{file},
		LineStart:     10,
		LineEnd:       20,
	}
}

func TestNewCacheEmpty(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, nil)
	stats := c.Stats()
	if stats.CachedFiles != 0 || stats.CacheVersion != cacheVersion {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestFileHashStableAndSensitive(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "test.txt", "hello world")

	c := New(dir, nil)
	h1 := c.GetFileHash(path)
	h2 := c.GetFileHash(path)
	if h1 != h2 {
		t.Fatalf("hash not stable: %s vs %s", h1, h2)
	}

	writeFile(t, dir, "test.txt", "changed content")
	h3 := c.GetFileHash(path)
	if h1 == h3 {
		t.Fatal("expected hash to change with content")
	}
}

func TestCacheFindingsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "test.py", "def test(): pass")

	c := New(dir, nil)
	c.CacheFindings(path, []finding.Finding{testFinding(path)})

	got := c.GetCachedFindings(path)
	if len(got) != 1 || got[0].ID != "test-1" {
		t.Fatalf("GetCachedFindings = %v", got)
	}
}

func TestStaleFindingsReturnNilButEntryStays(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "test.py", "original")

	c := New(dir, nil)
	c.CacheFindings(path, []finding.Finding{testFinding(path)})

	writeFile(t, dir, "test.py", "changed")
	if got := c.GetCachedFindings(path); got != nil {
		t.Fatalf("expected nil for stale entry, got %v", got)
	}
	if c.Stats().CachedFiles != 1 {
		t.Fatal("stale entry should not be removed")
	}
}

func TestGetChangedFiles(t *testing.T) {
	dir := t.TempDir()
	f1 := writeFile(t, dir, "file1.py", "content1")
	f2 := writeFile(t, dir, "file2.py", "content2")

	c := New(dir, nil)
	c.CacheFindings(f1, nil)

	changed := c.GetChangedFiles([]string{f1, f2})
	if len(changed) != 1 || changed[0] != f2 {
		t.Fatalf("GetChangedFiles = %v", changed)
	}
}

func TestGraphCache(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, nil)

	c.CacheGraphFindings("TestDetector", []finding.Finding{testFinding("test.py")})
	c.UpdateGraphHash("hash123")

	if c.IsGraphChanged("hash123") {
		t.Error("expected graph not changed for matching hash")
	}
	if !c.IsGraphChanged("different") {
		t.Error("expected graph changed for differing hash")
	}

	cached := c.GetCachedGraphFindings("TestDetector")
	if len(cached) != 1 {
		t.Fatalf("GetCachedGraphFindings = %v", cached)
	}
	all := c.GetAllCachedGraphFindings()
	if len(all) != 1 {
		t.Fatalf("GetAllCachedGraphFindings = %v", all)
	}
}

func TestInvalidation(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "test.py", "content")

	c := New(dir, nil)
	c.CacheFindings(path, []finding.Finding{testFinding(path)})
	if c.Stats().CachedFiles != 1 {
		t.Fatal("expected one cached file")
	}

	c.InvalidateFile(path)
	if c.Stats().CachedFiles != 0 {
		t.Fatal("expected invalidated file removed")
	}

	c.CacheFindings(path, []finding.Finding{testFinding(path)})
	c.InvalidateAll()
	if c.Stats().CachedFiles != 0 {
		t.Fatal("expected InvalidateAll to clear everything")
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "test.py", "content")

	c := New(dir, nil)
	c.CacheFindings(path, []finding.Finding{testFinding(path)})
	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := New(dir, nil)
	got := reloaded.GetCachedFindings(path)
	if len(got) != 1 || got[0].ID != "test-1" {
		t.Fatalf("reloaded findings = %v", got)
	}
}

func TestHasCache(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, nil)
	if c.HasCache() {
		t.Fatal("fresh cache should report HasCache() == false")
	}
	c.CacheGraphFindings("TestDetector", []finding.Finding{testFinding("test.py")})
	if !c.HasCache() {
		t.Fatal("expected HasCache() true after caching graph-detector findings")
	}
}

func TestVersionMismatchTriggersInvalidation(t *testing.T) {
	dir := t.TempDir()
	cacheFile := filepath.Join(dir, "findings_cache.json")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cacheFile, []byte(`{"version":999,"files":{},"graph":{"detectors":{}}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New(dir, nil)
	if c.Stats().CachedFiles != 0 || c.Stats().CacheVersion != cacheVersion {
		t.Fatalf("expected reset on version mismatch, got %+v", c.Stats())
	}
}
