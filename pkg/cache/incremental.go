// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package cache provides incremental, content-hash-keyed caching of detector
// findings so repeat analysis runs only re-examine changed files.
package cache

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/kraklabs/repotoire/pkg/finding"
)

// cacheVersion is bumped whenever the on-disk schema changes; a mismatch
// triggers a silent full invalidation rather than a user-visible parse error.
const cacheVersion = 1

// hashBufferSize is the chunk size used when hashing file contents.
const hashBufferSize = 64 * 1024

// CachedFinding is the on-disk representation of a finding.Finding.
type CachedFinding struct {
	ID              string            `json:"id"`
	Detector        string            `json:"detector"`
	Severity        string            `json:"severity"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	AffectedFiles   []string          `json:"affected_files"`
	LineStart       int               `json:"line_start,omitempty"`
	LineEnd         int               `json:"line_end,omitempty"`
	SuggestedFix    string            `json:"suggested_fix,omitempty"`
	EstimatedEffort string            `json:"estimated_effort,omitempty"`
	Category        string            `json:"category,omitempty"`
	CWEID           string            `json:"cwe_id,omitempty"`
	WhyItMatters    string            `json:"why_it_matters,omitempty"`
	Confidence      float64           `json:"confidence,omitempty"`
	ThresholdMeta   map[string]string `json:"threshold_metadata,omitempty"`
}

func fromFinding(f *finding.Finding) CachedFinding {
	return CachedFinding{
		ID:              f.ID,
		Detector:        f.Detector,
		Severity:        string(f.Severity),
		Title:           f.Title,
		Description:     f.Description,
		AffectedFiles:   append([]string(nil), f.AffectedFiles...),
		LineStart:       f.LineStart,
		LineEnd:         f.LineEnd,
		SuggestedFix:    f.SuggestedFix,
		EstimatedEffort: f.EstimatedEffort,
		Category:        f.Category,
		CWEID:           f.CWEID,
		WhyItMatters:    f.WhyItMatters,
		Confidence:      f.Confidence,
		ThresholdMeta:   f.ThresholdMeta,
	}
}

func (c CachedFinding) toFinding() finding.Finding {
	return finding.Finding{
		ID:              c.ID,
		Detector:        c.Detector,
		Severity:        finding.ParseSeverity(c.Severity),
		Title:           c.Title,
		Description:     c.Description,
		AffectedFiles:   append([]string(nil), c.AffectedFiles...),
		LineStart:       c.LineStart,
		LineEnd:         c.LineEnd,
		SuggestedFix:    c.SuggestedFix,
		EstimatedEffort: c.EstimatedEffort,
		Category:        c.Category,
		CWEID:           c.CWEID,
		WhyItMatters:    c.WhyItMatters,
		Confidence:      c.Confidence,
		ThresholdMeta:   c.ThresholdMeta,
	}
}

// CachedFile is a single file's cache entry.
type CachedFile struct {
	Hash      string          `json:"content_hash"`
	Findings  []CachedFinding `json:"findings"`
	Timestamp int64           `json:"timestamp"`
}

// GraphCache holds the whole-graph detector cache.
type GraphCache struct {
	Hash      string                     `json:"graph_hash,omitempty"`
	Detectors map[string][]CachedFinding `json:"detectors"`
}

// cacheData is the full on-disk schema.
type cacheData struct {
	Version int                   `json:"version"`
	Files   map[string]CachedFile `json:"files"`
	Graph   GraphCache            `json:"graph"`
}

func newCacheData() cacheData {
	return cacheData{
		Version: cacheVersion,
		Files:   make(map[string]CachedFile),
		Graph:   GraphCache{Detectors: make(map[string][]CachedFinding)},
	}
}

// CacheStats summarizes the cache's current contents.
type CacheStats struct {
	CachedFiles    int    `json:"cached_files"`
	TotalFindings  int    `json:"total_findings"`
	GraphHash      string `json:"graph_hash,omitempty"`
	GraphDetectors int    `json:"graph_detectors"`
	GraphFindings  int    `json:"graph_findings"`
	CacheVersion   int    `json:"cache_version"`
}

// IncrementalCache fingerprints file contents and the overall graph shape so
// that repeat runs only re-run detectors where something actually changed.
// Persisted as JSON under the repository's cache directory.
type IncrementalCache struct {
	mu sync.Mutex

	cacheDir  string
	cacheFile string

	data  cacheData
	dirty bool

	logger *slog.Logger
}

// New opens (or initializes) a cache rooted at cacheDir. Load failures are
// logged and treated as an empty cache — a corrupt cache file never blocks
// analysis.
func New(cacheDir string, logger *slog.Logger) *IncrementalCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &IncrementalCache{
		cacheDir:  cacheDir,
		cacheFile: filepath.Join(cacheDir, "findings_cache.json"),
		data:      newCacheData(),
		logger:    logger,
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		logger.Warn("cache.mkdir_failed", "dir", cacheDir, "error", err)
	}
	if err := c.load(); err != nil {
		logger.Debug("cache.load_failed", "file", c.cacheFile, "error", err)
	}
	return c
}

func (c *IncrementalCache) load() error {
	f, err := os.Open(c.cacheFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	var data cacheData
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return err
	}

	if data.Version != cacheVersion {
		c.logger.Info("cache.version_mismatch", "got", data.Version, "want", cacheVersion)
		c.data = newCacheData()
		c.dirty = true
		return nil
	}
	if data.Files == nil {
		data.Files = make(map[string]CachedFile)
	}
	if data.Graph.Detectors == nil {
		data.Graph.Detectors = make(map[string][]CachedFinding)
	}
	c.data = data
	return nil
}

// Save persists the cache to disk if it has unsaved changes, via a
// write-temp-then-rename sequence so readers never observe a partial file.
func (c *IncrementalCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *IncrementalCache) saveLocked() error {
	if !c.dirty {
		return nil
	}

	tmp := c.cacheFile + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(c.data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, c.cacheFile); err != nil {
		return err
	}
	c.dirty = false
	c.logger.Debug("cache.saved", "files", len(c.data.Files))
	return nil
}

// Close is an alias for Save, matching the teacher's explicit-lifecycle
// pattern (Go has no destructor to hook a save into).
func (c *IncrementalCache) Close() error { return c.Save() }

// GetFileHash computes a stable content hash for the file at path.
func (c *IncrementalCache) GetFileHash(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return "error:" + path
	}
	defer f.Close()

	h := xxhash.New()
	buf := make([]byte, hashBufferSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "error:" + path
		}
	}
	return formatHash(h.Sum64())
}

func formatHash(h uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[h&0xf]
		h >>= 4
	}
	return string(buf)
}

func (c *IncrementalCache) pathKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// IsFileChanged reports whether path's content hash differs from what is
// cached (or is absent from the cache entirely).
func (c *IncrementalCache) IsFileChanged(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.data.Files[c.pathKey(path)]
	if !ok {
		return true
	}
	return cached.Hash != c.GetFileHash(path)
}

// GetCachedFindings returns the cached findings for path, or nil if the
// entry is absent or stale. A stale entry is left in place, not removed.
func (c *IncrementalCache) GetCachedFindings(path string) []finding.Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.data.Files[c.pathKey(path)]
	if !ok {
		return nil
	}
	if cached.Hash != c.GetFileHash(path) {
		return nil
	}
	out := make([]finding.Finding, len(cached.Findings))
	for i, cf := range cached.Findings {
		out[i] = cf.toFinding()
	}
	return out
}

// CacheFindings stores findings for path under its current content hash.
func (c *IncrementalCache) CacheFindings(path string, findings []finding.Finding) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached := make([]CachedFinding, len(findings))
	for i := range findings {
		cached[i] = fromFinding(&findings[i])
	}

	c.data.Files[c.pathKey(path)] = CachedFile{
		Hash:      c.GetFileHash(path),
		Findings:  cached,
		Timestamp: time.Now().Unix(),
	}
	c.dirty = true
}

// GetChangedFiles filters allFiles down to those whose content hash is
// absent from or differs from the cache.
func (c *IncrementalCache) GetChangedFiles(allFiles []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := make([]string, 0, len(allFiles))
	for _, path := range allFiles {
		cached, ok := c.data.Files[c.pathKey(path)]
		if !ok || cached.Hash != c.GetFileHash(path) {
			changed = append(changed, path)
		}
	}
	c.logger.Debug("cache.changed_files", "changed", len(changed), "total", len(allFiles))
	return changed
}

// InvalidateFile removes path's cache entry.
func (c *IncrementalCache) InvalidateFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.pathKey(path)
	if _, ok := c.data.Files[key]; ok {
		delete(c.data.Files, key)
		c.dirty = true
	}
}

// InvalidateAll clears the entire cache.
func (c *IncrementalCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = newCacheData()
	c.dirty = true
}

// IsGraphChanged reports whether currentHash differs from the cached graph
// hash (or none is cached yet).
func (c *IncrementalCache) IsGraphChanged(currentHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Graph.Hash != currentHash
}

// CacheGraphFindings stores findings produced by a whole-graph detector.
func (c *IncrementalCache) CacheGraphFindings(detector string, findings []finding.Finding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached := make([]CachedFinding, len(findings))
	for i := range findings {
		cached[i] = fromFinding(&findings[i])
	}
	c.data.Graph.Detectors[detector] = cached
	c.dirty = true
}

// GetCachedGraphFindings returns the cached findings for a single
// whole-graph detector.
func (c *IncrementalCache) GetCachedGraphFindings(detector string) []finding.Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.data.Graph.Detectors[detector]
	if !ok {
		return nil
	}
	out := make([]finding.Finding, len(cached))
	for i, cf := range cached {
		out[i] = cf.toFinding()
	}
	return out
}

// GetAllCachedGraphFindings returns cached findings from every whole-graph
// detector.
func (c *IncrementalCache) GetAllCachedGraphFindings() []finding.Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []finding.Finding
	for _, cached := range c.data.Graph.Detectors {
		for _, cf := range cached {
			out = append(out, cf.toFinding())
		}
	}
	return out
}

// UpdateGraphHash records the current graph hash after a run of whole-graph
// detectors.
func (c *IncrementalCache) UpdateGraphHash(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Graph.Hash = hash
	c.dirty = true
}

// HasCache reports whether any file-level or graph-level entry is present.
func (c *IncrementalCache) HasCache() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data.Files) > 0 || len(c.data.Graph.Detectors) > 0
}

// Stats reports cache size counters.
func (c *IncrementalCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	totalFindings := 0
	for _, cf := range c.data.Files {
		totalFindings += len(cf.Findings)
	}
	graphFindings := 0
	for _, cf := range c.data.Graph.Detectors {
		graphFindings += len(cf)
	}

	return CacheStats{
		CachedFiles:    len(c.data.Files),
		TotalFindings:  totalFindings,
		GraphHash:      c.data.Graph.Hash,
		GraphDetectors: len(c.data.Graph.Detectors),
		GraphFindings:  graphFindings,
		CacheVersion:   c.data.Version,
	}
}
