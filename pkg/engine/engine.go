// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package engine orchestrates a single analysis run: it loads project
// configuration, decides an execution mode, builds the graph and its
// derived indexes once, dispatches detectors in parallel, and folds their
// findings through the voting, risk, and root-cause stages.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/repotoire/internal/config"
	kerrors "github.com/kraklabs/repotoire/internal/errors"
	"github.com/kraklabs/repotoire/internal/output"
	"github.com/kraklabs/repotoire/pkg/cache"
	"github.com/kraklabs/repotoire/pkg/ctxmodel"
	"github.com/kraklabs/repotoire/pkg/detect"
	"github.com/kraklabs/repotoire/pkg/finding"
	"github.com/kraklabs/repotoire/pkg/graph"
	"github.com/kraklabs/repotoire/pkg/metrics"
	"github.com/kraklabs/repotoire/pkg/risk"
	"github.com/kraklabs/repotoire/pkg/rootcause"
	"github.com/kraklabs/repotoire/pkg/vcs"
	"github.com/kraklabs/repotoire/pkg/voting"
	"github.com/kraklabs/repotoire/pkg/walk"
)

// Mode names the execution mode a run resolved to.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
	ModeSince       Mode = "since"
)

// defaultExtensions is the source-file extension whitelist the walker
// applies when the caller doesn't supply its own.
var defaultExtensions = []string{
	"py", "pyi", "ts", "tsx", "js", "jsx", "mjs", "cjs", "rs", "go",
	"java", "c", "h", "cpp", "hpp", "cc", "cs", "kt", "kts", "rb", "php", "swift",
}

// cacheDirName is the fixed, repo-relative cache directory name.
const cacheDirName = ".repotoire/cache"

// GraphBuilder builds (or updates) the code graph from a file list. The
// production implementation is a language-parser adapter external to this
// module; DefaultGraphBuilder provides a minimal structural builder (one
// File node per path, sized by line count) sufficient to exercise the
// pipeline when no richer adapter is wired in.
type GraphBuilder interface {
	BuildGraph(ctx context.Context, files []string) (*graph.Store, error)
}

// Options configures a single engine run.
type Options struct {
	RepoRoot   string
	Workers    int
	Extensions []string

	// Since, when non-empty, selects since-mode and is validated before any
	// git invocation. Incremental selects incremental mode. Mode precedence
	// is since > incremental > full.
	Since       string
	Incremental bool

	SkipDetectors      []string
	ProjectTypeHint    string
	FindingsPerFileCap int
	FailOn             string
	DetectorTimeout    time.Duration

	Builder GraphBuilder
	Logger  *slog.Logger
}

// Result is the outcome of a single Run.
type Result struct {
	Mode     Mode
	Findings []finding.Finding
	Warnings []output.RunWarning

	VotingStats     voting.Stats
	RiskAssessments []risk.Assessment
	RootCauses      []rootcause.Summary
	FilesAnalyzed   int
	Duration        time.Duration
}

// Engine runs repeated analyses against one repository root.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// New constructs an Engine, backfilling zero-value Options with defaults.
func New(opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = defaultExtensions
	}
	if opts.FindingsPerFileCap <= 0 {
		opts.FindingsPerFileCap = 50
	}
	if opts.FailOn == "" {
		opts.FailOn = string(finding.Low)
	}
	if opts.Builder == nil {
		opts.Builder = DefaultGraphBuilder{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{opts: opts, logger: logger}
}

// resolveMode applies the since > incremental > full precedence.
func (e *Engine) resolveMode() (Mode, error) {
	if e.opts.Since != "" {
		if err := vcs.ValidateSince(e.opts.Since); err != nil {
			return "", kerrors.NewInvalidSinceError(e.opts.Since)
		}
		return ModeSince, nil
	}
	if e.opts.Incremental {
		return ModeIncremental, nil
	}
	return ModeFull, nil
}

// Run executes one analysis: file selection, graph construction, parallel
// detector dispatch, and the voting/risk/root-cause aggregation stages.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	defer func() { metrics.RecordRunDuration(time.Since(start).Seconds()) }()

	mode, err := e.resolveMode()
	if err != nil {
		return nil, err
	}
	e.logger.Info("engine.run.start", "repo_root", e.opts.RepoRoot, "mode", string(mode), "workers", e.opts.Workers)

	projectCfg, err := config.Load(e.opts.RepoRoot)
	if err != nil {
		return nil, err
	}

	allFiles, err := walk.WalkSourceFiles(e.opts.RepoRoot, e.opts.Extensions)
	if err != nil {
		return nil, err
	}

	var incCache *cache.IncrementalCache
	if mode == ModeIncremental {
		incCache = cache.New(filepath.Join(e.opts.RepoRoot, cacheDirName), e.logger)
	}

	selected, cachedFindings, warnings, err := e.selectFiles(ctx, mode, allFiles, incCache)
	if err != nil {
		return nil, err
	}
	e.logger.Info("engine.run.files_selected", "mode", string(mode), "total", len(allFiles), "selected", len(selected))

	store, err := e.opts.Builder.BuildGraph(ctx, allFiles)
	if err != nil {
		return nil, kerrors.NewGraphWriteError("failed to build code graph", err.Error(), err)
	}
	store.Freeze()

	qc := graph.NewQueryCache(store)
	qc.Prefetch()

	classContexts := ctxmodel.BuildClassContexts(qc)
	e.logger.Debug("engine.run.class_contexts", "count", len(classContexts))

	detectors := e.buildDetectors(projectCfg)

	fresh, detectWarnings := e.runDetectors(ctx, detectors, qc, selected)
	warnings = append(warnings, detectWarnings...)

	merged := append(append([]finding.Finding(nil), cachedFindings...), fresh...)

	if incCache != nil {
		e.persistIncremental(incCache, selected, fresh)
		if err := incCache.Save(); err != nil {
			e.logger.Warn("engine.run.cache_save_failed", "error", err)
		}
	}

	voted, votingStats := e.vote(merged)
	assessed, assessments := e.assessRisk(voted)
	final, rootSummary := e.rootCause(assessed)

	final = applyPerFileCap(final, e.opts.FindingsPerFileCap)
	final = applySeverityFloor(final, finding.ParseSeverity(e.opts.FailOn))

	result := &Result{
		Mode:            mode,
		Findings:        final,
		Warnings:        warnings,
		VotingStats:     votingStats,
		RiskAssessments: assessments,
		FilesAnalyzed:   len(selected),
		Duration:        time.Since(start),
	}
	if rootSummary.TotalRootCauses > 0 {
		result.RootCauses = []rootcause.Summary{rootSummary}
	}

	e.logger.Info("engine.run.complete",
		"mode", string(mode),
		"findings", len(final),
		"warnings", len(warnings),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// selectFiles resolves which files detectors run over for the given mode,
// plus any findings that can be reused unchanged from the incremental
// cache and warnings collected while doing so.
func (e *Engine) selectFiles(ctx context.Context, mode Mode, allFiles []string, incCache *cache.IncrementalCache) ([]string, []finding.Finding, []output.RunWarning, error) {
	switch mode {
	case ModeSince:
		repo := vcs.Open(e.opts.RepoRoot)
		changed, err := repo.ChangedSince(ctx, e.opts.Since)
		if err != nil {
			return nil, nil, nil, kerrors.NewVCSFailureError("failed to resolve changed files", err.Error(), err)
		}
		changedSet := make(map[string]bool, len(changed))
		for _, f := range changed {
			changedSet[f] = true
		}
		var selected []string
		for _, f := range allFiles {
			if changedSet[relOrSame(e.opts.RepoRoot, f)] {
				selected = append(selected, f)
			}
		}
		return selected, nil, nil, nil

	case ModeIncremental:
		changed := incCache.GetChangedFiles(allFiles)
		changedSet := make(map[string]bool, len(changed))
		for _, f := range changed {
			changedSet[f] = true
		}
		var cached []finding.Finding
		for _, f := range allFiles {
			if changedSet[f] {
				metrics.RecordCacheMiss()
				continue
			}
			metrics.RecordCacheHit()
			cached = append(cached, incCache.GetCachedFindings(f)...)
		}
		return changed, cached, nil, nil

	default:
		return allFiles, nil, nil, nil
	}
}

func relOrSame(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

// buildDetectors constructs the fixed detector set, honoring per-detector
// enable/disable overrides from project config and the run's skip list.
func (e *Engine) buildDetectors(projectCfg config.ProjectConfig) []detect.Detector {
	skip := make(map[string]bool, len(e.opts.SkipDetectors))
	for _, s := range e.opts.SkipDetectors {
		skip[s] = true
	}

	baseConfig := detect.DetectorConfig{ProjectTypeHint: e.opts.ProjectTypeHint}

	candidates := []detect.Detector{
		detect.NewCircularDependencyDetector(baseConfig),
		detect.NewGodClassDetector(baseConfig),
		detect.NewDeadCodeDetector(baseConfig),
		detect.NewRefusedBequestDetector(baseConfig),
		detect.NewSurprisalDetector(baseConfig),
		detect.NewInsecureTLSDetector(baseConfig),
		detect.NewPickleDeserializationDetector(baseConfig),
		detect.NewUnsafeTemplateDetector(baseConfig),
		detect.NewXXEDetector(baseConfig),
	}

	var enabled []detect.Detector
	for _, d := range candidates {
		if skip[d.Name()] {
			continue
		}
		if override, ok := projectCfg.OverrideFor(d.Name()); ok && override.Enabled != nil && !*override.Enabled {
			continue
		}
		enabled = append(enabled, d)
	}
	return enabled
}

// runDetectors dispatches every detector up to Workers concurrently,
// recovering from panics and timing out per the configured ceiling.
func (e *Engine) runDetectors(ctx context.Context, detectors []detect.Detector, qc *graph.QueryCache, files []string) ([]finding.Finding, []output.RunWarning) {
	if len(detectors) == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, e.opts.Workers)

	var mu sync.Mutex
	var findings []finding.Finding
	var warnings []output.RunWarning

	for _, d := range detectors {
		d := d
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			select {
			case <-gctx.Done():
				return nil
			default:
			}

			runCtx := gctx
			var cancel context.CancelFunc
			if e.opts.DetectorTimeout > 0 {
				runCtx, cancel = context.WithTimeout(gctx, e.opts.DetectorTimeout)
				defer cancel()
			}

			found, warning := e.runOneDetector(runCtx, d, qc, files)
			mu.Lock()
			findings = append(findings, found...)
			if warning != nil {
				warnings = append(warnings, *warning)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return findings, warnings
}

// runOneDetector invokes a single detector with a panic boundary; a
// recovered panic or a timeout contributes zero findings and one warning,
// never aborting the overall run.
func (e *Engine) runOneDetector(ctx context.Context, d detect.Detector, qc *graph.QueryCache, files []string) (found []finding.Finding, warning *output.RunWarning) {
	runStart := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordDetectorPanic(d.Name())
			e.logger.Error("engine.detector.panic", "detector", d.Name(), "recovered", r)
			warning = &output.RunWarning{Kind: "detector_panic", Message: fmt.Sprintf("%v", r), Detector: d.Name()}
			found = nil
		}
	}()

	results, err := d.Detect(ctx, qc, files)
	elapsed := time.Since(runStart).Seconds()

	if ctx.Err() != nil && err != nil {
		metrics.RecordDetectorRun(d.Name(), 0, elapsed)
		return nil, &output.RunWarning{Kind: "detector_timeout", Message: "detector timed out", Detector: d.Name()}
	}
	if err != nil {
		metrics.RecordDetectorError(d.Name())
		metrics.RecordDetectorRun(d.Name(), 0, elapsed)
		e.logger.Warn("engine.detector.error", "detector", d.Name(), "error", err)
		return nil, &output.RunWarning{Kind: "detector_error", Message: err.Error(), Detector: d.Name()}
	}

	metrics.RecordDetectorRun(d.Name(), len(results), elapsed)
	return results, nil
}

// persistIncremental writes this run's fresh per-file findings back into
// the incremental cache so the next run can reuse them unchanged.
func (e *Engine) persistIncremental(incCache *cache.IncrementalCache, selected []string, fresh []finding.Finding) {
	byFile := make(map[string][]finding.Finding)
	for _, f := range fresh {
		for _, path := range f.AffectedFiles {
			byFile[path] = append(byFile[path], f)
		}
	}
	for _, path := range selected {
		incCache.CacheFindings(path, byFile[path])
	}
}

func (e *Engine) vote(findings []finding.Finding) ([]finding.Finding, voting.Stats) {
	start := time.Now()
	eng := voting.New()
	out, stats := eng.Vote(findings)
	metrics.RecordVoting(stats.OutputFindings, stats.Rejected, time.Since(start).Seconds())
	return out, stats
}

func (e *Engine) assessRisk(findings []finding.Finding) ([]finding.Finding, []risk.Assessment) {
	start := time.Now()
	var bottleneck, complexity, security, other []finding.Finding
	for _, f := range findings {
		switch f.Category {
		case "architecture_bottleneck", "circular_dependency":
			bottleneck = append(bottleneck, f)
		case "complexity":
			complexity = append(complexity, f)
		case "security":
			security = append(security, f)
		default:
			other = append(other, f)
		}
	}
	analyzer := risk.New()
	out, assessments := analyzer.Analyze(bottleneck, complexity, security, other)
	metrics.RecordRiskDuration(time.Since(start).Seconds())
	return out, assessments
}

func (e *Engine) rootCause(findings []finding.Finding) ([]finding.Finding, rootcause.Summary) {
	start := time.Now()
	analyzer := rootcause.New()
	out := analyzer.Analyze(findings)
	metrics.RecordRootCauseDuration(time.Since(start).Seconds())
	return out, analyzer.Summary()
}

// applyPerFileCap keeps at most cap findings per affected file, highest
// severity first, dropping the overflow.
func applyPerFileCap(findings []finding.Finding, cap int) []finding.Finding {
	perFile := make(map[string]int)
	sorted := append([]finding.Finding(nil), findings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Index() > sorted[j].Severity.Index()
	})

	var out []finding.Finding
	for _, f := range sorted {
		keep := true
		for _, path := range f.AffectedFiles {
			if perFile[path] >= cap {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}
		for _, path := range f.AffectedFiles {
			perFile[path]++
		}
		out = append(out, f)
	}
	return out
}

// applySeverityFloor drops findings below the configured fail-on severity.
func applySeverityFloor(findings []finding.Finding, floor finding.Severity) []finding.Finding {
	var out []finding.Finding
	for _, f := range findings {
		if f.Severity.Index() >= floor.Index() {
			out = append(out, f)
		}
	}
	return out
}
