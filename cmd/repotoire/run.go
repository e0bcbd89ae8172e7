// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	kerrors "github.com/kraklabs/repotoire/internal/errors"
	"github.com/kraklabs/repotoire/internal/output"
	"github.com/kraklabs/repotoire/internal/ui"
	"github.com/kraklabs/repotoire/pkg/engine"
	"github.com/kraklabs/repotoire/pkg/finding"
)

// runAnalyze executes the 'run' CLI command: a single analysis pass over a
// repository checkout.
//
// Flags:
//   - --since: analyze only files changed since this git ref
//   - --incremental: reuse the on-disk incremental cache for unchanged files
//   - --json: emit findings as JSON instead of a human-readable summary
//   - --workers: detector concurrency (default: logical CPU count)
//   - --fail-on: minimum severity that causes a non-zero exit code
//   - --skip: comma-separated detector names to skip
//   - --no-color: disable colored output
//   - --debug: enable debug-level logging
//   - --metrics-addr: HTTP listen address for Prometheus metrics (disabled by default)
func runAnalyze(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	since := fs.String("since", "", "Analyze only files changed since this git ref")
	incremental := fs.Bool("incremental", false, "Reuse the incremental cache for unchanged files")
	jsonOutput := fs.Bool("json", false, "Emit findings as JSON")
	workers := fs.Int("workers", 0, "Detector concurrency (default: logical CPU count)")
	failOn := fs.String("fail-on", "low", "Minimum severity that causes a non-zero exit code")
	skip := fs.String("skip", "", "Comma-separated detector names to skip")
	noColor := fs.Bool("no-color", false, "Disable colored output")
	debug := fs.Bool("debug", false, "Enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repotoire run [options] [path]

Analyzes a repository (default: current directory) and reports findings.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ui.InitColors(*noColor)

	repoRoot := "."
	if rest := fs.Args(); len(rest) > 0 {
		repoRoot = rest[0]
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("run.shutdown.signal", "signal", sig.String())
		cancel()
	}()

	var skipDetectors []string
	if *skip != "" {
		skipDetectors = strings.Split(*skip, ",")
	}

	e := engine.New(engine.Options{
		RepoRoot:      repoRoot,
		Workers:       *workers,
		Since:         *since,
		Incremental:   *incremental,
		SkipDetectors: skipDetectors,
		FailOn:        *failOn,
		Logger:        logger,
	})

	result, err := e.Run(ctx)
	if err != nil {
		kerrors.FatalError(err, *jsonOutput)
		return
	}

	if *jsonOutput {
		printJSON(result)
	} else {
		printSummary(result)
	}

	if hasFailingSeverity(result.Findings, finding.ParseSeverity(*failOn)) {
		os.Exit(kerrors.ExitInternal)
	}
}

func hasFailingSeverity(findings []finding.Finding, floor finding.Severity) bool {
	for _, f := range findings {
		if f.Severity.Index() >= floor.Index() {
			return true
		}
	}
	return false
}

func printJSON(result *engine.Result) {
	envelope := output.RunEnvelope{
		Findings: make([]any, len(result.Findings)),
		Warnings: result.Warnings,
	}
	for i, f := range result.Findings {
		envelope.Findings[i] = f
	}
	if err := output.JSON(envelope); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(kerrors.ExitInternal)
	}
}

func printSummary(result *engine.Result) {
	ui.Header("Analysis Complete")
	fmt.Printf("%s %s\n", ui.Label("Mode:"), result.Mode)
	fmt.Printf("%s %s\n", ui.Label("Files analyzed:"), ui.CountText(result.FilesAnalyzed))
	fmt.Printf("%s %s\n", ui.Label("Findings:"), ui.CountText(len(result.Findings)))
	fmt.Println()

	bySeverity := map[finding.Severity]int{}
	for _, f := range result.Findings {
		bySeverity[f.Severity]++
	}
	for _, sev := range []finding.Severity{finding.Critical, finding.High, finding.Medium, finding.Low, finding.Info} {
		if n := bySeverity[sev]; n > 0 {
			fmt.Printf("  %-9s %s\n", strings.ToUpper(string(sev))+":", ui.CountText(n))
		}
	}

	if len(result.Findings) > 0 {
		fmt.Println()
		ui.SubHeader("Findings:")
		for _, f := range result.Findings {
			loc := f.Title
			if len(f.AffectedFiles) > 0 {
				loc = fmt.Sprintf("%s (%s)", f.Title, f.AffectedFiles[0])
			}
			fmt.Printf("  [%s] %s\n", strings.ToUpper(string(f.Severity)), loc)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Println()
		for _, w := range result.Warnings {
			ui.Warningf("%s: %s", w.Kind, w.Message)
		}
	}

	fmt.Println()
	ui.Successf("Completed in %s", result.Duration)
}
