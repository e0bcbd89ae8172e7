// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package metrics exposes the Prometheus instrumentation for an analysis
// run: detector dispatch counts, finding volume by stage, cache hit/miss
// counts, and stage durations.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type registry struct {
	once sync.Once

	detectorRuns     *prometheus.CounterVec
	detectorErrors   *prometheus.CounterVec
	detectorPanics   *prometheus.CounterVec
	findingsEmitted  *prometheus.CounterVec
	findingsVoted    prometheus.Counter
	findingsRejected prometheus.Counter
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter

	detectorDuration *prometheus.HistogramVec
	votingDuration    prometheus.Histogram
	riskDuration      prometheus.Histogram
	rootCauseDuration prometheus.Histogram
	runDuration       prometheus.Histogram
}

var m registry

func (r *registry) init() {
	r.once.Do(func() {
		r.detectorRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repotoire_detector_runs_total", Help: "Detector invocations, by detector name.",
		}, []string{"detector"})
		r.detectorErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repotoire_detector_errors_total", Help: "Detector invocations that returned an error, by detector name.",
		}, []string{"detector"})
		r.detectorPanics = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repotoire_detector_panics_total", Help: "Detector invocations recovered from a panic, by detector name.",
		}, []string{"detector"})
		r.findingsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repotoire_findings_emitted_total", Help: "Raw findings emitted by a detector, by detector name.",
		}, []string{"detector"})
		r.findingsVoted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repotoire_findings_voted_total", Help: "Findings that survived the voting stage (consensus or accepted singleton).",
		})
		r.findingsRejected = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repotoire_findings_rejected_total", Help: "Findings rejected by the voting stage.",
		})
		r.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repotoire_cache_hits_total", Help: "Files served from the incremental cache without re-running detectors.",
		})
		r.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repotoire_cache_misses_total", Help: "Files that required detector re-execution.",
		})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
		r.detectorDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "repotoire_detector_duration_seconds", Help: "Wall-clock duration of a single detector invocation.", Buckets: buckets,
		}, []string{"detector"})
		r.votingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "repotoire_voting_duration_seconds", Help: "Duration of the voting stage.", Buckets: buckets,
		})
		r.riskDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "repotoire_risk_duration_seconds", Help: "Duration of the risk amplification stage.", Buckets: buckets,
		})
		r.rootCauseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "repotoire_root_cause_duration_seconds", Help: "Duration of the root-cause analysis stage.", Buckets: buckets,
		})
		r.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "repotoire_run_duration_seconds", Help: "Duration of an entire analysis run.", Buckets: buckets,
		})

		prometheus.MustRegister(
			r.detectorRuns, r.detectorErrors, r.detectorPanics, r.findingsEmitted,
			r.findingsVoted, r.findingsRejected, r.cacheHits, r.cacheMisses,
			r.detectorDuration, r.votingDuration, r.riskDuration, r.rootCauseDuration, r.runDuration,
		)
	})
}

// RecordDetectorRun records one detector invocation, its finding count, and
// its wall-clock duration in seconds.
func RecordDetectorRun(detector string, findingCount int, seconds float64) {
	m.init()
	m.detectorRuns.WithLabelValues(detector).Inc()
	m.findingsEmitted.WithLabelValues(detector).Add(float64(findingCount))
	m.detectorDuration.WithLabelValues(detector).Observe(seconds)
}

// RecordDetectorError records a detector invocation that returned an error.
func RecordDetectorError(detector string) {
	m.init()
	m.detectorErrors.WithLabelValues(detector).Inc()
}

// RecordDetectorPanic records a detector invocation recovered from a panic.
func RecordDetectorPanic(detector string) {
	m.init()
	m.detectorPanics.WithLabelValues(detector).Inc()
}

// RecordVoting records the outcome and duration of the voting stage.
func RecordVoting(kept, rejected int, seconds float64) {
	m.init()
	m.findingsVoted.Add(float64(kept))
	m.findingsRejected.Add(float64(rejected))
	m.votingDuration.Observe(seconds)
}

// RecordRiskDuration records the wall-clock duration of the risk stage.
func RecordRiskDuration(seconds float64) {
	m.init()
	m.riskDuration.Observe(seconds)
}

// RecordRootCauseDuration records the wall-clock duration of the
// root-cause stage.
func RecordRootCauseDuration(seconds float64) {
	m.init()
	m.rootCauseDuration.Observe(seconds)
}

// RecordRunDuration records the wall-clock duration of an entire analysis
// run.
func RecordRunDuration(seconds float64) {
	m.init()
	m.runDuration.Observe(seconds)
}

// RecordCacheHit records a file served from the incremental cache.
func RecordCacheHit() {
	m.init()
	m.cacheHits.Inc()
}

// RecordCacheMiss records a file that required detector re-execution.
func RecordCacheMiss() {
	m.init()
	m.cacheMisses.Inc()
}
