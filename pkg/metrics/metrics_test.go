// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDetectorRunIncrementsCounters(t *testing.T) {
	RecordDetectorRun("GodClassDetector", 3, 0.02)

	if got := testutil.ToFloat64(m.detectorRuns.WithLabelValues("GodClassDetector")); got < 1 {
		t.Errorf("expected detectorRuns >= 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.findingsEmitted.WithLabelValues("GodClassDetector")); got < 3 {
		t.Errorf("expected findingsEmitted >= 3, got %v", got)
	}
}

func TestRecordVotingAccumulates(t *testing.T) {
	before := testutil.ToFloat64(m.findingsVoted)
	RecordVoting(2, 1, 0.01)
	after := testutil.ToFloat64(m.findingsVoted)
	if after != before+2 {
		t.Errorf("expected findingsVoted to increase by 2, went from %v to %v", before, after)
	}
}

func TestRecordCacheHitAndMiss(t *testing.T) {
	beforeHits := testutil.ToFloat64(m.cacheHits)
	beforeMisses := testutil.ToFloat64(m.cacheMisses)
	RecordCacheHit()
	RecordCacheMiss()
	if testutil.ToFloat64(m.cacheHits) != beforeHits+1 {
		t.Error("expected cacheHits to increment by 1")
	}
	if testutil.ToFloat64(m.cacheMisses) != beforeMisses+1 {
		t.Error("expected cacheMisses to increment by 1")
	}
}
