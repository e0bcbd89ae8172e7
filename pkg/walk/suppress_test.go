// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package walk

import "testing"

func strPtr(s string) *string { return &s }

func TestIsLineSuppressedInline(t *testing.T) {
	if !IsLineSuppressed("x = 1  // repotoire:ignore", nil) {
		t.Error("expected bare suppression")
	}
	if !IsLineSuppressed("x = 1  // repotoire: ignore", nil) {
		t.Error("expected spaced bare suppression")
	}
}

func TestIsLineSuppressedPrevLine(t *testing.T) {
	prev := "# repotoire:ignore"
	if !IsLineSuppressed("x = 1", &prev) {
		t.Error("expected standalone comment on prior line to suppress")
	}
}

func TestIsLineSuppressedPrevLineNotComment(t *testing.T) {
	prev := "x = 1 # repotoire:ignore"
	if IsLineSuppressed("y = 2", &prev) {
		t.Error("prior code+comment line should not suppress the next line")
	}
}

func TestIsLineSuppressedForTargeted(t *testing.T) {
	if !IsLineSuppressedFor("x = eval(y) // repotoire:ignore[code-injection]", nil, "code-injection") {
		t.Error("expected targeted suppression to match")
	}
	if IsLineSuppressedFor("x = eval(y) // repotoire:ignore[sql-injection]", nil, "code-injection") {
		t.Error("targeted suppression for a different detector should not match")
	}
}

func TestIsLineSuppressedForBareSuppressesAll(t *testing.T) {
	if !IsLineSuppressedFor("x = eval(y) // repotoire:ignore", nil, "code-injection") {
		t.Error("bare suppression should suppress any detector")
	}
}

func TestIsLineSuppressedForPrevLine(t *testing.T) {
	prev := strPtr("// repotoire:ignore[xss]")
	if !IsLineSuppressedFor("render(input)", prev, "xss") {
		t.Error("expected targeted suppression from previous standalone comment")
	}
	if IsLineSuppressedFor("render(input)", prev, "sql-injection") {
		t.Error("targeted suppression should not leak to other detectors")
	}
}
