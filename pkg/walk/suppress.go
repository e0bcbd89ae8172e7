// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package walk

import "strings"

const (
	suppressPattern    = "repotoire:ignore"
	suppressPatternAlt = "repotoire: ignore"
)

// IsLineSuppressed reports whether line (or a standalone comment on
// prevLine) carries a bare suppression marker that silences every
// detector.
func IsLineSuppressed(line string, prevLine *string) bool {
	if checkSuppression(line, "") {
		return true
	}
	if prevLine == nil {
		return false
	}
	trimmed := strings.TrimSpace(*prevLine)
	if !isCommentLine(strings.ToLower(trimmed)) {
		return false
	}
	return checkSuppression(trimmed, "")
}

// IsLineSuppressedFor reports whether line (or a standalone comment on
// prevLine) suppresses detectorSlug specifically — either via a bare
// marker (suppresses everything) or a bracketed target matching
// detectorSlug.
func IsLineSuppressedFor(line string, prevLine *string, detectorSlug string) bool {
	if checkSuppression(line, detectorSlug) {
		return true
	}
	if prevLine == nil {
		return false
	}
	trimmed := strings.TrimSpace(*prevLine)
	if !isCommentLine(strings.ToLower(trimmed)) {
		return false
	}
	return checkSuppression(trimmed, detectorSlug)
}

func isCommentLine(lower string) bool {
	return strings.HasPrefix(lower, "#") ||
		strings.HasPrefix(lower, "//") ||
		strings.HasPrefix(lower, "--") ||
		strings.HasPrefix(lower, "/*")
}

func checkSuppression(text, detectorSlug string) bool {
	lower := strings.ToLower(text)
	slug := strings.ToLower(detectorSlug)

	for _, prefix := range []string{suppressPattern, suppressPatternAlt} {
		idx := strings.Index(lower, prefix)
		if idx < 0 {
			continue
		}
		rest := lower[idx+len(prefix):]
		if strings.HasPrefix(rest, "[") {
			end := strings.Index(rest, "]")
			if end < 0 {
				continue
			}
			target := strings.TrimSpace(rest[1:end])
			if target == slug {
				return true
			}
			continue
		}
		return true
	}
	return false
}
