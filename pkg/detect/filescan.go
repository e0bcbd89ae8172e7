// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"os"
	"path/filepath"
	"strings"
)

// maxScannableFileSize mirrors the teacher idiom of skipping abnormally
// large files during line-by-line pattern scans rather than loading
// multi-megabyte blobs into memory.
const maxScannableFileSize = 500_000

// filterFilesByExt returns the subset of files whose extension (without the
// leading dot, case-folded) is present in exts.
func filterFilesByExt(files []string, exts map[string]bool) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(f), "."))
		if exts[ext] {
			out = append(out, f)
		}
	}
	return out
}

// readLines reads path into lines, returning nil when it can't be read or
// exceeds maxScannableFileSize.
func readLines(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) > maxScannableFileSize {
		return nil
	}
	return strings.Split(string(data), "\n")
}

func extOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
