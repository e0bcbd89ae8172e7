// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package walk

import (
	"path/filepath"
	"strings"
)

// PathClass is the coarse role a path plays in a repository, used by
// detectors to downgrade or skip findings.
type PathClass string

const (
	ClassSource        PathClass = "source"
	ClassTest          PathClass = "test"
	ClassVendor        PathClass = "vendor"
	ClassGenerated     PathClass = "generated"
	ClassDocumentation PathClass = "documentation"
	ClassScript        PathClass = "script"
)

var vendorMarkers = []string{
	"/vendor/", "/node_modules/", "/site-packages/", "/.venv/", "/venv/",
	"/dist/", "/build/", "/target/", "/third_party/", "/thirdparty/",
}

var testMarkers = []string{"/test/", "/tests/", "/__tests__/", "/spec/"}

var docExtensions = map[string]bool{
	".md": true, ".rst": true, ".txt": true, ".adoc": true,
}

var scriptExtensions = map[string]bool{
	".sh": true, ".bash": true, ".ps1": true, ".bat": true, ".cmd": true,
}

// ClassifyPath returns the PathClass for a repository-relative path,
// checking signals in this order and returning the first that matches:
// vendored dependency tree, generated-file marker, test name/location,
// documentation extension, shell script extension, else plain source.
func ClassifyPath(path string) PathClass {
	normalized := "/" + filepath.ToSlash(path) + "/"
	lower := strings.ToLower(normalized)
	base := strings.ToLower(filepath.Base(path))
	ext := strings.ToLower(filepath.Ext(path))

	for _, marker := range vendorMarkers {
		if strings.Contains(lower, marker) {
			return ClassVendor
		}
	}

	if isGeneratedName(base) {
		return ClassGenerated
	}

	for _, marker := range testMarkers {
		if strings.Contains(lower, marker) {
			return ClassTest
		}
	}
	if strings.HasSuffix(base, "_test.go") ||
		strings.HasPrefix(base, "test_") ||
		strings.HasSuffix(base, "_test.py") ||
		strings.HasSuffix(base, ".test.js") ||
		strings.HasSuffix(base, ".test.ts") ||
		strings.HasSuffix(base, ".spec.js") ||
		strings.HasSuffix(base, ".spec.ts") {
		return ClassTest
	}

	if docExtensions[ext] {
		return ClassDocumentation
	}
	if scriptExtensions[ext] {
		return ClassScript
	}
	return ClassSource
}

func isGeneratedName(base string) bool {
	generatedMarkers := []string{
		".pb.go", "_pb2.py", ".generated.", ".g.dart", ".min.js", ".min.css",
		"_generated.go",
	}
	for _, marker := range generatedMarkers {
		if strings.Contains(base, marker) {
			return true
		}
	}
	return base == "go.sum" || strings.HasSuffix(base, ".lock")
}
