// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package walk

import "testing"

func TestClassifyPath(t *testing.T) {
	cases := map[string]PathClass{
		"src/handlers/user.go":               ClassSource,
		"src/handlers/user_test.go":          ClassTest,
		"tests/integration/api_test.py":      ClassTest,
		"vendor/github.com/foo/bar/baz.go":   ClassVendor,
		"node_modules/react/index.js":        ClassVendor,
		"proto/user.pb.go":                   ClassGenerated,
		"docs/README.md":                     ClassDocumentation,
		"scripts/deploy.sh":                  ClassScript,
	}
	for path, want := range cases {
		if got := ClassifyPath(path); got != want {
			t.Errorf("ClassifyPath(%q) = %q, want %q", path, got, want)
		}
	}
}
