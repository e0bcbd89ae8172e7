// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package walk iterates a repository's source files honoring .gitignore
// semantics, validates repository paths against path-traversal and
// sensitive-directory mistakes, classifies paths by role, and recognizes
// inline suppression comments.
package walk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	rerrors "github.com/kraklabs/repotoire/internal/errors"
)

// ignoreFileName is the project-local ignore file, layered on top of
// .gitignore/.git/info/exclude the way repository-local overrides usually
// are.
const ignoreFileName = ".repotoireignore"

var sensitiveDirs = []string{"/etc", "/sys", "/proc", "/dev", "/boot", "/root"}

// ValidatePath rejects a repository root that contains path-traversal
// artifacts, resolves outside the filesystem root, or points at a sensitive
// system directory.
func ValidatePath(path string) error {
	cleaned := filepath.Clean(path)
	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return rerrors.NewIOError(fmt.Sprintf("cannot resolve path %q", path), err.Error(), "pass an existing, readable directory", err)
	}
	if strings.Contains(absPath, "..") {
		return rerrors.NewIOError(fmt.Sprintf("path contains traversal artifacts: %s", absPath), "", "pass a clean absolute path", nil)
	}
	if absPath == "" || absPath == "/" {
		return rerrors.NewIOError("path is empty or the filesystem root", "", "pass a specific repository directory", nil)
	}
	for _, sensitive := range sensitiveDirs {
		if absPath == sensitive || strings.HasPrefix(absPath, sensitive+"/") {
			return rerrors.NewIOError(fmt.Sprintf("path is in a sensitive system directory: %s", absPath), "", "point at a project checkout, not a system directory", nil)
		}
	}
	return nil
}

// matcher layers .gitignore-style files found while walking; a file is
// excluded if any matcher on its ancestor chain matches it.
type matcher struct {
	root string
	byDir map[string]*gitignore.GitIgnore
}

func newMatcher(root string) *matcher {
	return &matcher{root: root, byDir: make(map[string]*gitignore.GitIgnore)}
}

func (m *matcher) loadDir(dir string) {
	if _, ok := m.byDir[dir]; ok {
		return
	}
	var lines []string
	for _, name := range []string{".gitignore", ignoreFileName} {
		p := filepath.Join(dir, name)
		if data, err := os.ReadFile(p); err == nil {
			lines = append(lines, strings.Split(string(data), "\n")...)
		}
	}
	if len(lines) == 0 {
		m.byDir[dir] = nil
		return
	}
	m.byDir[dir] = gitignore.CompileIgnoreLines(lines...)
}

// excluded reports whether relPath (relative to root) is ignored by any
// .gitignore/.repotoireignore found along its directory ancestry.
func (m *matcher) excluded(relPath string) bool {
	dir := filepath.Dir(relPath)
	for {
		abs := dir
		if abs == "." {
			abs = m.root
		} else {
			abs = filepath.Join(m.root, dir)
		}
		m.loadDir(abs)
		if gi := m.byDir[abs]; gi != nil {
			sub, err := filepath.Rel(abs, filepath.Join(m.root, relPath))
			if err == nil && gi.MatchesPath(sub) {
				return true
			}
		}
		if dir == "." || dir == string(filepath.Separator) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return false
}

// WalkSourceFiles returns every file under root whose extension (without
// the leading dot) is in extensions (nil/empty means no filter), skipping
// hidden entries and anything matched by .gitignore/.git/info/exclude/
// .repotoireignore.
func WalkSourceFiles(root string, extensions []string) ([]string, error) {
	if err := ValidatePath(root); err != nil {
		return nil, err
	}

	extSet := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		extSet[strings.TrimPrefix(e, ".")] = true
	}

	m := newMatcher(root)
	var globalExclude *gitignore.GitIgnore
	if data, err := os.ReadFile(filepath.Join(root, ".git", "info", "exclude")); err == nil {
		globalExclude = gitignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		base := d.Name()
		if strings.HasPrefix(base, ".") && base != "." {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if base == ".git" {
				return filepath.SkipDir
			}
			if m.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if m.excluded(rel) {
			return nil
		}
		if globalExclude != nil && globalExclude.MatchesPath(rel) {
			return nil
		}

		if len(extSet) > 0 {
			ext := strings.TrimPrefix(filepath.Ext(path), ".")
			if !extSet[ext] {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, rerrors.NewIOError("failed walking repository", err.Error(), "check filesystem permissions", err)
	}
	return files, nil
}
