// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package engine

import (
	"bufio"
	"context"
	"os"

	"github.com/kraklabs/repotoire/pkg/graph"
)

// DefaultGraphBuilder populates a graph.Store with one File node per path,
// sized by line count. Extracting functions, classes, calls, and imports
// requires a language-aware parser adapter outside this module's scope;
// that adapter is expected to satisfy GraphBuilder in its place when richer
// structural detectors (circular dependencies, god classes, dead code,
// refused bequest) are needed over real call/containment graphs.
type DefaultGraphBuilder struct{}

// BuildGraph inserts a File node per path. Unreadable files are skipped
// rather than failing the whole build; a single bad file never aborts
// ingestion.
func (DefaultGraphBuilder) BuildGraph(ctx context.Context, files []string) (*graph.Store, error) {
	store := graph.NewStore()
	for _, path := range files {
		select {
		case <-ctx.Done():
			return store, nil
		default:
		}

		loc, err := countLines(path)
		if err != nil {
			continue
		}

		qn := graph.NewQualifiedName(path, "<file>")
		_ = store.InsertNode(&graph.CodeNode{
			QualifiedName: qn,
			Name:          path,
			FilePath:      path,
			Kind:          graph.KindFile,
			Properties:    map[string]any{"loc": loc},
		})
	}
	return store, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}
