// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"context"
	"testing"

	"github.com/kraklabs/repotoire/pkg/graph"
)

func TestUnsafeTemplateJinjaNoAutoescape(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.py", "env = Environment(loader=FileSystemLoader('templates'))\n")

	d := NewUnsafeTemplateDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].CWEID != "CWE-79" {
		t.Errorf("expected CWE-79, got %s", findings[0].CWEID)
	}
}

func TestUnsafeTemplateJinjaWithAutoescapeIsSafe(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.py", "env = Environment(autoescape=select_autoescape(['html', 'xml']))\n")

	d := NewUnsafeTemplateDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no findings, got %d", len(findings))
	}
}

func TestUnsafeTemplateRenderTemplateStringWithLiteralIsSafe(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.py", "render_template_string(\"<h1>hi</h1>\")\n")

	d := NewUnsafeTemplateDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected string-literal-only call to be safe, got %d findings", len(findings))
	}
}

func TestUnsafeTemplateRenderTemplateStringWithVariable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.py", "render_template_string(user_supplied_html)\n")

	d := NewUnsafeTemplateDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].CWEID != "CWE-1336" {
		t.Errorf("expected CWE-1336, got %s", findings[0].CWEID)
	}
}

func TestUnsafeTemplateReactDangerouslySetInnerHTML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Comment.jsx", "<div dangerouslySetInnerHTML={{ __html: body }} />\n")

	d := NewUnsafeTemplateDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
}

func TestUnsafeTemplateVueVHTML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Comment.vue", "<div v-html=\"comment.body\"></div>\n")

	d := NewUnsafeTemplateDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
}

func TestUnsafeTemplateInnerHTMLAssignment(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "view.js", "el.innerHTML = userComment;\n")

	d := NewUnsafeTemplateDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
}

func TestUnsafeTemplateDocumentWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "legacy.js", "document.write(userName);\n")

	d := NewUnsafeTemplateDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
}
