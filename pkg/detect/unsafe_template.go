// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kraklabs/repotoire/pkg/finding"
	"github.com/kraklabs/repotoire/pkg/graph"
	"github.com/kraklabs/repotoire/pkg/walk"
)

var (
	jinja2EnvPattern          = regexp.MustCompile(`\bEnvironment\s*\([^)]*\)`)
	autoescapeTruePattern     = regexp.MustCompile(`(?i)autoescape\s*=\s*(?:True|select_autoescape\s*\()`)
	renderTemplateStringPat   = regexp.MustCompile(`\brender_template_string\s*\([^)]+\)`)
	markupPattern             = regexp.MustCompile(`\bMarkup\s*\([^)]+\)`)
	safeStringOnlyCallPattern = regexp.MustCompile(`^\w+\s*\(\s*["'][^"']*["']\s*\)$`)

	dangerousInnerHTMLPattern = regexp.MustCompile(`\bdangerouslySetInnerHTML\s*=\s*\{`)
	vueVHTMLPattern           = regexp.MustCompile(`\bv-html\s*=\s*["'][^"']+["']`)
	innerHTMLAssignPattern    = regexp.MustCompile(`\.\s*innerHTML\s*=\s*[^;]+`)
	outerHTMLAssignPattern    = regexp.MustCompile(`\.\s*outerHTML\s*=\s*[^;]+`)
	documentWritePattern      = regexp.MustCompile(`\bdocument\s*\.\s*write(?:ln)?\s*\(`)
)

type templatePatternType string

const (
	templateJinjaNoAutoescape templatePatternType = "jinja2_no_autoescape"
	templateRenderString      templatePatternType = "render_template_string"
	templateMarkupUnsafe      templatePatternType = "markup_unsafe"
	templateDangerouslySetHTML templatePatternType = "dangerously_set_inner_html"
	templateVueVHTML          templatePatternType = "vue_vhtml"
	templateInnerHTML         templatePatternType = "innerhtml_assignment"
	templateOuterHTML         templatePatternType = "outerhtml_assignment"
	templateDocumentWrite     templatePatternType = "document_write"
)

type templateFinding struct {
	title string
	desc  string
	cwe   string
	fix   string
}

var templateFindings = map[templatePatternType]templateFinding{
	templateJinjaNoAutoescape: {
		"Jinja2 Environment without autoescape",
		"Jinja2 Environment() created without autoescape=True, allowing XSS attacks",
		"CWE-79",
		"Enable autoescape: `Environment(autoescape=select_autoescape(['html', 'htm', 'xml']))`, or use Flask's render_template (autoescape on by default).",
	},
	templateRenderString: {
		"Unsafe render_template_string",
		"render_template_string() with variable input can lead to server-side template injection",
		"CWE-1336",
		"Use file-based templates with render_template() instead of building templates from strings; escape any untrusted data with markupsafe.escape if string templates are unavoidable.",
	},
	templateMarkupUnsafe: {
		"Unsafe Markup usage",
		"Markup() with variable input bypasses escaping, enabling XSS",
		"CWE-79",
		"Escape untrusted data with markupsafe.escape() rather than wrapping it in Markup() directly.",
	},
	templateDangerouslySetHTML: {
		"React dangerouslySetInnerHTML",
		"dangerouslySetInnerHTML can introduce XSS vulnerabilities",
		"CWE-79",
		"Avoid dangerouslySetInnerHTML; if HTML rendering is required, sanitize with DOMPurify first.",
	},
	templateVueVHTML: {
		"Vue v-html directive",
		"v-html directive bypasses Vue's XSS protection",
		"CWE-79",
		"Prefer text interpolation ({{ }}); if raw HTML is required, sanitize with DOMPurify before binding v-html.",
	},
	templateInnerHTML: {
		"innerHTML assignment",
		"Direct innerHTML assignment can lead to XSS vulnerabilities",
		"CWE-79",
		"Use textContent for plain text, or sanitize with DOMPurify before assigning innerHTML.",
	},
	templateOuterHTML: {
		"outerHTML assignment",
		"Direct outerHTML assignment can lead to XSS vulnerabilities",
		"CWE-79",
		"Use DOM APIs (createElement/textContent) instead of assigning outerHTML from untrusted input.",
	},
	templateDocumentWrite: {
		"document.write usage",
		"document.write() can introduce XSS vulnerabilities",
		"CWE-79",
		"Replace document.write with DOM APIs (createElement/appendChild).",
	},
}

func isSafeStringOnlyCall(call string) bool {
	return safeStringOnlyCallPattern.MatchString(strings.TrimSpace(call))
}

var unsafeTemplatePyExts = map[string]bool{"py": true}
var unsafeTemplateJSExts = map[string]bool{"js": true, "jsx": true, "ts": true, "tsx": true}
var unsafeTemplateVueExts = map[string]bool{"vue": true}

// UnsafeTemplateDetector flags template/DOM patterns that can lead to XSS
// or server-side template injection (CWE-79 / CWE-1336).
type UnsafeTemplateDetector struct {
	config      DetectorConfig
	maxFindings int
}

// NewUnsafeTemplateDetector constructs the detector with the given config.
func NewUnsafeTemplateDetector(config DetectorConfig) *UnsafeTemplateDetector {
	return &UnsafeTemplateDetector{config: config, maxFindings: config.Int("max_findings", 100)}
}

func (d *UnsafeTemplateDetector) Name() string { return "unsafe_template" }
func (d *UnsafeTemplateDetector) Description() string {
	return "Detects XSS and template injection vulnerabilities (Jinja2, React, Vue, innerHTML)"
}
func (d *UnsafeTemplateDetector) Category() string      { return "security" }
func (d *UnsafeTemplateDetector) Config() DetectorConfig { return d.config }
func (d *UnsafeTemplateDetector) Scope() DetectorScope  { return ScopePerFile }

func (d *UnsafeTemplateDetector) makeFinding(path string, lineNum int, patternType templatePatternType, snippet string, pathClass walk.PathClass) finding.Finding {
	tf := templateFindings[patternType]
	description := fmt.Sprintf(
		"%s. Location %s:%d. Code: `%s`. Cross-site scripting lets an attacker inject scripts that steal session cookies, capture keystrokes, or redirect users.",
		tf.desc, path, lineNum, truncate(snippet, 100),
	)
	f := finding.Finding{
		ID:            DeterministicID(d.Name(), path, lineNum, string(patternType)),
		Detector:      d.Name(),
		Severity:      finding.High,
		Title:         "XSS: " + tf.title,
		Description:   description,
		AffectedFiles: []string{path},
		LineStart:     lineNum,
		LineEnd:       lineNum,
		SuggestedFix:  tf.fix,
		Category:      "security",
		CWEID:         tf.cwe,
		WhyItMatters:  "XSS vulnerabilities let attackers execute scripts in users' browsers, potentially stealing data or hijacking sessions.",
		Confidence:    0.85,
	}
	ApplyPathDowngrade(&f, pathClass)
	return f
}

func (d *UnsafeTemplateDetector) scanPython(ctx context.Context, files []string) ([]finding.Finding, error) {
	var out []finding.Finding
	for _, path := range filterFilesByExt(files, unsafeTemplatePyExts) {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		if len(out) >= d.maxFindings {
			return out, nil
		}
		lines := readLines(path)
		if lines == nil {
			continue
		}
		pathClass := walk.ClassifyPath(path)
		for i, line := range lines {
			lineNum := i + 1
			stripped := strings.TrimSpace(line)
			if strings.HasPrefix(stripped, "#") {
				continue
			}
			var prevPtr *string
			if i > 0 {
				prevPtr = &lines[i-1]
			}
			if walk.IsLineSuppressedFor(line, prevPtr, d.Name()) {
				continue
			}

			if m := jinja2EnvPattern.FindString(line); m != "" && !autoescapeTruePattern.MatchString(m) {
				out = append(out, d.makeFinding(path, lineNum, templateJinjaNoAutoescape, stripped, pathClass))
			}
			if m := renderTemplateStringPat.FindString(line); m != "" && !isSafeStringOnlyCall(m) {
				out = append(out, d.makeFinding(path, lineNum, templateRenderString, stripped, pathClass))
			}
			if m := markupPattern.FindString(line); m != "" && !isSafeStringOnlyCall(m) {
				out = append(out, d.makeFinding(path, lineNum, templateMarkupUnsafe, stripped, pathClass))
			}
			if len(out) >= d.maxFindings {
				return out, nil
			}
		}
	}
	return out, nil
}

func (d *UnsafeTemplateDetector) scanJS(ctx context.Context, files []string) ([]finding.Finding, error) {
	var out []finding.Finding
	for _, path := range filterFilesByExt(files, unsafeTemplateJSExts) {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		if len(out) >= d.maxFindings {
			return out, nil
		}
		lines := readLines(path)
		if lines == nil {
			continue
		}
		pathClass := walk.ClassifyPath(path)
		for i, line := range lines {
			lineNum := i + 1
			stripped := strings.TrimSpace(line)
			if strings.HasPrefix(stripped, "//") || strings.HasPrefix(stripped, "/*") {
				continue
			}
			var prevPtr *string
			if i > 0 {
				prevPtr = &lines[i-1]
			}
			if walk.IsLineSuppressedFor(line, prevPtr, d.Name()) {
				continue
			}

			if dangerousInnerHTMLPattern.MatchString(line) {
				out = append(out, d.makeFinding(path, lineNum, templateDangerouslySetHTML, stripped, pathClass))
			}
			if innerHTMLAssignPattern.MatchString(line) {
				out = append(out, d.makeFinding(path, lineNum, templateInnerHTML, stripped, pathClass))
			}
			if outerHTMLAssignPattern.MatchString(line) {
				out = append(out, d.makeFinding(path, lineNum, templateOuterHTML, stripped, pathClass))
			}
			if documentWritePattern.MatchString(line) {
				out = append(out, d.makeFinding(path, lineNum, templateDocumentWrite, stripped, pathClass))
			}
			if len(out) >= d.maxFindings {
				return out, nil
			}
		}
	}
	return out, nil
}

func (d *UnsafeTemplateDetector) scanVue(ctx context.Context, files []string) ([]finding.Finding, error) {
	var out []finding.Finding
	for _, path := range filterFilesByExt(files, unsafeTemplateVueExts) {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		if len(out) >= d.maxFindings {
			return out, nil
		}
		lines := readLines(path)
		if lines == nil {
			continue
		}
		pathClass := walk.ClassifyPath(path)
		for i, line := range lines {
			lineNum := i + 1
			var prevPtr *string
			if i > 0 {
				prevPtr = &lines[i-1]
			}
			if walk.IsLineSuppressedFor(line, prevPtr, d.Name()) {
				continue
			}
			if vueVHTMLPattern.MatchString(line) {
				out = append(out, d.makeFinding(path, lineNum, templateVueVHTML, strings.TrimSpace(line), pathClass))
			}
			if len(out) >= d.maxFindings {
				return out, nil
			}
		}
	}
	return out, nil
}

func (d *UnsafeTemplateDetector) Detect(ctx context.Context, qc *graph.QueryCache, files []string) ([]finding.Finding, error) {
	var out []finding.Finding

	py, err := d.scanPython(ctx, files)
	if err != nil {
		return out, err
	}
	out = append(out, py...)

	if len(out) < d.maxFindings {
		js, err := d.scanJS(ctx, files)
		if err != nil {
			return out, err
		}
		out = append(out, js...)
	}

	if len(out) < d.maxFindings {
		vue, err := d.scanVue(ctx, files)
		if err != nil {
			return out, err
		}
		out = append(out, vue...)
	}

	if len(out) > d.maxFindings {
		out = out[:d.maxFindings]
	}
	return out, nil
}
