// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package taint performs intra-procedural source-to-sink dataflow tracking:
// it flags lines where data read from an untrusted source (user input,
// environment, file content, network) reaches a dangerous operation
// (SQL/command/code injection, path traversal, XSS, SSRF, log injection)
// without any interprocedural reasoning.
package taint

import (
	"regexp"
	"strings"

	"github.com/kraklabs/repotoire/pkg/graph"
	"github.com/kraklabs/repotoire/pkg/walk"
)

// SourceCategory classifies where tainted data entered.
type SourceCategory string

const (
	SourceUserInput   SourceCategory = "user_input"
	SourceEnvironment SourceCategory = "environment"
	SourceFileContent SourceCategory = "file"
	SourceNetwork     SourceCategory = "network"
)

// SinkCategory classifies the dangerous operation tainted data reached.
type SinkCategory string

const (
	SinkSQLInjection     SinkCategory = "sql_injection"
	SinkCommandInjection SinkCategory = "command_injection"
	SinkCodeInjection    SinkCategory = "code_injection"
	SinkPathTraversal    SinkCategory = "path_traversal"
	SinkXSS              SinkCategory = "xss"
	SinkSSRF             SinkCategory = "ssrf"
	SinkLogInjection     SinkCategory = "log_injection"
)

// Severity returns the default severity for a sink category (the taint
// analyzer itself has no Severity type dependency; callers map this to
// finding.Severity).
func (s SinkCategory) DefaultSeverityLevel() int {
	switch s {
	case SinkSQLInjection, SinkCommandInjection, SinkCodeInjection:
		return 4 // Critical
	case SinkPathTraversal, SinkXSS, SinkSSRF:
		return 3 // High
	case SinkLogInjection:
		return 2 // Medium
	default:
		return 3
	}
}

// CWE returns the CWE identifier associated with a sink category.
func (s SinkCategory) CWE() string {
	switch s {
	case SinkSQLInjection:
		return "CWE-89"
	case SinkCommandInjection:
		return "CWE-78"
	case SinkCodeInjection:
		return "CWE-94"
	case SinkPathTraversal:
		return "CWE-22"
	case SinkXSS:
		return "CWE-79"
	case SinkSSRF:
		return "CWE-918"
	case SinkLogInjection:
		return "CWE-117"
	default:
		return "CWE-20"
	}
}

type patternEntry struct {
	pattern  string
	category string
}

// sourcePatterns lists substrings that mark a line as reading from an
// untrusted source. Deliberately narrow to actual input operations, not
// every function that merely consumes a value.
var sourcePatterns = []patternEntry{
	{"request.args", string(SourceUserInput)},
	{"request.form", string(SourceUserInput)},
	{"request.data", string(SourceUserInput)},
	{"request.json", string(SourceUserInput)},
	{"request.files", string(SourceUserInput)},
	{"request.cookies", string(SourceUserInput)},
	{"request.headers", string(SourceUserInput)},
	{"request.GET", string(SourceUserInput)},
	{"request.POST", string(SourceUserInput)},
	{"request.body", string(SourceUserInput)},
	{"req.params", string(SourceUserInput)},
	{"req.query", string(SourceUserInput)},
	{"req.body", string(SourceUserInput)},
	{"input(", string(SourceUserInput)},
	{"raw_input(", string(SourceUserInput)},
	{"sys.stdin", string(SourceUserInput)},
	{"sys.argv", string(SourceUserInput)},
	{"argv[", string(SourceUserInput)},
	{"os.environ", string(SourceEnvironment)},
	{"getenv(", string(SourceEnvironment)},
	{"process.env", string(SourceEnvironment)},
	{"socket.recv(", string(SourceNetwork)},
	{".read()", string(SourceFileContent)},
}

// sinkPatterns lists substrings that mark a line as a dangerous operation.
var sinkPatterns = []patternEntry{
	{"cursor.execute(", string(SinkSQLInjection)},
	{".execute(", string(SinkSQLInjection)},
	{"executemany(", string(SinkSQLInjection)},
	{".raw(", string(SinkSQLInjection)},
	{"rawQuery(", string(SinkSQLInjection)},
	{"$query(", string(SinkSQLInjection)},
	{"os.system(", string(SinkCommandInjection)},
	{"os.popen(", string(SinkCommandInjection)},
	{"subprocess.call(", string(SinkCommandInjection)},
	{"subprocess.run(", string(SinkCommandInjection)},
	{"subprocess.Popen(", string(SinkCommandInjection)},
	{"child_process.exec(", string(SinkCommandInjection)},
	{"execSync(", string(SinkCommandInjection)},
	{"eval(", string(SinkCodeInjection)},
	{"exec(", string(SinkCodeInjection)},
	{"Function(", string(SinkCodeInjection)},
	{"send_file(", string(SinkPathTraversal)},
	{"send_from_directory(", string(SinkPathTraversal)},
	{"res.sendFile(", string(SinkPathTraversal)},
	{"res.download(", string(SinkPathTraversal)},
	{"render_template_string(", string(SinkXSS)},
	{"Markup(", string(SinkXSS)},
	{"innerHTML", string(SinkXSS)},
	{"document.write(", string(SinkXSS)},
	{"dangerouslySetInnerHTML", string(SinkXSS)},
	{"urlopen(", string(SinkSSRF)},
	{"requests.get(", string(SinkSSRF)},
	{"requests.post(", string(SinkSSRF)},
	{"httpx.get(", string(SinkSSRF)},
	{"fetch(", string(SinkSSRF)},
	{"axios.get(", string(SinkSSRF)},
	{"logging.info(", string(SinkLogInjection)},
	{"logging.debug(", string(SinkLogInjection)},
	{"logging.warning(", string(SinkLogInjection)},
	{"logging.error(", string(SinkLogInjection)},
	{"logger.info(", string(SinkLogInjection)},
	{"console.log(", string(SinkLogInjection)},
}

var assignPattern = regexp.MustCompile(`^\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*=`)

// Path is a single reported source-to-sink flow.
type Path struct {
	File           string
	FunctionQN     graph.QualifiedName // empty when found via the whole-file fallback
	Source         string
	SourceLine     int
	SourceCategory SourceCategory
	Sink           string
	SinkLine       int
	SinkCategory   SinkCategory
	Snippet        string
}

type taintedVar struct {
	line     int
	category SourceCategory
}

// analyzeLines runs the per-line source/sink state machine over a
// contiguous block of lines (a function body or a whole file), reporting
// line numbers relative to startLine (1-based, inclusive of startLine).
func analyzeLines(lines []string, startLine int, file string, fn graph.QualifiedName) []Path {
	var paths []Path
	tainted := make(map[string]taintedVar)

	for i, line := range lines {
		lineNum := startLine + i
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		var prevPtr *string
		if i > 0 {
			prevPtr = &lines[i-1]
		}
		if walk.IsLineSuppressed(line, prevPtr) {
			continue
		}

		for _, sp := range sourcePatterns {
			if !strings.Contains(line, sp.pattern) {
				continue
			}
			if m := assignPattern.FindStringSubmatch(line); m != nil {
				tainted[m[1]] = taintedVar{line: lineNum, category: SourceCategory(sp.category)}
			}
		}

		for _, sink := range sinkPatterns {
			if !strings.Contains(line, sink.pattern) {
				continue
			}
			for varName, tv := range tainted {
				if containsWord(line, varName) {
					paths = append(paths, Path{
						File:           file,
						FunctionQN:     fn,
						Source:         varName,
						SourceLine:     tv.line,
						SourceCategory: tv.category,
						Sink:           sink.pattern,
						SinkLine:       lineNum,
						SinkCategory:   SinkCategory(sink.category),
						Snippet:        trimmed,
					})
				}
			}
			for _, src := range sourcePatterns {
				if strings.Contains(line, src.pattern) {
					paths = append(paths, Path{
						File:           file,
						FunctionQN:     fn,
						Source:         src.pattern,
						SourceLine:     lineNum,
						SourceCategory: SourceCategory(src.category),
						Sink:           sink.pattern,
						SinkLine:       lineNum,
						SinkCategory:   SinkCategory(sink.category),
						Snippet:        trimmed,
					})
				}
			}
		}
	}
	return paths
}

func containsWord(line, word string) bool {
	idx := strings.Index(line, word)
	for idx >= 0 {
		before := idx == 0 || !isWordByte(line[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx == len(line) || !isWordByte(line[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(line[idx+1:], word)
		if next < 0 {
			return false
		}
		idx = idx + 1 + next
	}
	return false
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// AnalyzeFunction scans a single function's body (already split into
// lines, in file order, with startLine the function's first line number)
// for taint flows.
func AnalyzeFunction(fn graph.QualifiedName, file string, lines []string, startLine int) []Path {
	return analyzeLines(lines, startLine, file, fn)
}

// AnalyzeFileFallback scans an entire file as one pseudo-function — used
// when the graph has no Function node covering the file (e.g. the parser
// adapter could not produce spans), so taint-consuming detectors still get
// coverage.
func AnalyzeFileFallback(file string, content string) []Path {
	lines := strings.Split(content, "\n")
	return analyzeLines(lines, 1, file, "")
}
