// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ngram

import "strings"

// keywords is the cross-language control-flow/declaration/literal vocabulary
// kept verbatim during tokenization — deduplicated across Rust, Python,
// JS/TS, Go, Java, C#, Kotlin, and C/C++ so the model treats structural
// keywords as meaningful signal rather than noise.
var keywords = buildKeywordSet()

func buildKeywordSet() map[string]bool {
	words := []string{
		// Control flow
		"if", "else", "elif", "for", "while", "do", "loop",
		"break", "continue", "return", "yield", "switch", "case", "default",
		"match", "when", "select", "range",
		// Error handling
		"try", "catch", "except", "finally", "throw", "throws", "raise",
		// Declarations
		"fn", "func", "def", "function", "let", "var", "val", "const",
		"static", "auto", "type", "typedef",
		// OOP / types
		"class", "struct", "enum", "trait", "interface", "impl",
		"extends", "implements", "abstract", "sealed", "final",
		"override", "virtual", "explicit", "friend", "operator",
		"object", "companion", "data",
		// Visibility
		"pub", "private", "protected", "public", "readonly",
		// Modules / imports
		"use", "mod", "import", "export", "from", "package",
		"as", "crate", "super", "namespace", "include",
		// Memory / ownership
		"mut", "ref", "move", "dyn", "unsafe", "extern",
		// Async
		"async", "await", "defer", "go",
		// Literals / builtins
		"true", "false", "True", "False", "null", "nil", "None",
		"undefined", "NaN", "Infinity",
		"self", "Self", "this", "new", "delete", "del",
		// Rust types
		"Box", "Vec", "Option", "Result", "Some", "Ok", "Err",
		// Logic operators (Python)
		"and", "or", "not", "is", "in",
		// Python specific
		"lambda", "pass", "assert", "global", "nonlocal", "with",
		// JS/TS specific
		"typeof", "instanceof", "void",
		// Go specific
		"chan", "map", "make", "append", "len", "cap",
		// Java/C# specific
		"synchronized", "volatile", "transient", "native",
		// C/C++ specific
		"register", "sizeof", "union", "goto", "inline", "restrict",
		"template", "noexcept", "constexpr",
		// Preprocessor
		"define", "ifdef", "ifndef", "endif", "pragma",
		// Misc
		"where",
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func isKeyword(word string) bool { return keywords[word] }

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// twoCharOperators and threeCharOperators drive the greedy multi-character
// operator match so structural tokens like "==" or "=>" stay intact.
var twoCharOperators = map[string]bool{
	"==": true, "!=": true, ">=": true, "<=": true, "&&": true, "||": true,
	"->": true, "=>": true, "::": true, "+=": true, "-=": true, "*=": true,
	"/=": true, "..": true, "<<": true, ">>": true,
}

var threeCharOperators = map[string]bool{
	"===": true, "!==": true, "...": true, ">>>": true, "<<=": true, ">>=": true,
}

// TokenizeLine normalizes a single source line into abstract tokens:
// string/char literals become <STR>, numeric literals become <NUM>,
// SCREAMING_CASE identifiers become <CONST>, PascalCase identifiers become
// <TYPE>, other identifiers become <ID>, keywords and operator characters
// pass through verbatim. Blank lines and lines starting with a `//` or `#`
// comment yield no tokens.
func TokenizeLine(line string) []string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
		return nil
	}

	var tokens []string
	i := 0
	n := len(trimmed)
	for i < n {
		c := trimmed[i]
		switch {
		case c == ' ' || c == '\t':
			i++

		case c == '"' || c == '\'' || c == '`':
			quote := c
			i++
			for i < n {
				cc := trimmed[i]
				i++
				if cc == quote {
					break
				}
				if cc == '\\' && i < n {
					i++
				}
			}
			tokens = append(tokens, "<STR>")

		case isDigit(c):
			j := i
			for j < n && (isIdentChar(trimmed[j]) || trimmed[j] == '.' || trimmed[j] == 'x') {
				j++
			}
			i = j
			tokens = append(tokens, "<NUM>")

		case isIdentStart(c):
			j := i
			for j < n && isIdentChar(trimmed[j]) {
				j++
			}
			word := trimmed[i:j]
			i = j
			switch {
			case isKeyword(word):
				tokens = append(tokens, word)
			case isScreamingCase(word):
				tokens = append(tokens, "<CONST>")
			case word[0] >= 'A' && word[0] <= 'Z':
				tokens = append(tokens, "<TYPE>")
			default:
				tokens = append(tokens, "<ID>")
			}

		default:
			op, consumed := consumeOperator(trimmed[i:])
			tokens = append(tokens, op)
			i += consumed
		}
	}
	return tokens
}

func isScreamingCase(word string) bool {
	hasUpper := false
	for i := 0; i < len(word); i++ {
		c := word[i]
		if c >= 'a' && c <= 'z' {
			return false
		}
		if c >= 'A' && c <= 'Z' {
			hasUpper = true
		}
	}
	return hasUpper
}

func consumeOperator(s string) (string, int) {
	if len(s) >= 3 && threeCharOperators[s[:3]] {
		return s[:3], 3
	}
	if len(s) >= 2 && twoCharOperators[s[:2]] {
		return s[:2], 2
	}
	return s[:1], 1
}

// TokenizeFile tokenizes an entire source file into a flat token sequence,
// inserting an <EOL> marker after every non-empty line's tokens.
func TokenizeFile(content string) []string {
	var tokens []string
	for _, line := range strings.Split(content, "\n") {
		lineTokens := TokenizeLine(line)
		if len(lineTokens) == 0 {
			continue
		}
		tokens = append(tokens, lineTokens...)
		tokens = append(tokens, "<EOL>")
	}
	return tokens
}
