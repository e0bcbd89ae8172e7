// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ngram

import "testing"

func TestTokenizeLineBasics(t *testing.T) {
	toks := TokenizeLine(`x = "hello"`)
	want := []string{"<ID>", "=", "<STR>"}
	if !equalSlices(toks, want) {
		t.Fatalf("tokens = %v, want %v", toks, want)
	}
}

func TestTokenizeLineKeywordsAndTypes(t *testing.T) {
	toks := TokenizeLine(`func GetUser(id int) *User {`)
	if len(toks) == 0 || toks[0] != "func" {
		t.Fatalf("expected leading keyword, got %v", toks)
	}
	foundType := false
	for _, tok := range toks {
		if tok == "<TYPE>" {
			foundType = true
		}
	}
	if !foundType {
		t.Errorf("expected a <TYPE> token for PascalCase identifiers, got %v", toks)
	}
}

func TestTokenizeLineConstant(t *testing.T) {
	toks := TokenizeLine(`MAX_SIZE = 100`)
	if len(toks) < 1 || toks[0] != "<CONST>" {
		t.Fatalf("expected <CONST> first, got %v", toks)
	}
}

func TestTokenizeLineBlankAndComment(t *testing.T) {
	if toks := TokenizeLine("   "); toks != nil {
		t.Errorf("blank line should tokenize to nil, got %v", toks)
	}
	if toks := TokenizeLine("// a comment"); toks != nil {
		t.Errorf("comment line should tokenize to nil, got %v", toks)
	}
}

func TestTokenizeLineMultiCharOperators(t *testing.T) {
	toks := TokenizeLine(`if x == y {`)
	found := false
	for _, tok := range toks {
		if tok == "==" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected '==' operator token, got %v", toks)
	}
}

func TestTokenizeFileInsertsEOL(t *testing.T) {
	toks := TokenizeFile("x = 1\n\ny = 2\n")
	eolCount := 0
	for _, tok := range toks {
		if tok == "<EOL>" {
			eolCount++
		}
	}
	if eolCount != 2 {
		t.Errorf("expected 2 <EOL> markers for 2 non-blank lines, got %d in %v", eolCount, toks)
	}
}

func TestSurprisalNotConfidentReturnsZero(t *testing.T) {
	m := New()
	m.TrainOnTokens([]string{"<ID>", "=", "<NUM>"})
	if got := m.Surprisal([]string{"<ID>", "=", "<NUM>"}); got != 0 {
		t.Errorf("expected 0 surprisal below confidence threshold, got %f", got)
	}
	if m.IsConfident() {
		t.Error("model should not be confident with so few tokens")
	}
}

func TestSurprisalConfidentModelScoresSeenVsUnseen(t *testing.T) {
	m := New()
	line := []string{"<ID>", "=", "<NUM>", "<EOL>"}
	tokens := make([]string, 0, 6000)
	for i := 0; i < 2000; i++ {
		tokens = append(tokens, line...)
	}
	m.TrainOnTokens(tokens)
	if !m.IsConfident() {
		t.Fatal("expected model to become confident")
	}

	seenSurprisal := m.Surprisal(line)
	unseen := []string{"<STR>", "<TYPE>", "<CONST>", "<NUM>"}
	unseenSurprisal := m.Surprisal(unseen)

	if seenSurprisal >= unseenSurprisal {
		t.Errorf("expected frequently-seen sequence to have lower surprisal: seen=%f unseen=%f", seenSurprisal, unseenSurprisal)
	}
}

func TestFunctionSurprisalPicksPeakLine(t *testing.T) {
	m := New()
	common := []string{"<ID>", "=", "<NUM>", "<EOL>"}
	tokens := make([]string, 0, 6000)
	for i := 0; i < 2000; i++ {
		tokens = append(tokens, common...)
	}
	m.TrainOnTokens(tokens)

	lines := []string{
		"x = 1",
		"x = 1",
		`weirdName = SomeCall(a, b, c) == "unexpected"`,
	}
	avg, max, peak := m.FunctionSurprisal(lines)
	if avg <= 0 || max <= 0 {
		t.Fatalf("expected nonzero avg/max, got avg=%f max=%f", avg, max)
	}
	if peak != 2 {
		t.Errorf("expected peak line 2 (the unusual line), got %d", peak)
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
