// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ngram builds a statistical model of "how this project writes
// code" from token sequences, and scores lines/functions by surprisal
// (negative log probability) against it. Low-probability code is
// unusual — possibly generated, buggy, or inconsistent with the rest of
// the codebase, following the "On the Naturalness of Buggy Code"
// observation that buggy lines carry higher entropy than correct ones.
package ngram

import (
	"math"
	"strings"
)

// DefaultOrder is the n-gram order: trigrams balance precision and
// sparsity for source code token sequences.
const DefaultOrder = 3

// MinTokensForConfidence is the minimum training corpus size before the
// model's surprisal scores are trusted.
const MinTokensForConfidence = 5000

// smoothingK is the additive (Laplace) smoothing constant.
const smoothingK = 0.1

// Model is a smoothed n-gram language model over abstracted code tokens.
type Model struct {
	order int

	counts        map[string]int
	contextCounts map[string]int
	unigramCounts map[string]int

	totalTokens int
	vocabSize   int
	confident   bool
}

// New returns an untrained model of DefaultOrder.
func New() *Model {
	return &Model{
		order:         DefaultOrder,
		counts:        make(map[string]int),
		contextCounts: make(map[string]int),
		unigramCounts: make(map[string]int),
	}
}

// TrainOnTokens feeds one file's (or sequence's) tokens into the model.
// Call once per file during calibration.
func (m *Model) TrainOnTokens(tokens []string) {
	if len(tokens) < m.order {
		return
	}

	for _, t := range tokens {
		m.unigramCounts[t]++
	}

	for i := 0; i+m.order <= len(tokens); i++ {
		window := tokens[i : i+m.order]
		ngram := strings.Join(window, " ")
		context := strings.Join(window[:m.order-1], " ")
		m.counts[ngram]++
		m.contextCounts[context]++
	}

	m.totalTokens += len(tokens)
	m.vocabSize = len(m.unigramCounts)
	m.confident = m.totalTokens >= MinTokensForConfidence
}

// IsConfident reports whether the model has seen enough tokens to trust.
func (m *Model) IsConfident() bool { return m.confident }

// TotalTokens returns the number of tokens trained on.
func (m *Model) TotalTokens() int { return m.totalTokens }

// VocabSize returns the number of distinct tokens seen.
func (m *Model) VocabSize() int { return m.vocabSize }

// Surprisal is the average bits-per-token of tokens under the model:
// the mean over every length-order sliding window of -log2 P(last | context),
// backing off to a smoothed unigram estimate when the context is unseen.
// Returns 0 when the model isn't confident or the sequence is too short to
// judge.
func (m *Model) Surprisal(tokens []string) float64 {
	if !m.confident || len(tokens) < m.order {
		return 0
	}

	v := float64(m.vocabSize)
	if v < 1 {
		v = 1
	}

	total := 0.0
	count := 0
	for i := 0; i+m.order <= len(tokens); i++ {
		window := tokens[i : i+m.order]
		ngram := strings.Join(window, " ")
		context := strings.Join(window[:m.order-1], " ")

		ngramCount := float64(m.counts[ngram])
		contextCount := float64(m.contextCounts[context])

		var prob float64
		if contextCount > 0 {
			prob = (ngramCount + smoothingK) / (contextCount + smoothingK*v)
		} else {
			target := window[m.order-1]
			uniCount := float64(m.unigramCounts[target])
			prob = (uniCount + smoothingK) / (float64(m.totalTokens) + smoothingK*v)
		}

		total += -math.Log2(prob)
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// LineSurprisal tokenizes and scores a single line.
func (m *Model) LineSurprisal(line string) float64 {
	tokens := TokenizeLine(line)
	if len(tokens) < m.order {
		return 0
	}
	return m.Surprisal(tokens)
}

// FunctionSurprisal scores every line of a function independently and
// returns the average surprisal, the maximum per-line surprisal, and the
// (0-based) index of the line that peaked.
func (m *Model) FunctionSurprisal(lines []string) (avg float64, max float64, peakLine int) {
	total := 0.0
	scored := 0
	for i, line := range lines {
		s := m.LineSurprisal(line)
		if s > 0 {
			total += s
			scored++
			if s > max {
				max = s
				peakLine = i
			}
		}
	}
	if scored > 0 {
		avg = total / float64(scored)
	}
	return avg, max, peakLine
}
