// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ctxmodel

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// FunctionContext is the behavioral role inferred for a single function.
type FunctionContext int

const (
	ContextUtility FunctionContext = iota
	ContextHandler
	ContextCore
	ContextInternal
	ContextTest
	numFunctionContexts = 5
)

// AllFunctionContexts lists every state in canonical index order.
var AllFunctionContexts = [numFunctionContexts]FunctionContext{
	ContextUtility, ContextHandler, ContextCore, ContextInternal, ContextTest,
}

func (c FunctionContext) Index() int { return int(c) }

func functionContextFromIndex(i int) FunctionContext {
	switch i {
	case 0:
		return ContextUtility
	case 1:
		return ContextHandler
	case 2:
		return ContextCore
	case 3:
		return ContextInternal
	default:
		return ContextTest
	}
}

func (c FunctionContext) String() string {
	switch c {
	case ContextUtility:
		return "utility"
	case ContextHandler:
		return "handler"
	case ContextCore:
		return "core"
	case ContextInternal:
		return "internal"
	case ContextTest:
		return "test"
	default:
		return "unknown"
	}
}

// SkipCoupling reports whether coupling-style detectors should be skipped
// for functions in this context.
func (c FunctionContext) SkipCoupling() bool {
	return c == ContextUtility || c == ContextHandler || c == ContextTest
}

// SkipDeadCode reports whether dead-code detectors should be skipped for
// functions in this context.
func (c FunctionContext) SkipDeadCode() bool {
	return c == ContextHandler || c == ContextTest
}

// CouplingMultiplier scales a coupling threshold before comparing it
// against a function in this context.
func (c FunctionContext) CouplingMultiplier() float64 {
	switch c {
	case ContextUtility:
		return 3.0
	case ContextHandler:
		return 2.5
	case ContextInternal:
		return 1.5
	case ContextTest:
		return 5.0
	default:
		return 1.0
	}
}

// FileContext is the coarse classification of a file, used to bias
// function-level classification for strong signals like test files.
type FileContext int

const (
	FileSource FileContext = iota
	FileTest
	FileUtil
	FileHandler
	FileInternal
)

// FileContextFromPath classifies a file path using the same substring
// heuristics as the per-function path features.
func FileContextFromPath(path string) FileContext {
	lower := strings.ToLower(path)

	if strings.Contains(lower, "/test") || strings.Contains(lower, "_test.") ||
		strings.Contains(lower, ".test.") || strings.Contains(lower, ".spec.") ||
		strings.Contains(lower, "/__tests__") || strings.Contains(lower, "/__mocks__") {
		return FileTest
	}
	if strings.Contains(lower, "/util") || strings.Contains(lower, "/utils") ||
		strings.Contains(lower, "/helper") || strings.Contains(lower, "/helpers") ||
		strings.Contains(lower, "/common") || strings.Contains(lower, "/shared") ||
		strings.Contains(lower, "/lib/") {
		return FileUtil
	}
	if strings.Contains(lower, "/handler") || strings.Contains(lower, "/callback") ||
		strings.Contains(lower, "/hook") || strings.Contains(lower, "/events") {
		return FileHandler
	}
	if strings.Contains(lower, "/internal") || strings.Contains(lower, "/private") ||
		strings.Contains(lower, "/_") || strings.Contains(lower, "/pkg/") {
		return FileInternal
	}
	return FileSource
}

// FunctionBias returns the forced function context for file contexts with a
// strong enough signal to override feature-based classification. Only test
// files qualify — util/handler/internal files let the per-function features
// decide.
func (fc FileContext) FunctionBias() (FunctionContext, bool) {
	if fc == FileTest {
		return ContextTest, true
	}
	return ContextCore, false
}

const numFeatures = 20

// FunctionFeatures is the observable feature vector extracted from a single
// function's name, path, and call-graph position.
type FunctionFeatures struct {
	HasShortPrefix    bool
	HasTestPrefix     bool
	HasHandlerSuffix  bool
	HasInternalPrefix bool
	IsCapitalized     bool

	IsGoExported    bool
	IsGoInternal    bool
	IsJSExport      bool
	IsJSArrowHandler bool
	IsPythonDunder  bool
	IsPythonPrivate bool

	InTestPath     bool
	InUtilPath     bool
	InHandlerPath  bool
	InInternalPath bool

	FanInRatio       float64
	FanOutRatio      float64
	CallerFileSpread float64

	ComplexityRatio float64
	LOCRatio        float64
	ParamCountRatio float64

	AddressTaken bool
	IsHighFanIn  bool

	FileContext FileContext
}

// shortPrefixCommonWords are prefixes that look short-prefix-shaped but are
// too generic to signal a deliberate C-style naming convention.
var shortPrefixCommonWords = map[string]bool{
	"get": true, "set": true, "is": true, "do": true, "can": true, "has": true,
	"new": true, "old": true, "add": true, "del": true, "pop": true, "put": true,
	"run": true, "try": true, "end": true, "use": true, "for": true, "the": true,
	"and": true, "not": true, "dead": true, "live": true, "test": true, "mock": true,
	"fake": true, "stub": true, "temp": true, "tmp": true, "foo": true, "bar": true,
	"baz": true, "qux": true, "call": true, "read": true, "load": true, "save": true,
	"send": true, "recv": true,
}

func hasShortPrefix(name string) bool {
	idx := strings.IndexByte(name, '_')
	if idx < 2 || idx > 4 {
		return false
	}
	prefix := name[:idx]
	for _, r := range prefix {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return !shortPrefixCommonWords[strings.ToLower(prefix)]
}

// ExtractFunctionFeatures builds the feature vector used to classify a
// function, given its name, file path, and call-graph statistics.
func ExtractFunctionFeatures(
	name, filePath string,
	fanIn, fanOut, maxFanIn, maxFanOut, callerFiles int,
	complexity float64, hasComplexity bool, avgComplexity float64,
	loc int, avgLOC float64,
	paramCount int, avgParams float64,
	addressTaken bool,
) FunctionFeatures {
	nameLower := strings.ToLower(name)
	pathLower := strings.ToLower(filePath)

	isGo := strings.HasSuffix(pathLower, ".go")
	isJS := strings.HasSuffix(pathLower, ".js") || strings.HasSuffix(pathLower, ".jsx") ||
		strings.HasSuffix(pathLower, ".ts") || strings.HasSuffix(pathLower, ".tsx")
	isPython := strings.HasSuffix(pathLower, ".py")
	isC := strings.HasSuffix(pathLower, ".c") || strings.HasSuffix(pathLower, ".h") ||
		strings.HasSuffix(pathLower, ".cpp") || strings.HasSuffix(pathLower, ".hpp")

	var firstUpper, firstLower bool
	if len(name) > 0 {
		r := rune(name[0])
		firstUpper = r >= 'A' && r <= 'Z'
		firstLower = r >= 'a' && r <= 'z'
	}
	isGoExported := isGo && firstUpper
	isGoInternal := isGo && firstLower

	isJSHandler := isJS && (strings.HasPrefix(nameLower, "on") ||
		strings.HasPrefix(nameLower, "handle") ||
		strings.HasSuffix(nameLower, "handler") ||
		strings.HasSuffix(nameLower, "callback") ||
		strings.HasSuffix(nameLower, "listener"))

	isPythonDunder := isPython && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
	isPythonPrivate := isPython && strings.HasPrefix(name, "_") && !strings.HasPrefix(name, "__")

	hasTestPrefix := strings.HasPrefix(nameLower, "test_") ||
		strings.HasPrefix(nameLower, "test") ||
		strings.HasPrefix(nameLower, "spec_") ||
		strings.HasPrefix(nameLower, "it_") ||
		(isGo && strings.HasPrefix(name, "Test")) ||
		(isJS && (strings.HasPrefix(nameLower, "it(") || strings.HasPrefix(nameLower, "describe(")))

	hasHandlerSuffix := strings.HasSuffix(nameLower, "_cb") ||
		strings.HasSuffix(nameLower, "_callback") ||
		strings.HasSuffix(nameLower, "_handler") ||
		strings.HasSuffix(nameLower, "_hook") ||
		strings.HasSuffix(nameLower, "_fn") ||
		(isGo && strings.HasSuffix(name, "Handler")) ||
		(isGo && strings.HasSuffix(name, "Func")) ||
		isJSHandler

	inUtilPath := strings.Contains(pathLower, "/util") ||
		strings.Contains(pathLower, "/utils") ||
		strings.Contains(pathLower, "/common") ||
		strings.Contains(pathLower, "/helper") ||
		strings.Contains(pathLower, "/helpers") ||
		strings.Contains(pathLower, "/lib/") ||
		strings.Contains(pathLower, "/shared") ||
		strings.Contains(pathLower, "/core/") ||
		(isJS && strings.Contains(pathLower, "/src/")) ||
		strings.Contains(pathLower, "utils.") ||
		strings.Contains(pathLower, "helpers.")

	inTestPath := strings.Contains(pathLower, "/test") ||
		strings.Contains(pathLower, "/tests") ||
		strings.Contains(pathLower, "_test.") ||
		strings.Contains(pathLower, ".test.") ||
		strings.Contains(pathLower, ".spec.") ||
		strings.Contains(pathLower, "/spec") ||
		strings.Contains(pathLower, "/__tests__") ||
		strings.Contains(pathLower, "/__mocks__")

	ratio := func(num, den int) float64 {
		if den > 0 {
			return float64(num) / float64(den)
		}
		return 0.0
	}
	callerSpread := 0.0
	if fanIn > 0 {
		callerSpread = float64(callerFiles) / float64(fanIn)
	}
	complexityRatio := 1.0
	if hasComplexity {
		complexityRatio = complexity / math.Max(avgComplexity, 1.0)
	}

	return FunctionFeatures{
		HasShortPrefix:    isC && hasShortPrefix(name),
		HasTestPrefix:     hasTestPrefix,
		HasHandlerSuffix:  hasHandlerSuffix,
		HasInternalPrefix: strings.HasPrefix(name, "_") && !strings.HasPrefix(name, "__"),
		IsCapitalized:     firstUpper,

		IsGoExported:     isGoExported,
		IsGoInternal:     isGoInternal,
		IsJSExport:       isJS && inUtilPath,
		IsJSArrowHandler: isJSHandler,
		IsPythonDunder:   isPythonDunder,
		IsPythonPrivate:  isPythonPrivate,

		InTestPath: inTestPath,
		InUtilPath: inUtilPath,
		InHandlerPath: strings.Contains(pathLower, "/handler") ||
			strings.Contains(pathLower, "/callback") ||
			strings.Contains(pathLower, "/hook") ||
			strings.Contains(pathLower, "/hooks") ||
			strings.Contains(pathLower, "/events"),
		InInternalPath: strings.Contains(pathLower, "/internal") ||
			strings.Contains(pathLower, "/private") ||
			strings.Contains(pathLower, "/_") ||
			(isGo && strings.Contains(pathLower, "/pkg/")),

		FanInRatio:       ratio(fanIn, maxFanIn),
		FanOutRatio:      ratio(fanOut, maxFanOut),
		CallerFileSpread: callerSpread,

		ComplexityRatio: complexityRatio,
		LOCRatio:        float64(loc) / math.Max(avgLOC, 1.0),
		ParamCountRatio: float64(paramCount) / math.Max(avgParams, 1.0),

		AddressTaken: addressTaken,
		IsHighFanIn:  fanIn > 10,

		FileContext: FileContextFromPath(filePath),
	}
}

// ToVector flattens the features into the fixed-order vector the HMM and
// CRF models operate on.
func (f FunctionFeatures) ToVector() [numFeatures]float64 {
	b := func(v bool) float64 {
		if v {
			return 1.0
		}
		return 0.0
	}
	return [numFeatures]float64{
		b(f.HasShortPrefix), b(f.HasTestPrefix), b(f.HasHandlerSuffix), b(f.HasInternalPrefix), b(f.IsCapitalized),
		b(f.IsGoExported), b(f.IsGoInternal), b(f.IsJSExport), b(f.IsJSArrowHandler), b(f.IsPythonDunder), b(f.IsPythonPrivate),
		b(f.InTestPath), b(f.InUtilPath), b(f.InHandlerPath), b(f.InInternalPath),
		f.FanInRatio, f.FanOutRatio, f.CallerFileSpread,
		b(f.AddressTaken), b(f.IsHighFanIn),
	}
}

// LooksLikeUtility applies the quick heuristic used to bootstrap training
// labels, independent of the HMM/CRF models.
func (f FunctionFeatures) LooksLikeUtility() bool {
	return (f.HasShortPrefix && f.IsHighFanIn) ||
		(f.IsGoExported && f.IsHighFanIn) ||
		(f.IsGoExported && f.InUtilPath) ||
		(f.InUtilPath && f.IsHighFanIn) ||
		(f.FanInRatio > 0.3 && f.CallerFileSpread > 0.5) ||
		f.FanInRatio > 0.2
}

// LooksLikeHandler applies the quick handler/callback heuristic.
func (f FunctionFeatures) LooksLikeHandler() bool {
	return f.HasHandlerSuffix || f.IsJSArrowHandler || f.AddressTaken || f.InHandlerPath
}

// LooksLikeTest applies the quick test-function heuristic.
func (f FunctionFeatures) LooksLikeTest() bool {
	return f.HasTestPrefix || f.InTestPath || f.FileContext == FileTest
}

// LooksLikeInternal applies the quick internal/private heuristic.
func (f FunctionFeatures) LooksLikeInternal() bool {
	return f.HasInternalPrefix || f.IsGoInternal || f.IsPythonPrivate || f.InInternalPath
}

// ContextHMM is a 5-state Gaussian-emission HMM over the 20-dim feature
// vector, hand-initialized from heuristic priors and refinable from
// bootstrap-labeled examples.
type ContextHMM struct {
	Initial       [numFunctionContexts]float64                  `json:"initial"`
	Transition    [numFunctionContexts][numFunctionContexts]float64 `json:"transition"`
	EmissionMean  [numFunctionContexts][numFeatures]float64      `json:"emission_mean"`
	EmissionVar   [numFunctionContexts][numFeatures]float64      `json:"emission_var"`
}

// NewContextHMM builds an HMM with the hand-tuned heuristic-derived priors.
func NewContextHMM() *ContextHMM {
	return &ContextHMM{
		Initial: [numFunctionContexts]float64{0.15, 0.10, 0.50, 0.20, 0.05},
		Transition: [numFunctionContexts][numFunctionContexts]float64{
			{0.60, 0.10, 0.15, 0.10, 0.05},
			{0.10, 0.50, 0.20, 0.15, 0.05},
			{0.10, 0.10, 0.55, 0.20, 0.05},
			{0.15, 0.10, 0.25, 0.45, 0.05},
			{0.05, 0.05, 0.10, 0.05, 0.75},
		},
		EmissionMean: [numFunctionContexts][numFeatures]float64{
			{0.5, 0.0, 0.1, 0.1, 0.5, 0.6, 0.2, 0.4, 0.1, 0.1, 0.1, 0.0, 0.7, 0.0, 0.1, 0.7, 0.3, 0.7, 0.2, 0.8},
			{0.2, 0.0, 0.8, 0.1, 0.3, 0.3, 0.3, 0.2, 0.8, 0.1, 0.1, 0.0, 0.1, 0.8, 0.1, 0.3, 0.4, 0.4, 0.8, 0.3},
			{0.1, 0.0, 0.1, 0.1, 0.4, 0.4, 0.4, 0.3, 0.1, 0.1, 0.1, 0.0, 0.1, 0.1, 0.1, 0.3, 0.4, 0.4, 0.1, 0.3},
			{0.1, 0.0, 0.1, 0.7, 0.2, 0.1, 0.7, 0.1, 0.1, 0.1, 0.6, 0.0, 0.1, 0.0, 0.7, 0.1, 0.3, 0.3, 0.1, 0.1},
			{0.0, 0.9, 0.0, 0.0, 0.3, 0.3, 0.3, 0.1, 0.1, 0.1, 0.1, 0.9, 0.0, 0.0, 0.0, 0.1, 0.5, 0.2, 0.0, 0.1},
		},
		EmissionVar: [numFunctionContexts][numFeatures]float64{
			{0.3, 0.3, 0.3, 0.3, 0.2, 0.2, 0.3, 0.2, 0.3, 0.3, 0.3, 0.3, 0.1, 0.3, 0.3, 0.1, 0.2, 0.1, 0.2, 0.1},
			{0.3, 0.3, 0.1, 0.3, 0.3, 0.3, 0.3, 0.3, 0.1, 0.3, 0.3, 0.3, 0.3, 0.1, 0.3, 0.2, 0.2, 0.2, 0.1, 0.2},
			{0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3},
			{0.3, 0.3, 0.3, 0.1, 0.3, 0.3, 0.1, 0.3, 0.3, 0.3, 0.1, 0.3, 0.3, 0.3, 0.1, 0.2, 0.2, 0.2, 0.2, 0.2},
			{0.3, 0.05, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.05, 0.3, 0.3, 0.3, 0.2, 0.2, 0.2, 0.2, 0.2},
		},
	}
}

// logEmissionProb returns the log Gaussian emission probability of vec
// under state s, with a variance floor to avoid division by (near) zero.
func (h *ContextHMM) logEmissionProb(state FunctionContext, vec [numFeatures]float64) float64 {
	s := state.Index()
	logProb := 0.0
	for i := 0; i < numFeatures; i++ {
		mean := h.EmissionMean[s][i]
		v := math.Max(h.EmissionVar[s][i], 0.01)
		x := vec[i]
		logProb += -0.5 * ((x-mean)*(x-mean)/v + math.Log(v))
	}
	return logProb
}

// Classify returns the single most likely context for features, ignoring
// sequence context.
func (h *ContextHMM) Classify(features FunctionFeatures) FunctionContext {
	vec := features.ToVector()
	best := ContextCore
	bestProb := math.Inf(-1)
	for _, state := range AllFunctionContexts {
		prob := h.logEmissionProb(state, vec) + math.Log(h.Initial[state.Index()])
		if prob > bestProb {
			bestProb = prob
			best = state
		}
	}
	return best
}

// ClassifySequence runs Viterbi decoding over an ordered sequence of
// functions (typically all functions in one file, in source order),
// exploiting the transition matrix's bias toward same-context runs.
func (h *ContextHMM) ClassifySequence(features []FunctionFeatures) []FunctionContext {
	n := len(features)
	if n == 0 {
		return nil
	}
	const nStates = numFunctionContexts

	viterbi := make([][nStates]float64, n)
	backpointer := make([][nStates]int, n)
	for s := 0; s < nStates; s++ {
		viterbi[0][s] = math.Inf(-1)
	}

	firstVec := features[0].ToVector()
	for s := 0; s < nStates; s++ {
		viterbi[0][s] = math.Log(h.Initial[s]) + h.logEmissionProb(functionContextFromIndex(s), firstVec)
	}

	for t := 1; t < n; t++ {
		vec := features[t].ToVector()
		for s := 0; s < nStates; s++ {
			viterbi[t][s] = math.Inf(-1)
			emission := h.logEmissionProb(functionContextFromIndex(s), vec)
			for prevS := 0; prevS < nStates; prevS++ {
				prob := viterbi[t-1][prevS] + math.Log(h.Transition[prevS][s]) + emission
				if prob > viterbi[t][s] {
					viterbi[t][s] = prob
					backpointer[t][s] = prevS
				}
			}
		}
	}

	bestLast := 0
	for s := 1; s < nStates; s++ {
		if viterbi[n-1][s] > viterbi[n-1][bestLast] {
			bestLast = s
		}
	}

	path := make([]FunctionContext, n)
	path[n-1] = functionContextFromIndex(bestLast)
	for t := n - 2; t >= 0; t-- {
		path[t] = functionContextFromIndex(backpointer[t+1][path[t+1].Index()])
	}
	return path
}

// ClassifyWithConfidence returns the most likely context and a softmax
// confidence score in [0, 1].
func (h *ContextHMM) ClassifyWithConfidence(features FunctionFeatures) (FunctionContext, float64) {
	vec := features.ToVector()
	var logProbs [numFunctionContexts]float64
	for s := 0; s < numFunctionContexts; s++ {
		logProbs[s] = math.Log(h.Initial[s]) + h.logEmissionProb(functionContextFromIndex(s), vec)
	}

	maxLog := math.Inf(-1)
	for _, lp := range logProbs {
		if lp > maxLog {
			maxLog = lp
		}
	}
	sumExp := 0.0
	for _, lp := range logProbs {
		sumExp += math.Exp(lp - maxLog)
	}

	best := 0
	bestProb := math.Inf(-1)
	for s, lp := range logProbs {
		if lp > bestProb {
			bestProb = lp
			best = s
		}
	}
	confidence := math.Exp(bestProb-maxLog) / sumExp
	return functionContextFromIndex(best), confidence
}

// labeledExample pairs a feature vector with its (bootstrap or confirmed)
// context label.
type labeledExample struct {
	features FunctionFeatures
	context  FunctionContext
}

// Update re-estimates initial and emission parameters from labeled
// examples: Laplace-smoothed initial probabilities, direct (unsmoothed)
// per-state feature mean/variance.
func (h *ContextHMM) Update(examples []labeledExample) {
	if len(examples) == 0 {
		return
	}

	var stateCounts [numFunctionContexts]float64
	var featureSums [numFunctionContexts][numFeatures]float64
	var featureSqSums [numFunctionContexts][numFeatures]float64

	for _, ex := range examples {
		s := ex.context.Index()
		stateCounts[s]++
		vec := ex.features.ToVector()
		for i := 0; i < numFeatures; i++ {
			featureSums[s][i] += vec[i]
			featureSqSums[s][i] += vec[i] * vec[i]
		}
	}

	total := 0.0
	for _, c := range stateCounts {
		total += c
	}
	for s := 0; s < numFunctionContexts; s++ {
		h.Initial[s] = (stateCounts[s] + 1.0) / (total + numFunctionContexts)
	}

	for s := 0; s < numFunctionContexts; s++ {
		n := stateCounts[s]
		if n == 0 {
			continue
		}
		for i := 0; i < numFeatures; i++ {
			mean := featureSums[s][i] / n
			v := math.Max(featureSqSums[s][i]/n-mean*mean, 0.01)
			h.EmissionMean[s][i] = mean
			h.EmissionVar[s][i] = v
		}
	}
}

// GraphExample is the per-function training tuple: features plus the
// call-graph stats BootstrapFromGraph needs to derive a heuristic label.
type GraphExample struct {
	Features     FunctionFeatures
	FanIn        int
	FanOut       int
	AddressTaken bool
}

// BootstrapFromGraph trains the HMM from heuristic labels derived purely
// from FunctionFeatures (looks-like-X checks), no ground truth required.
func (h *ContextHMM) BootstrapFromGraph(data []GraphExample) {
	examples := make([]labeledExample, 0, len(data))
	for _, d := range data {
		var ctx FunctionContext
		switch {
		case d.Features.LooksLikeTest():
			ctx = ContextTest
		case d.Features.LooksLikeHandler():
			ctx = ContextHandler
		case d.Features.LooksLikeUtility():
			ctx = ContextUtility
		case d.Features.LooksLikeInternal():
			ctx = ContextInternal
		default:
			ctx = ContextCore
		}
		examples = append(examples, labeledExample{features: d.Features, context: ctx})
	}
	h.Update(examples)
	// EM refinement intentionally not invoked here: in practice it drifts
	// the emission parameters away from the heuristic prior on small
	// codebases. EMRefine is still available for callers that want it.
}

// EMRefine runs semi-supervised EM: classify with the current model,
// re-estimate parameters from only the high-confidence (>0.7) predictions,
// repeated for the given number of iterations. Disabled by default in
// BootstrapFromGraph.
func (h *ContextHMM) EMRefine(data []GraphExample, iterations int) {
	for iter := 0; iter < iterations; iter++ {
		examples := make([]labeledExample, 0, len(data))
		for _, d := range data {
			ctx, confidence := h.ClassifyWithConfidence(d.Features)
			if confidence > 0.7 {
				examples = append(examples, labeledExample{features: d.Features, context: ctx})
			}
		}
		if len(examples) > len(data)/4 {
			h.Update(examples)
		}
	}
}

// CRFWeights holds discriminative per-state feature weights, trained by
// perceptron updates against the HMM's own bootstrap labels.
type CRFWeights struct {
	FeatureWeights    [numFunctionContexts][numFeatures]float64      `json:"feature_weights"`
	TransitionWeights [numFunctionContexts][numFunctionContexts]float64 `json:"transition_weights"`
}

// NewCRFWeights builds a CRF seeded with the same discriminative signals
// the HMM's emission means were hand-tuned around.
func NewCRFWeights() *CRFWeights {
	w := &CRFWeights{}

	w.FeatureWeights[ContextUtility.Index()][12] = 3.0
	w.FeatureWeights[ContextUtility.Index()][15] = 3.0
	w.FeatureWeights[ContextUtility.Index()][5] = 2.0
	w.FeatureWeights[ContextUtility.Index()][19] = 4.0
	w.FeatureWeights[ContextUtility.Index()][0] = 2.0
	w.FeatureWeights[ContextUtility.Index()][17] = 2.0

	w.FeatureWeights[ContextHandler.Index()][2] = 3.0
	w.FeatureWeights[ContextHandler.Index()][8] = 2.5
	w.FeatureWeights[ContextHandler.Index()][18] = 2.0
	w.FeatureWeights[ContextHandler.Index()][13] = 1.5

	w.FeatureWeights[ContextCore.Index()][4] = 0.5

	w.FeatureWeights[ContextInternal.Index()][3] = 2.0
	w.FeatureWeights[ContextInternal.Index()][6] = 2.0
	w.FeatureWeights[ContextInternal.Index()][10] = 2.0
	w.FeatureWeights[ContextInternal.Index()][14] = 1.5

	w.FeatureWeights[ContextTest.Index()][1] = 4.0
	w.FeatureWeights[ContextTest.Index()][11] = 4.0

	for i := 0; i < numFunctionContexts; i++ {
		w.TransitionWeights[i][i] = 1.0
	}
	w.TransitionWeights[ContextTest.Index()][ContextTest.Index()] = 2.0

	return w
}

// Score computes the discriminative score of classifying features as
// context under the current weights.
func (w *CRFWeights) Score(features FunctionFeatures, context FunctionContext) float64 {
	vec := features.ToVector()
	s := context.Index()
	score := 0.0
	for i, v := range vec {
		score += w.FeatureWeights[s][i] * v
	}
	return score
}

// Predict returns the highest-scoring context for features.
func (w *CRFWeights) Predict(features FunctionFeatures) FunctionContext {
	best := ContextCore
	bestScore := math.Inf(-1)
	for _, ctx := range AllFunctionContexts {
		score := w.Score(features, ctx)
		if score > bestScore {
			bestScore = score
			best = ctx
		}
	}
	return best
}

// Train runs one perceptron pass over labeled examples, nudging weights
// toward the true label and away from the (wrong) prediction.
func (w *CRFWeights) Train(examples []labeledExample, learningRate float64) {
	for _, ex := range examples {
		predicted := w.Predict(ex.features)
		if predicted == ex.context {
			continue
		}
		vec := ex.features.ToVector()
		trueIdx := ex.context.Index()
		predIdx := predicted.Index()
		for i, v := range vec {
			w.FeatureWeights[trueIdx][i] += learningRate * v
			w.FeatureWeights[predIdx][i] -= learningRate * v
		}
	}
}

// ContextClassifier combines the generative HMM with the discriminative
// CRF into a single softmax-blended ensemble, with a per-function-name
// cache and a file-context override for strong signals (test files).
type ContextClassifier struct {
	mu        sync.Mutex
	hmm       *ContextHMM
	crf       *CRFWeights
	cache     map[string]FunctionContext
	hmmWeight float64
}

const defaultHMMWeight = 0.9

// NewContextClassifier builds a classifier with heuristic-default models.
// The HMM/CRF blend weight can be tuned via the REPOTOIRE_HMM_WEIGHT
// environment variable (0.0 = pure CRF, 1.0 = pure HMM).
func NewContextClassifier() *ContextClassifier {
	weight := defaultHMMWeight
	if raw := os.Getenv("REPOTOIRE_HMM_WEIGHT"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			weight = parsed
		}
	}
	return &ContextClassifier{
		hmm:       NewContextHMM(),
		crf:       NewCRFWeights(),
		cache:     make(map[string]FunctionContext),
		hmmWeight: weight,
	}
}

type savedModel struct {
	HMM       *ContextHMM `json:"hmm"`
	CRF       *CRFWeights `json:"crf"`
	HMMWeight float64     `json:"hmm_weight"`
}

// LoadContextClassifier loads a persisted classifier from path, falling
// back to heuristic defaults if the file doesn't exist or fails to parse.
func LoadContextClassifier(path string) *ContextClassifier {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewContextClassifier()
	}
	var saved savedModel
	if err := json.Unmarshal(data, &saved); err != nil || saved.HMM == nil || saved.CRF == nil {
		return NewContextClassifier()
	}
	return &ContextClassifier{
		hmm:       saved.HMM,
		crf:       saved.CRF,
		cache:     make(map[string]FunctionContext),
		hmmWeight: saved.HMMWeight,
	}
}

// Save persists the combined model to path, written atomically via a
// temp-file-then-rename so a crash mid-write never corrupts the file.
func (c *ContextClassifier) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	saved := savedModel{HMM: c.hmm, CRF: c.crf, HMMWeight: c.hmmWeight}
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".contextclassifier-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Classify returns the context for a named function, preferring (in
// order): the per-name cache, a strong file-level bias (test files), then
// the HMM/CRF ensemble (or pure HMM when hmmWeight is 1.0).
func (c *ContextClassifier) Classify(name string, features FunctionFeatures) FunctionContext {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.cache[name]; ok {
		return cached
	}

	if bias, forced := features.FileContext.FunctionBias(); forced {
		c.cache[name] = bias
		return bias
	}

	var context FunctionContext
	if c.hmmWeight < 1.0 {
		context = c.ensembleClassify(features)
	} else {
		context = c.hmm.Classify(features)
	}
	c.cache[name] = context
	return context
}

// ensembleClassify blends the HMM's generative posterior with the CRF's
// discriminative score via a weighted softmax average.
func (c *ContextClassifier) ensembleClassify(features FunctionFeatures) FunctionContext {
	vec := features.ToVector()

	var hmmLogProbs [numFunctionContexts]float64
	for s := 0; s < numFunctionContexts; s++ {
		ctx := functionContextFromIndex(s)
		hmmLogProbs[s] = math.Log(c.hmm.Initial[s]) + c.hmm.logEmissionProb(ctx, vec)
	}
	hmmMax := math.Inf(-1)
	for _, lp := range hmmLogProbs {
		if lp > hmmMax {
			hmmMax = lp
		}
	}
	hmmSum := 0.0
	for _, lp := range hmmLogProbs {
		hmmSum += math.Exp(lp - hmmMax)
	}

	var crfScores [numFunctionContexts]float64
	for s := 0; s < numFunctionContexts; s++ {
		crfScores[s] = c.crf.Score(features, functionContextFromIndex(s))
	}
	crfMax := math.Inf(-1)
	for _, sc := range crfScores {
		if sc > crfMax {
			crfMax = sc
		}
	}
	crfSum := 0.0
	for _, sc := range crfScores {
		crfSum += math.Exp(sc - crfMax)
	}

	var scores [numFunctionContexts]float64
	for s := 0; s < numFunctionContexts; s++ {
		hmmProb := math.Exp(hmmLogProbs[s]-hmmMax) / hmmSum
		crfProb := math.Exp(crfScores[s]-crfMax) / crfSum
		scores[s] = c.hmmWeight*hmmProb + (1.0-c.hmmWeight)*crfProb
	}

	best := 0
	for s := 1; s < numFunctionContexts; s++ {
		if scores[s] > scores[best] {
			best = s
		}
	}
	return functionContextFromIndex(best)
}

// Train bootstraps the HMM from heuristic labels derived from data, then
// (if the ensemble is enabled) trains the CRF by perceptron against the
// HMM's own predictions for one low-learning-rate epoch.
func (c *ContextClassifier) Train(data []GraphExample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hmm.BootstrapFromGraph(data)

	if c.hmmWeight < 1.0 {
		examples := make([]labeledExample, 0, len(data))
		for _, d := range data {
			ctx := c.hmm.Classify(d.Features)
			examples = append(examples, labeledExample{features: d.Features, context: ctx})
		}
		c.crf.Train(examples, 0.05)
	}

	c.cache = make(map[string]FunctionContext)
}
