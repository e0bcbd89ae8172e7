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
	pickleLoadPattern   = regexp.MustCompile(`(?i)\b(?:pickle|cPickle|_pickle|dill|cloudpickle)\.(?:load|loads)\s*\(`)
	torchLoadPattern    = regexp.MustCompile(`(?i)\btorch\.load\s*\([^)]*\)`)
	torchSafePattern    = regexp.MustCompile(`(?i)weights_only\s*=\s*True`)
	joblibLoadPattern   = regexp.MustCompile(`(?i)\bjoblib\.load\s*\(`)
	numpyLoadPattern    = regexp.MustCompile(`(?i)\b(?:numpy|np)\.load\s*\([^)]*\)`)
	numpyPicklePattern  = regexp.MustCompile(`(?i)allow_pickle\s*=\s*True`)
	yamlLoadPattern     = regexp.MustCompile(`(?i)\byaml\.(?:load|unsafe_load|full_load)\s*\([^)]*\)`)
	yamlSafeLoaders     = regexp.MustCompile(`(?i)Loader\s*=\s*(?:yaml\.)?(?:Safe|CSafe|Base)Loader`)
	marshalLoadPattern  = regexp.MustCompile(`(?i)\bmarshal\.(?:load|loads)\s*\(`)
	shelveOpenPattern   = regexp.MustCompile(`(?i)\bshelve\.open\s*\(`)
)

type picklePatternType string

const (
	picklePickleLoad  picklePatternType = "pickle_load"
	pickleTorchUnsafe picklePatternType = "torch_load_unsafe"
	pickleJoblib      picklePatternType = "joblib_load"
	pickleNumpy       picklePatternType = "numpy_pickle"
	pickleYAMLUnsafe  picklePatternType = "yaml_unsafe"
	pickleMarshal     picklePatternType = "marshal_load"
	pickleShelve      picklePatternType = "shelve_open"
)

var pickleDescriptions = map[picklePatternType]string{
	picklePickleLoad:  "pickle.load()/loads() — arbitrary code execution on untrusted data",
	pickleTorchUnsafe: "torch.load() without weights_only=True — can execute arbitrary code",
	pickleJoblib:      "joblib.load() — uses pickle internally, arbitrary code execution",
	pickleNumpy:       "numpy.load() with allow_pickle=True — enables pickle execution",
	pickleYAMLUnsafe:  "yaml.load() without SafeLoader — arbitrary code execution",
	pickleMarshal:     "marshal.load() — Python bytecode execution",
	pickleShelve:      "shelve.open() — uses pickle internally",
}

var pickleRecommendations = map[picklePatternType]string{
	picklePickleLoad:  "Avoid pickle for untrusted data; use JSON, Protocol Buffers, or msgpack with strict mode. If pickle is unavoidable, verify the source's signature before loading.",
	pickleTorchUnsafe: "Pass weights_only=True to torch.load(), or migrate to the safetensors format.",
	pickleJoblib:      "Verify the source/checksum before loading, or switch to ONNX/skops for model storage.",
	pickleNumpy:       "Avoid allow_pickle=True; store plain arrays, or verify the source before enabling pickle.",
	pickleYAMLUnsafe:  "Use yaml.safe_load() or yaml.load(content, Loader=yaml.SafeLoader).",
	pickleMarshal:     "Avoid marshal for data exchange — use JSON or pickle with signature verification for bytecode.",
	pickleShelve:      "Use SQLite or JSON for persistent key-value storage instead of shelve.",
}

func checkPickleLine(line string) (picklePatternType, bool) {
	stripped := strings.TrimSpace(line)
	if strings.HasPrefix(stripped, "#") {
		return "", false
	}
	switch {
	case pickleLoadPattern.MatchString(line):
		return picklePickleLoad, true
	case torchLoadPattern.MatchString(line) && !torchSafePattern.MatchString(line):
		return pickleTorchUnsafe, true
	case joblibLoadPattern.MatchString(line):
		return pickleJoblib, true
	case numpyLoadPattern.MatchString(line) && numpyPicklePattern.MatchString(line):
		return pickleNumpy, true
	case yamlLoadPattern.MatchString(line) && !yamlSafeLoaders.MatchString(line) && !strings.Contains(strings.ToLower(line), "safe_load"):
		return pickleYAMLUnsafe, true
	case marshalLoadPattern.MatchString(line):
		return pickleMarshal, true
	case shelveOpenPattern.MatchString(line):
		return pickleShelve, true
	default:
		return "", false
	}
}

// PickleDeserializationDetector flags unsafe deserialization calls
// (pickle/torch/joblib/numpy/yaml/marshal/shelve) that can execute
// arbitrary code on untrusted input (CWE-502).
type PickleDeserializationDetector struct {
	config      DetectorConfig
	maxFindings int
}

// NewPickleDeserializationDetector constructs the detector with the given config.
func NewPickleDeserializationDetector(config DetectorConfig) *PickleDeserializationDetector {
	return &PickleDeserializationDetector{config: config, maxFindings: config.Int("max_findings", 100)}
}

func (d *PickleDeserializationDetector) Name() string { return "pickle_deserialization" }
func (d *PickleDeserializationDetector) Description() string {
	return "Detects unsafe deserialization patterns (pickle, torch.load, yaml.load, etc.)"
}
func (d *PickleDeserializationDetector) Category() string      { return "security" }
func (d *PickleDeserializationDetector) Config() DetectorConfig { return d.config }
func (d *PickleDeserializationDetector) Scope() DetectorScope  { return ScopePerFile }

func (d *PickleDeserializationDetector) Detect(ctx context.Context, qc *graph.QueryCache, files []string) ([]finding.Finding, error) {
	var out []finding.Finding
	seen := make(map[string]bool)
	exts := map[string]bool{"py": true}

	for _, path := range filterFilesByExt(files, exts) {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		if len(out) >= d.maxFindings {
			break
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

			patternType, matched := checkPickleLine(line)
			if !matched {
				continue
			}
			locKey := fmt.Sprintf("%s:%d", path, lineNum)
			if seen[locKey] {
				continue
			}
			seen[locKey] = true

			desc := pickleDescriptions[patternType]
			description := fmt.Sprintf(
				"Unsafe deserialization: %s. Location %s:%d. Code: `%s`. Deserializing untrusted data lets an attacker who controls the input achieve remote code execution.",
				desc, path, lineNum, strings.TrimSpace(line),
			)

			f := finding.Finding{
				ID:            DeterministicID(d.Name(), path, lineNum, string(patternType)),
				Detector:      d.Name(),
				Severity:      finding.High,
				Title:         "Unsafe Deserialization (CWE-502)",
				Description:   description,
				AffectedFiles: []string{path},
				LineStart:     lineNum,
				LineEnd:       lineNum,
				SuggestedFix:  pickleRecommendations[patternType],
				Category:      "security",
				CWEID:         "CWE-502",
				WhyItMatters:  "Insecure deserialization can lead to remote code execution, giving an attacker complete control of the application and server.",
				Confidence:    0.9,
			}
			ApplyPathDowngrade(&f, pathClass)
			out = append(out, f)

			if len(out) >= d.maxFindings {
				return out, nil
			}
		}
	}
	return out, nil
}
