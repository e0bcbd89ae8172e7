// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/kraklabs/repotoire/pkg/finding"
	"github.com/kraklabs/repotoire/pkg/graph"
	"github.com/kraklabs/repotoire/pkg/walk"
)

type tlsPattern struct {
	pattern     string
	description string
	severity    finding.Severity
}

var pythonTLSPatterns = []tlsPattern{
	{"verify=False", "requests/urllib call with certificate verification disabled", finding.High},
	{"verify = False", "requests/urllib call with certificate verification disabled", finding.High},
	{"CERT_NONE", "SSL context with no certificate verification", finding.Critical},
	{"check_hostname = False", "SSL hostname verification disabled", finding.High},
	{"check_hostname=False", "SSL hostname verification disabled", finding.High},
	{"InsecureRequestWarning", "urllib3 insecure request warning suppressed", finding.Medium},
	{"create_default_context", "custom SSL context", finding.Low},
}

var jsTLSPatterns = []tlsPattern{
	{"rejectUnauthorized: false", "TLS certificate verification disabled", finding.High},
	{"rejectUnauthorized:false", "TLS certificate verification disabled", finding.High},
	{"rejectUnauthorized : false", "TLS certificate verification disabled", finding.High},
	{"NODE_TLS_REJECT_UNAUTHORIZED", "environment variable used to disable TLS verification", finding.Critical},
	{"agent: new https.Agent", "custom HTTPS agent", finding.Low},
}

var goTLSPatterns = []tlsPattern{
	{"InsecureSkipVerify: true", "TLS certificate verification skipped", finding.High},
	{"InsecureSkipVerify:true", "TLS certificate verification skipped", finding.High},
}

var javaTLSPatterns = []tlsPattern{
	{"TrustAllCerts", "trust-all certificate manager (no validation)", finding.Critical},
	{"X509TrustManager", "custom trust manager (may bypass validation)", finding.Medium},
	{"ALLOW_ALL_HOSTNAME_VERIFIER", "hostname verification disabled", finding.High},
	{"NoopHostnameVerifier", "hostname verification disabled", finding.High},
}

var rustTLSPatterns = []tlsPattern{
	{"danger_accept_invalid_certs(true)", "certificate validation disabled", finding.High},
	{"danger_accept_invalid_hostnames(true)", "hostname validation disabled", finding.High},
	{"set_verify(SslVerifyMode::NONE)", "OpenSSL verification disabled", finding.High},
}

func tlsPatternsForExt(ext string) ([]tlsPattern, string) {
	switch ext {
	case "py", "pyi":
		return pythonTLSPatterns, "python"
	case "js", "jsx", "mjs", "cjs", "ts", "tsx":
		return jsTLSPatterns, "javascript"
	case "go":
		return goTLSPatterns, "go"
	case "java", "kt", "kts":
		return javaTLSPatterns, "java"
	case "rs":
		return rustTLSPatterns, "rust"
	default:
		return nil, ""
	}
}

var insecureTLSExts = map[string]bool{
	"py": true, "pyi": true, "js": true, "jsx": true, "ts": true, "tsx": true,
	"mjs": true, "cjs": true, "go": true, "java": true, "kt": true, "kts": true, "rs": true,
}

// InsecureTLSDetector flags disabled certificate/hostname verification
// across the language-keyed pattern tables above (CWE-295).
type InsecureTLSDetector struct {
	config     DetectorConfig
	maxFindings int
}

// NewInsecureTLSDetector constructs the detector with the given config.
func NewInsecureTLSDetector(config DetectorConfig) *InsecureTLSDetector {
	return &InsecureTLSDetector{config: config, maxFindings: config.Int("max_findings", 50)}
}

func (d *InsecureTLSDetector) Name() string        { return "insecure_tls" }
func (d *InsecureTLSDetector) Description() string { return "Detects disabled TLS/certificate verification (CWE-295)" }
func (d *InsecureTLSDetector) Category() string     { return "security" }
func (d *InsecureTLSDetector) Config() DetectorConfig { return d.config }
func (d *InsecureTLSDetector) Scope() DetectorScope { return ScopePerFile }

func (d *InsecureTLSDetector) Detect(ctx context.Context, qc *graph.QueryCache, files []string) ([]finding.Finding, error) {
	var out []finding.Finding
	seen := make(map[string]bool)

	for _, path := range filterFilesByExt(files, insecureTLSExts) {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		if len(out) >= d.maxFindings {
			break
		}

		patterns, language := tlsPatternsForExt(extOf(path))
		if patterns == nil {
			continue
		}
		lines := readLines(path)
		if lines == nil {
			continue
		}
		pathClass := walk.ClassifyPath(path)

		for i, line := range lines {
			lineNum := i + 1
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "*") {
				continue
			}
			var prevPtr *string
			if i > 0 {
				prevPtr = &lines[i-1]
			}
			if walk.IsLineSuppressedFor(line, prevPtr, d.Name()) {
				continue
			}

			for _, p := range patterns {
				if !strings.Contains(line, p.pattern) {
					continue
				}
				if extOf(path) == "rs" && (strings.HasPrefix(trimmed, "\"") || strings.HasPrefix(trimmed, "&\"") || strings.HasPrefix(trimmed, "r#\"") || strings.HasPrefix(trimmed, "r\"")) {
					continue
				}
				if p.severity == finding.Low {
					continue // low-confidence signal alone is not actionable
				}
				if p.pattern == "InsecureRequestWarning" && !strings.Contains(line, "disable") && !strings.Contains(line, "filter") && !strings.Contains(line, "suppress") {
					continue
				}
				if p.pattern == "X509TrustManager" && !strings.Contains(line, "implements") && !strings.Contains(line, "new") && !strings.Contains(line, "class") {
					continue
				}

				locKey := fmt.Sprintf("%s:%d", path, lineNum)
				if seen[locKey] {
					continue
				}
				seen[locKey] = true

				severity := p.severity
				isTest := pathClass == walk.ClassTest
				confidence := 0.95
				if isTest {
					confidence = 0.7
				}

				description := fmt.Sprintf(
					"%s (CWE-295). Pattern `%s` matched at %s:%d: `%s`. This allows man-in-the-middle attacks: an attacker on the network path can intercept and modify traffic without detection.",
					p.description, p.pattern, path, lineNum, truncate(trimmed, 120),
				)

				f := finding.Finding{
					ID:            DeterministicID(d.Name(), path, lineNum, p.description),
					Detector:      d.Name(),
					Severity:      severity,
					Title:         fmt.Sprintf("Insecure TLS/Certificate Validation (%s)", language),
					Description:   description,
					AffectedFiles: []string{path},
					LineStart:     lineNum,
					LineEnd:       lineNum,
					SuggestedFix:  tlsFixSuggestion(p.pattern, language),
					Category:      "security",
					CWEID:         "CWE-295",
					Confidence:    confidence,
				}
				ApplyPathDowngrade(&f, pathClass)
				out = append(out, f)

				if len(out) >= d.maxFindings {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func tlsFixSuggestion(pattern, language string) string {
	switch language {
	case "python":
		switch {
		case strings.Contains(pattern, "verify"):
			return "Remove `verify=False` or set `verify=True` (default). For self-signed certs in dev, pass `verify='/path/to/ca-bundle.crt'` instead."
		case strings.Contains(pattern, "CERT_NONE"):
			return "Use `ssl.CERT_REQUIRED` instead of `ssl.CERT_NONE`."
		case strings.Contains(pattern, "check_hostname"):
			return "Set `check_hostname = True` (the Python 3.4+ default)."
		default:
			return "Enable certificate verification. Never disable TLS validation in production."
		}
	case "javascript":
		if strings.Contains(pattern, "rejectUnauthorized") {
			return "Remove `rejectUnauthorized: false`. For self-signed certs, supply the CA via the `ca` option instead."
		}
		if strings.Contains(pattern, "NODE_TLS") {
			return "Remove `NODE_TLS_REJECT_UNAUTHORIZED=0`; it disables TLS verification for the entire process."
		}
		return "Enable certificate verification on HTTPS connections."
	case "go":
		return "Remove `InsecureSkipVerify: true` from tls.Config. For self-signed certs, supply a custom CA pool via `RootCAs`."
	case "java":
		return "Use the default TrustManager and HostnameVerifier. For self-signed certs, add the CA to your trust store."
	case "rust":
		return "Remove the danger_accept_invalid_* override. For self-signed certs, add the CA via `add_root_certificate()`."
	default:
		return "Enable certificate verification. Never disable TLS validation in production."
	}
}
