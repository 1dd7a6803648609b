// Package fingerprint turns a raw test failure into a stable identity: a
// normalized "fingerprint" of its error text (with run-specific noise like
// UUIDs, timestamps, and addresses scrubbed out) and a short hash-based
// FailureKey used to deduplicate the same failure seen across jobs or
// builds.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/dougbtv/vllm-ci-mcp/logparser"
)

const (
	failureKeyLen           = 16
	maxErrorMessageForKey   = 100
	fallbackScanWindowBytes = 500
)

// normalizationPatterns is applied in order. Order matters: a timestamp can
// contain digit runs that would otherwise be swallowed by the integer
// pattern, and a hex address can look like a run of hex digits that the
// float/integer patterns would mis-parse, so the more specific patterns run
// first.
var normalizationPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`), "<UUID>"},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`), "<TIMESTAMP>"},
	{regexp.MustCompile(`0x[0-9a-fA-F]+`), "<ADDR>"},
	{regexp.MustCompile(`\d+\.\d+`), "<NUM>"},
	{regexp.MustCompile(`\d+`), "<NUM>"},
}

// Normalize replaces run-specific noise in s with stable placeholders, so
// that two failures differing only in a timestamp, memory address, or
// randomly-generated UUID hash to the same fingerprint. Normalize is
// idempotent: normalizing an already-normalized string returns it
// unchanged.
func Normalize(s string) string {
	for _, p := range normalizationPatterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	return s
}

// ExtractFingerprint locates the failure detail for nodeid in log and
// returns its normalized fingerprint. It prefers the underscore-delimited
// pytest section (and, within it, a recognized "WordError: message"
// signature); when no section exists it falls back to scanning the 500
// bytes following the nodeid's FAILED line (or, when the log has no such
// line, its first occurrence), normalizing whatever text is found there.
// ok is false only when nodeid does not appear in log at all.
func ExtractFingerprint(log, nodeid string) (fingerprint string, ok bool) {
	if section, found := logparser.FindSection(log, nodeid); found {
		if sig, matched := logparser.MatchErrorSignature(section); matched {
			return Normalize(sig), true
		}
		return Normalize(firstNonEmptyLine(section)), true
	}

	idx := strings.Index(log, "FAILED "+nodeid)
	if idx < 0 {
		idx = strings.Index(log, nodeid+" FAILED")
	}
	if idx < 0 {
		idx = strings.Index(log, nodeid)
	}
	if idx < 0 {
		return "", false
	}
	end := idx + fallbackScanWindowBytes
	if end > len(log) {
		end = len(log)
	}
	window := log[idx:end]
	if sig, matched := logparser.MatchErrorSignature(window); matched {
		return Normalize(sig), true
	}
	return Normalize(firstNonEmptyLine(window)), true
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			if len(trimmed) > 200 {
				trimmed = trimmed[:200]
			}
			return trimmed
		}
	}
	return ""
}

// FailureKey computes the stable 16-hex-char dedup key for a failure:
// sha256(jobName::testName[::first-line-of-errorMessage]) truncated to its
// first 16 hex characters. jobName is lowercased and spaces replaced with
// underscores first, matching the normalization applied to job names
// elsewhere in the pipeline.
func FailureKey(jobName, testName, errorMessage string) string {
	normalizedJob := strings.ReplaceAll(strings.ToLower(jobName), " ", "_")

	parts := []string{normalizedJob, testName}
	if firstLine := firstLineTruncated(errorMessage, maxErrorMessageForKey); firstLine != "" {
		parts = append(parts, firstLine)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "::")))
	return hex.EncodeToString(sum[:])[:failureKeyLen]
}

func firstLineTruncated(s string, n int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > n {
		s = s[:n]
	}
	return s
}
