// Package logparser extracts pytest test failures from raw, often noisy,
// Buildkite job log text.
//
// Buildkite interleaves two kinds of noise into streamed build output that
// have nothing to do with the test runner: ANSI color escapes and inline
// timestamp markers of the form `_bk;t=<millis><BEL>`. Neither is
// whitespace, so a pattern built from `\S+` tokens matches straight through
// them; this package relies on that rather than pre-stripping the log,
// because pre-stripping would shift the byte offsets later stages use to
// carve out a test's failure section.
package logparser

import (
	"regexp"
	"strings"

	"github.com/dougbtv/vllm-ci-mcp/triage"
)

const (
	maxErrorMessageLen = 200
	maxStackTraceLen   = 1000
	maxLogSnippetLen   = 500

	// JobFailedWithoutTestsMessage is the synthetic error message used when
	// a job fails without producing any recognizable pytest test names.
	JobFailedWithoutTestsMessage = "Job failed without pytest test names"
)

// noise matches one occurrence of ANSI color escape or a Buildkite inline
// timestamp marker. Neither is whitespace, so a token built from \S can
// span straight across it.
const noise = `(?:\x1b\[[0-9;]*m|_bk;t=[0-9]+\x07?)`

var (
	noiseRE = regexp.MustCompile(noise)

	// legacyRE matches "FAILED <nodeid>" / "ERROR <nodeid>" / "PASSED <nodeid>",
	// tolerating noise before the status word, between the status word and
	// the nodeid, and inside the nodeid itself.
	legacyRE = regexp.MustCompile(noise + `*(FAILED|ERROR|PASSED)` + noise + `*[ \t]+` + noise + `*(\S+)`)

	// modernRE matches "<nodeid> FAILED|ERROR|PASSED".
	modernRE = regexp.MustCompile(noise + `*(\S+)` + noise + `*[ \t]+` + noise + `*(FAILED|ERROR|PASSED)\b`)

	shortSummaryHeaderRE = regexp.MustCompile(`={3,}\s*short test summary info\s*={3,}`)
	sectionEndRE         = regexp.MustCompile(`={3,}`)

	// errorSignaturePatterns are tried in order; the first match wins. The
	// generic <Word>Error pattern comes first per the source behavior, with
	// the named exceptions kept as explicit fallbacks for messages that
	// don't present as "WordError: ...".
	errorSignaturePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\w+Error): (.+?)(?:\n|$)`),
		regexp.MustCompile(`AssertionError: (.+?)(?:\n|$)`),
		regexp.MustCompile(`RuntimeError: (.+?)(?:\n|$)`),
		regexp.MustCompile(`TimeoutError: (.+?)(?:\n|$)`),
	}
)

// clean strips ANSI/timestamp noise from a captured token.
func clean(s string) string {
	return noiseRE.ReplaceAllString(s, "")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// match is one (status, nodeid) occurrence found in a log, in the order it
// was found.
type match struct {
	status string // FAILED | ERROR | PASSED
	nodeid string
	pos    int
}

// findAllMatches returns every legacy- and modern-form status line in text,
// in the order they appear.
func findAllMatches(text string) []match {
	var out []match
	for _, m := range legacyRE.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, match{
			status: text[m[2]:m[3]],
			nodeid: clean(text[m[4]:m[5]]),
			pos:    m[0],
		})
	}
	for _, m := range modernRE.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, match{
			status: text[m[4]:m[5]],
			nodeid: clean(text[m[2]:m[3]]),
			pos:    m[0],
		})
	}
	// Stable-sort by position so legacy/modern matches interleave in
	// document order, not in per-regex order.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].pos < out[j-1].pos; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// FindSection returns the underscore-delimited pytest failure section for a
// nodeid, e.g. the block between two `__________` rules surrounding the
// nodeid. ok is false when no such section exists.
func FindSection(log, nodeid string) (section string, ok bool) {
	re, err := regexp.Compile(`_{10,}\s*` + regexp.QuoteMeta(nodeid) + `\s*_{10,}`)
	if err != nil {
		return "", false
	}
	loc := re.FindStringIndex(log)
	if loc == nil {
		return "", false
	}
	rest := log[loc[1]:]
	if end := regexp.MustCompile(`_{10,}`).FindStringIndex(rest); end != nil {
		return rest[:end[0]], true
	}
	return rest, true
}

// MatchErrorSignature applies the ordered error-signature patterns to text
// and returns the first match's full "Error: message" text, trimmed.
func MatchErrorSignature(text string) (string, bool) {
	for _, re := range errorSignaturePatterns {
		if loc := re.FindStringIndex(text); loc != nil {
			return strings.TrimSpace(text[loc[0]:loc[1]]), true
		}
	}
	return "", false
}

// boundedContext returns up to n bytes of log starting at pos, without
// slicing mid-rune.
func boundedContext(log string, pos, n int) string {
	end := pos + n
	if end > len(log) {
		end = len(log)
	}
	for end > pos && end < len(log) && !isRuneBoundary(log, end) {
		end--
	}
	return log[pos:end]
}

func isRuneBoundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}

// extractDetail fills in ErrorMessage, StackTrace, and LogSnippet for
// nodeid from its pytest section in log, or else from its first occurrence.
func extractDetail(log, nodeid string) (errMsg, stackTrace, snippet string) {
	if section, ok := FindSection(log, nodeid); ok {
		if sig, found := MatchErrorSignature(section); found {
			errMsg = truncate(sig, maxErrorMessageLen)
		}
		stackTrace = truncate(section, maxStackTraceLen)
		snippet = truncate(section, maxLogSnippetLen)
		return errMsg, stackTrace, snippet
	}

	// No underscore section: grab bounded context around the first
	// occurrence of the nodeid (the nodeid plus up to ~10 lines).
	idx := strings.Index(log, nodeid)
	if idx < 0 {
		return "", "", ""
	}
	ctx := boundedContext(log, idx, 2000)
	lines := strings.SplitN(ctx, "\n", 12)
	if len(lines) > 11 {
		lines = lines[:11]
	}
	snippet = truncate(strings.Join(lines, "\n"), maxLogSnippetLen)
	return "", "", snippet
}

// Parse converts a raw job log into a deduplicated, first-occurrence-ordered
// list of TestFailures. It never fails: on logs with no recognizable pytest
// output it returns a single synthetic job-level failure.
func Parse(log, jobName string) []triage.TestFailure {
	matches := findAllMatches(log)

	failures := dedupFailing(log, matches, jobName)
	if len(failures) > 0 {
		return failures
	}

	// Fallback #1: short test summary info section.
	if loc := shortSummaryHeaderRE.FindStringIndex(log); loc != nil {
		rest := log[loc[1]:]
		if end := sectionEndRE.FindStringIndex(rest); end != nil {
			rest = rest[:end[0]]
		}
		if failures = dedupFailing(log, findAllMatches(rest), jobName); len(failures) > 0 {
			return failures
		}
	}

	// Fallback #2: job-level synthetic failure.
	return []triage.TestFailure{{
		TestName:     jobName,
		JobName:      jobName,
		ErrorMessage: JobFailedWithoutTestsMessage,
		LogSnippet:   truncate(lastBytes(log, maxLogSnippetLen), maxLogSnippetLen),
	}}
}

func lastBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !isRuneBoundary(s, start) {
		start++
	}
	return s[start:]
}

// dedupFailing keeps the first occurrence of each failing (FAILED/ERROR)
// nodeid, in order, and fills in their detail.
func dedupFailing(log string, matches []match, jobName string) []triage.TestFailure {
	seen := make(map[string]bool, len(matches))
	var out []triage.TestFailure
	for _, m := range matches {
		if m.status != "FAILED" && m.status != "ERROR" {
			continue
		}
		if seen[m.nodeid] {
			continue
		}
		seen[m.nodeid] = true

		errMsg, stackTrace, snippet := extractDetail(log, m.nodeid)
		out = append(out, triage.TestFailure{
			TestName:     m.nodeid,
			JobName:      jobName,
			ErrorMessage: errMsg,
			StackTrace:   stackTrace,
			LogSnippet:   snippet,
		})
	}
	return out
}

// Outcome is the result of searching a log for a specific nodeid.
type Outcome struct {
	Found        bool
	Status       triage.TestStatus
	ErrorMessage string
	LogExcerpt   string
}

// FindOutcomeFor searches log for the given nodeid in any status form and
// reports its outcome. When a nodeid appears more than once (e.g. a retry),
// the last occurrence wins, since it reflects the most recent attempt.
func FindOutcomeFor(log, nodeid string) Outcome {
	var last *match
	for _, m := range findAllMatches(log) {
		if m.nodeid != nodeid {
			continue
		}
		m := m
		last = &m
	}
	if last == nil {
		return Outcome{Found: false, Status: triage.StatusUnknown}
	}

	switch last.status {
	case "PASSED":
		return Outcome{Found: true, Status: triage.StatusPass}
	case "FAILED", "ERROR":
		errMsg, _, snippet := extractDetail(log, nodeid)
		return Outcome{Found: true, Status: triage.StatusFail, ErrorMessage: errMsg, LogExcerpt: snippet}
	default:
		return Outcome{Found: true, Status: triage.StatusUnknown}
	}
}
