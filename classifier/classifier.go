// Package classifier assigns one of five triage categories to a test
// failure using an ordered, short-circuit decision procedure: known-issue
// lookup, infrastructure patterns, flake markers, a regression default, and
// a final human-triage fallback.
package classifier

import (
	"regexp"
	"strings"

	"github.com/dougbtv/vllm-ci-mcp/fingerprint"
	"github.com/dougbtv/vllm-ci-mcp/triage"
)

const (
	requiredLabel        = "ci-failure"
	minMatchConfidence   = 0.6
	exactMatchConfidence = 0.9
	fuzzyMatchConfidence = 0.7
	weakMatchConfidence  = 0.5
)

// IssueSearcher is the GitHub issue search collaborator. Implementations
// should return an error (any error) when the search could not be
// performed; the Classifier treats any error as "skip this step".
type IssueSearcher interface {
	SearchIssues(repo, query string, limit int) ([]Issue, error)
}

// Issue is the subset of a GitHub issue needed to judge a match.
type Issue struct {
	Number int
	Title  string
	URL    string
	State  string
	Labels []string
}

// infraPatterns are tried in order against the concatenated error detail;
// the first hit wins.
var infraPatterns = []struct {
	re   *regexp.Regexp
	desc string
}{
	{regexp.MustCompile(`(?i)timeout|timed out`), "timeout detected"},
	{regexp.MustCompile(`(?i)connection refused|network error`), "network issue"},
	{regexp.MustCompile(`(?i)no space left on device|disk full`), "disk space"},
	{regexp.MustCompile(`(?i)out of memory|OOM|CUDA out of memory`), "OOM"},
	{regexp.MustCompile(`(?i)killed by signal|SIGKILL`), "process killed"},
	{regexp.MustCompile(`(?i)cannot allocate memory`), "memory allocation"},
	{regexp.MustCompile(`(?i)failed to download|download error`), "download failure"},
	{regexp.MustCompile(`(?i)agent lost|lost connection to agent`), "agent connection lost"},
}

// flakyPatterns are tried in order against the infra haystack plus the test
// name.
var flakyPatterns = []struct {
	re   *regexp.Regexp
	desc string
}{
	{regexp.MustCompile(`(?i)flaky`), "'flaky' in test name or output"},
	{regexp.MustCompile(`(?i)intermittent`), "intermittent failure"},
	{regexp.MustCompile(`(?i)passed on retry`), "passed on retry"},
}

// Options configures Classify.
type Options struct {
	// Repo is the "owner/name" GitHub repository searched for known
	// issues.
	Repo string
	// Searcher is the issue search collaborator. A nil Searcher skips
	// step 1 entirely, as if the collaborator were unavailable.
	Searcher IssueSearcher
}

// Classify applies the ordered classification heuristics to failure and
// returns its FailureClassification. It never returns an error: any
// failure to reach GitHub degrades silently to the pattern-based steps.
func Classify(failure triage.TestFailure, opts Options) triage.FailureClassification {
	key := fingerprint.FailureKey(failure.JobName, failure.TestName, failure.ErrorMessage)

	if opts.Searcher != nil {
		if issue, ok := findKnownIssue(opts.Searcher, opts.Repo, failure); ok {
			return triage.FailureClassification{
				FailureKey:  key,
				TestFailure: failure,
				Category:    triage.CategoryKnownTracked,
				GitHubIssue: issue.match.URL,
				Confidence:  issue.confidence,
				Reason:      "Existing GitHub issue: " + issue.match.Title,
			}
		}
	}

	haystack := strings.Join(nonEmpty(failure.ErrorMessage, failure.StackTrace, failure.LogSnippet), "\n")

	for _, p := range infraPatterns {
		if p.re.MatchString(haystack) {
			return triage.FailureClassification{
				FailureKey:  key,
				TestFailure: failure,
				Category:    triage.CategoryInfraSuspected,
				Confidence:  triage.ConfidenceInfraSuspected,
				Reason:      "Infrastructure issue detected: " + p.desc,
			}
		}
	}

	for _, p := range flakyPatterns {
		if p.re.MatchString(failure.TestName) || p.re.MatchString(haystack) {
			return triage.FailureClassification{
				FailureKey:  key,
				TestFailure: failure,
				Category:    triage.CategoryFlakySuspected,
				Confidence:  triage.ConfidenceFlakySuspected,
				Reason:      "Flaky test indicator: " + p.desc,
			}
		}
	}

	if failure.ErrorMessage != "" {
		return triage.FailureClassification{
			FailureKey:  key,
			TestFailure: failure,
			Category:    triage.CategoryNewRegression,
			Confidence:  triage.ConfidenceNewRegression,
			Reason:      "New failure with no known pattern",
		}
	}

	return triage.FailureClassification{
		FailureKey:  key,
		TestFailure: failure,
		Category:    triage.CategoryNeedsTriage,
		Confidence:  triage.ConfidenceNeedsTriage,
		Reason:      "Insufficient data for automatic classification",
	}
}

type matched struct {
	match      Issue
	confidence float64
}

// findKnownIssue runs the two-query issue search strategy: an exact quoted
// query first (first accepted match wins), falling back to a broad query
// (highest-confidence accepted match wins).
func findKnownIssue(searcher IssueSearcher, repo string, failure triage.TestFailure) (matched, bool) {
	exactQuery := `"` + failure.TestName + `" label:` + requiredLabel + ` is:issue is:open`
	if issues, err := searcher.SearchIssues(repo, exactQuery, 3); err == nil {
		for _, iss := range issues {
			if m, ok := scoreMatch(iss, failure); ok {
				return m, true
			}
		}
	}

	broadQuery := failure.TestName + ` label:` + requiredLabel + ` is:issue is:open`
	issues, err := searcher.SearchIssues(repo, broadQuery, 5)
	if err != nil {
		return matched{}, false
	}

	var best matched
	found := false
	for _, iss := range issues {
		m, ok := scoreMatch(iss, failure)
		if !ok {
			continue
		}
		if !found || m.confidence > best.confidence {
			best = m
			found = true
		}
	}
	return best, found
}

// scoreMatch validates and scores a single candidate issue against a
// failure. ok is false when the issue lacks the required label or its
// confidence falls below minMatchConfidence.
func scoreMatch(iss Issue, failure triage.TestFailure) (matched, bool) {
	if !hasLabel(iss.Labels, requiredLabel) {
		return matched{}, false
	}

	title := strings.ToLower(iss.Title)
	confidence := weakMatchConfidence

	if strings.Contains(title, strings.ToLower(failure.TestName)) || anySegmentMatches(title, failure.TestName) {
		confidence = exactMatchConfidence
	} else if failure.JobName != "" && strings.Contains(title, strings.ToLower(failure.JobName)) {
		confidence = fuzzyMatchConfidence
	}

	if confidence < minMatchConfidence {
		return matched{}, false
	}
	return matched{match: iss, confidence: confidence}, true
}

func anySegmentMatches(lowerTitle, testName string) bool {
	for _, seg := range strings.Split(testName, "::") {
		if len(seg) > 3 && strings.Contains(lowerTitle, strings.ToLower(seg)) {
			return true
		}
	}
	return false
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, want) {
			return true
		}
	}
	return false
}

func nonEmpty(ss ...string) []string {
	var out []string
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

