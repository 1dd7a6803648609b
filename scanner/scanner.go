// Package scanner resolves a Buildkite build, fetches its failed jobs'
// logs with bounded concurrency, and runs them through the LogParser,
// Classifier, and ownership resolver to produce a deduplicated
// ScanResult.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dougbtv/vllm-ci-mcp/classifier"
	"github.com/dougbtv/vllm-ci-mcp/experiments"
	"github.com/dougbtv/vllm-ci-mcp/logger"
	"github.com/dougbtv/vllm-ci-mcp/logparser"
	"github.com/dougbtv/vllm-ci-mcp/pool"
	"github.com/dougbtv/vllm-ci-mcp/triage"
)

const (
	// MaxFailedJobsToProcess caps how many failed jobs within one build
	// are fetched and classified.
	MaxFailedJobsToProcess = 10

	nightlyWindow = 48 * time.Hour

	maxConcurrentLogFetches = 8
)

// DetailLevel controls how much detail a ScanResult's failures retain.
type DetailLevel string

const (
	DetailMinimal DetailLevel = "minimal"
	DetailSummary DetailLevel = "summary"
	DetailFull    DetailLevel = "full"
)

// BuildkiteClient is the subset of Buildkite API operations the Scanner
// needs.
type BuildkiteClient interface {
	ListBuilds(ctx context.Context, pipelineSlug, branch string, since time.Time) ([]triage.BuildInfo, error)
	GetBuild(ctx context.Context, pipelineSlug, buildNumber string) (triage.BuildInfo, []triage.JobInfo, error)
	GetJobLog(ctx context.Context, pipelineSlug, buildNumber, jobID string) (string, error)
}

// OwnerResolver infers the owner of a test file path.
type OwnerResolver interface {
	Infer(testFilePath string) (owner string, confidence float64, ok bool)
}

// Options configures a scan.
type Options struct {
	PipelineSlug string
	// LegacyNightlySelector reverts nightly-build resolution to the
	// deprecated message-based filter ("nightly" substring) instead of
	// source == "schedule".
	LegacyNightlySelector bool
	ClassifierOpts        classifier.Options
	Owners                OwnerResolver
	DetailLevel           DetailLevel
	MaxFailures           int
}

// Scanner resolves and classifies failures for a single build.
type Scanner struct {
	bk BuildkiteClient
}

// New returns a Scanner backed by bk.
func New(bk BuildkiteClient) *Scanner {
	return &Scanner{bk: bk}
}

// ResolveLatestNightly finds the most recent nightly/scheduled build on
// branch. It first looks for source == "schedule" builds within a rolling
// 2-day window; if none are found it takes the most recent analyzable build
// from any source, and failing that the most recent build in the window
// whatever its state. When
// opts.LegacyNightlySelector is set, it instead matches builds whose
// message contains "nightly" (the deprecated selector), for compatibility
// with callers that relied on that behavior.
func (s *Scanner) ResolveLatestNightly(ctx context.Context, pipelineSlug, branch string, opts Options) (triage.BuildInfo, error) {
	since := time.Now().Add(-nightlyWindow)
	builds, err := s.bk.ListBuilds(ctx, pipelineSlug, branch, since)
	if err != nil {
		return triage.BuildInfo{}, fmt.Errorf("scanner: listing builds: %w", err)
	}

	if opts.LegacyNightlySelector {
		for _, b := range builds {
			if strings.Contains(strings.ToLower(b.Message), "nightly") {
				return b, nil
			}
		}
		return triage.BuildInfo{}, fmt.Errorf("scanner: no nightly build found on %s in the last %s", branch, nightlyWindow)
	}

	if b, ok := firstMatching(builds, isScheduledAndAnalyzable); ok {
		return b, nil
	}
	if b, ok := firstMatching(builds, isAnalyzable); ok {
		return b, nil
	}
	if len(builds) > 0 {
		return builds[0], nil
	}
	return triage.BuildInfo{}, fmt.Errorf("scanner: no builds found on %s in the last %s", branch, nightlyWindow)
}

func isScheduledAndAnalyzable(b triage.BuildInfo) bool {
	return b.Source == "schedule" && isAnalyzable(b)
}

func isAnalyzable(b triage.BuildInfo) bool {
	switch b.State {
	case triage.BuildPassed, triage.BuildFailed, triage.BuildFailing, triage.BuildCanceled:
		return true
	default:
		return false
	}
}

func firstMatching(builds []triage.BuildInfo, pred func(triage.BuildInfo) bool) (triage.BuildInfo, bool) {
	for _, b := range builds {
		if pred(b) {
			return b, true
		}
	}
	return triage.BuildInfo{}, false
}

// ScanBuild fetches buildNumber and classifies its failed jobs' test
// failures, returning a deduplicated ScanResult.
func (s *Scanner) ScanBuild(ctx context.Context, opts Options, buildNumber string, log logger.Logger) (triage.ScanResult, error) {
	build, jobs, err := s.bk.GetBuild(ctx, opts.PipelineSlug, buildNumber)
	if err != nil {
		return triage.ScanResult{}, fmt.Errorf("scanner: fetching build #%s: %w", buildNumber, err)
	}

	var failedJobs []triage.JobInfo
	for _, j := range jobs {
		if !j.Passed {
			failedJobs = append(failedJobs, j)
		}
	}
	failedJobCount := len(failedJobs)

	toProcess := failedJobs
	if len(toProcess) > MaxFailedJobsToProcess {
		toProcess = toProcess[:MaxFailedJobsToProcess]
	}

	type jobResult struct {
		index       int
		failures    []triage.TestFailure
		fetchFailed bool
	}

	fetchWidth := 1
	if experiments.IsEnabled(experiments.ConcurrentLogFetch) {
		fetchWidth = maxConcurrentLogFetches
	}

	results := make([]jobResult, len(toProcess))
	p := pool.New(fetchWidth)
	for i, job := range toProcess {
		i, job := i, job
		p.Spawn(func() {
			text, err := s.bk.GetJobLog(ctx, opts.PipelineSlug, buildNumber, job.JobID)
			if err != nil {
				if log != nil {
					log.Warn("scanner: skipping job %q: fetching log: %s", job.JobName, err)
				}
				results[i] = jobResult{index: i, fetchFailed: true}
				return
			}
			results[i] = jobResult{index: i, failures: logparser.Parse(text, job.JobName)}
		})
	}
	p.Wait()

	// Classify in original (API) order, not completion order, so dedup
	// preserves first-occurrence-by-job-order semantics.
	var classified []triage.FailureClassification
	for _, r := range results {
		for _, f := range r.failures {
			c := classifier.Classify(f, opts.ClassifierOpts)
			if opts.Owners != nil {
				if owner, confidence, ok := opts.Owners.Infer(testFilePath(f.TestName)); ok {
					c.Owner = owner
					oc := confidence
					c.OwnerConfidence = &oc
				}
			}
			classified = append(classified, c)
		}
	}

	deduped := dedupe(classified)
	deduped = project(deduped, opts.DetailLevel)
	if max := opts.MaxFailures; max > 0 && len(deduped) > max {
		deduped = deduped[:max]
	} else if opts.MaxFailures == 0 && len(deduped) > 50 {
		deduped = deduped[:50]
	}

	return triage.ScanResult{
		BuildInfo:     build,
		TotalJobs:     len(jobs),
		FailedJobs:    failedJobCount,
		Failures:      deduped,
		ScanTimestamp: time.Now(),
	}, nil
}

// testFilePath extracts the file-path prefix of a pytest nodeid (the part
// before "::"), used as the ownership lookup key.
func testFilePath(nodeid string) string {
	if i := strings.Index(nodeid, "::"); i >= 0 {
		return nodeid[:i]
	}
	return nodeid
}

// dedupe keeps the first occurrence of each failure_key, preserving order.
func dedupe(in []triage.FailureClassification) []triage.FailureClassification {
	seen := make(map[string]bool, len(in))
	out := make([]triage.FailureClassification, 0, len(in))
	for _, c := range in {
		if seen[c.FailureKey] {
			continue
		}
		seen[c.FailureKey] = true
		out = append(out, c)
	}
	return out
}

// project trims each classification's TestFailure detail according to
// level.
func project(in []triage.FailureClassification, level DetailLevel) []triage.FailureClassification {
	switch level {
	case DetailMinimal:
		for i := range in {
			in[i].TestFailure.ErrorMessage = ""
			in[i].TestFailure.StackTrace = ""
			in[i].TestFailure.LogSnippet = ""
			in[i].GitHubIssue = ""
			in[i].Reason = ""
		}
	case DetailSummary:
		for i := range in {
			in[i].TestFailure.StackTrace = ""
			if s := in[i].TestFailure.LogSnippet; len(s) > 200 {
				in[i].TestFailure.LogSnippet = s[:200] + "..."
			}
		}
	case DetailFull, "":
		// retain everything
	}
	return in
}
