// Package history walks a test's outcomes across recent builds to build a
// Timeline, then assesses that Timeline to classify the test's behavior
// (a clean regression, the onset of flakiness, a persistent failure, or
// sporadic noise).
package history

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dougbtv/vllm-ci-mcp/budget"
	"github.com/dougbtv/vllm-ci-mcp/fingerprint"
	"github.com/dougbtv/vllm-ci-mcp/logparser"
	"github.com/dougbtv/vllm-ci-mcp/triage"
)

// BuildkiteClient is the subset of Buildkite API operations HistoryEngine
// needs.
type BuildkiteClient interface {
	ListBuilds(ctx context.Context, pipelineSlug, branch string, since time.Time) ([]triage.BuildInfo, error)
	GetBuild(ctx context.Context, pipelineSlug, buildNumber string) (triage.BuildInfo, []triage.JobInfo, error)
	GetJobLog(ctx context.Context, pipelineSlug, buildNumber, jobID string) (string, error)
}

// Engine walks a test's history across builds.
type Engine struct {
	bk BuildkiteClient
}

// New returns an Engine backed by bk.
func New(bk BuildkiteClient) *Engine {
	return &Engine{bk: bk}
}

// Options configures a history walk.
type Options struct {
	PipelineSlug   string
	Branch         string
	LookbackBuilds int
	JobFilter      string
	IncludeLogs    bool
}

// Result is the complete output of a history walk.
type Result struct {
	TestNodeID string
	Timeline   []triage.TimelineEntry
	Assessment triage.Assessment
	Summary    string
	Warnings   []string
}

// GetTestHistory walks up to opts.LookbackBuilds builds on opts.Branch,
// oldest first, searching each for testNodeID's outcome, then assesses the
// resulting Timeline.
func (e *Engine) GetTestHistory(ctx context.Context, testNodeID string, opts Options) (Result, error) {
	b := budget.New()

	builds, err := e.bk.ListBuilds(ctx, opts.PipelineSlug, opts.Branch, time.Time{})
	if err != nil {
		return Result{}, fmt.Errorf("history: listing builds: %w", err)
	}
	if opts.LookbackBuilds > 0 && len(builds) > opts.LookbackBuilds {
		builds = builds[:opts.LookbackBuilds]
	}
	if len(builds) == 0 {
		return Result{
			TestNodeID: testNodeID,
			Assessment: triage.Assessment{Classification: triage.AssessmentInsufficientData, Confidence: triage.ConfidenceLow},
			Summary:    fmt.Sprintf("No builds found for test %s", testNodeID),
		}, nil
	}

	sort.Slice(builds, func(i, j int) bool { return builds[i].CreatedAt.Before(builds[j].CreatedAt) })

	var timeline []triage.TimelineEntry
	for _, bi := range builds {
		if len(b.Warnings()) > 0 {
			break
		}
		timeline = append(timeline, e.findTestInBuild(ctx, testNodeID, opts, bi, b))
	}

	var warnings []string
	if exhaustedMidWalk := len(b.Warnings()) > 0 && len(timeline) < len(builds); exhaustedMidWalk {
		warnings = append(warnings, fmt.Sprintf("Stopped scanning after %d builds (budget exhausted)", len(timeline)))
	}
	warnings = append(warnings, b.Warnings()...)

	assessment := Assess(timeline)
	summary := GenerateSummary(testNodeID, timeline, assessment)

	return Result{
		TestNodeID: testNodeID,
		Timeline:   timeline,
		Assessment: assessment,
		Summary:    summary,
		Warnings:   warnings,
	}, nil
}

func (e *Engine) findTestInBuild(ctx context.Context, testNodeID string, opts Options, bi triage.BuildInfo, b *budget.Budget) triage.TimelineEntry {
	entry := triage.TimelineEntry{
		BuildNumber: atoiOrZero(bi.BuildNumber),
		BuildURL:    bi.BuildURL,
		CreatedAt:   bi.CreatedAt,
		CommitSHA:   bi.Commit,
		TestStatus:  triage.StatusUnknown,
	}

	_, jobs, err := e.bk.GetBuild(ctx, opts.PipelineSlug, bi.BuildNumber)
	if err != nil {
		return entry
	}

	if opts.JobFilter != "" {
		jobs = filterJobs(jobs, opts.JobFilter)
	}

	var failedJobs, passedJobs []triage.JobInfo
	for _, j := range jobs {
		switch j.State {
		case "failed":
			failedJobs = append(failedJobs, j)
		case "passed":
			passedJobs = append(passedJobs, j)
		}
	}
	failedJobs, passedJobs = budget.CapJobs(b, failedJobs, passedJobs)

	for _, j := range failedJobs {
		if len(b.Warnings()) > 0 {
			break
		}
		if outcome, ok := e.findTestInJob(ctx, testNodeID, opts, bi.BuildNumber, j, b); ok {
			applyOutcome(&entry, outcome)
		}
	}
	if !entry.TestFound && len(b.Warnings()) == 0 {
		for _, j := range passedJobs {
			if len(b.Warnings()) > 0 {
				break
			}
			if outcome, ok := e.findTestInJob(ctx, testNodeID, opts, bi.BuildNumber, j, b); ok {
				applyOutcome(&entry, outcome)
			}
		}
	}

	return entry
}

func applyOutcome(entry *triage.TimelineEntry, outcome triage.JobOutcome) {
	entry.TestFound = true
	entry.Jobs = append(entry.Jobs, outcome)
	if outcome.Status == triage.StatusFail {
		entry.TestStatus = triage.StatusFail
	} else if entry.TestStatus == triage.StatusUnknown {
		entry.TestStatus = outcome.Status
	}
}

func (e *Engine) findTestInJob(ctx context.Context, testNodeID string, opts Options, buildNumber string, job triage.JobInfo, b *budget.Budget) (triage.JobOutcome, bool) {
	if !b.CanFetchLog(budget.DefaultEstimatedLogSizePerJob) {
		return triage.JobOutcome{}, false
	}

	logText, err := e.bk.GetJobLog(ctx, opts.PipelineSlug, buildNumber, job.JobID)
	if err != nil {
		return triage.JobOutcome{}, false
	}
	b.RecordLogFetch(len(logText))

	outcome := logparser.FindOutcomeFor(logText, testNodeID)
	if !outcome.Found {
		return triage.JobOutcome{}, false
	}

	result := triage.JobOutcome{
		JobName:      job.JobName,
		JobURL:       fmt.Sprintf("https://buildkite.com/%s/builds/%s#job-%s", opts.PipelineSlug, buildNumber, job.JobID),
		Status:       outcome.Status,
		ErrorMessage: outcome.ErrorMessage,
	}
	if opts.IncludeLogs {
		result.LogExcerpt = outcome.LogExcerpt
	}

	if outcome.Status == triage.StatusFail {
		if fp, ok := fingerprint.ExtractFingerprint(logText, testNodeID); ok {
			result.FingerprintRaw = fp
			result.FingerprintNormalized = fp
		} else if outcome.ErrorMessage != "" {
			result.FingerprintNormalized = fingerprint.Normalize(outcome.ErrorMessage)
		}
	}

	return result, true
}

func filterJobs(jobs []triage.JobInfo, filter string) []triage.JobInfo {
	var out []triage.JobInfo
	lower := strings.ToLower(filter)
	for _, j := range jobs {
		if strings.Contains(strings.ToLower(j.JobName), lower) {
			out = append(out, j)
		}
	}
	return out
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
