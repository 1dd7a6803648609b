// Package dispatch exposes the triage pipeline as a small set of named
// operations, matching the shape of a tool-calling surface: each operation
// takes named parameters and returns a structured result or an error. No
// operation talks to the network directly; all I/O goes through the
// BuildkiteClient/AnalyticsClient/Scanner/HistoryEngine collaborators
// passed to New, so this package is swappable per deployment and trivial
// to unit-test with fakes.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dougbtv/vllm-ci-mcp/classifier"
	"github.com/dougbtv/vllm-ci-mcp/experiments"
	"github.com/dougbtv/vllm-ci-mcp/history"
	"github.com/dougbtv/vllm-ci-mcp/internal/buildkiteapi"
	"github.com/dougbtv/vllm-ci-mcp/logger"
	"github.com/dougbtv/vllm-ci-mcp/logparser"
	"github.com/dougbtv/vllm-ci-mcp/metrics"
	"github.com/dougbtv/vllm-ci-mcp/render"
	"github.com/dougbtv/vllm-ci-mcp/scanner"
	"github.com/dougbtv/vllm-ci-mcp/triage"
)

// DailyWatchPrompt is the prompt template for a human running the daily CI
// watch rotation: resolve the latest nightly build, render both report
// formats, and focus triage effort on hard failures only.
const DailyWatchPrompt = `I'm on CI watch today. My role is to look at the latest nightly build and assess if I need to take action.

Use scan_latest_nightly (pipeline, branch main, repo, search_github=true).

Then give me:

- the Daily Findings output (copy/paste ready)
- the Standup summary output (copy/paste ready)

For soft failed tests, just briefly list. Focus on hard failures, those are the only ones where I am required to take action.`

const (
	// DefaultPipeline is used when a ScanLatestNightly/TestHistory caller
	// omits Pipeline.
	DefaultPipeline = "vllm/ci"
	// DefaultBranch is used when a caller omits Branch.
	DefaultBranch = "main"
	// DefaultRepo is used when a caller omits Repo.
	DefaultRepo = "vllm-project/vllm"
	// DefaultSuiteSlug is used when a caller omits SuiteSlug.
	DefaultSuiteSlug = "ci-1"
	// DefaultLookbackBuilds is used when a caller omits LookbackBuilds.
	DefaultLookbackBuilds = 50
	// DefaultMaxFailures is used when a caller omits MaxFailures.
	DefaultMaxFailures = 50
)

// MatchStrategy selects how GetJobTestFailures locates a job by name.
type MatchStrategy string

const (
	MatchExact MatchStrategy = "exact"
	MatchFuzzy MatchStrategy = "fuzzy"
	MatchID    MatchStrategy = "id"
)

// BuildkiteClient is the subset of Buildkite operations the Dispatcher
// needs beyond what Scanner/HistoryEngine already wrap.
type BuildkiteClient interface {
	GetBuild(ctx context.Context, pipelineSlug, buildNumber string) (triage.BuildInfo, []triage.JobInfo, error)
	GetJobLog(ctx context.Context, pipelineSlug, buildNumber, jobID string) (string, error)
}

// Scanner is the subset of scanner.Scanner the Dispatcher calls.
type Scanner interface {
	ResolveLatestNightly(ctx context.Context, pipelineSlug, branch string, opts scanner.Options) (triage.BuildInfo, error)
	ScanBuild(ctx context.Context, opts scanner.Options, buildNumber string, log logger.Logger) (triage.ScanResult, error)
}

// HistoryEngine is the subset of history.Engine the Dispatcher calls.
type HistoryEngine interface {
	GetTestHistory(ctx context.Context, testNodeID string, opts history.Options) (history.Result, error)
}

// AnalyticsClient is the subset of buildkiteapi.AnalyticsClient the
// Dispatcher calls.
type AnalyticsClient interface {
	ListAnalyticsTests(ctx context.Context, suiteSlug string) ([]buildkiteapi.AnalyticsTest, error)
}

// Dispatcher wires the pipeline's components behind the named operations.
type Dispatcher struct {
	bk        BuildkiteClient
	scanner   Scanner
	history   HistoryEngine
	analytics AnalyticsClient
	log       logger.Logger
	metrics   *metrics.Collector
}

// New returns a Dispatcher. analytics may be nil; analytics operations
// then return an error rather than panicking.
func New(bk BuildkiteClient, sc Scanner, he HistoryEngine, analytics AnalyticsClient, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewBuffer()
	}
	return &Dispatcher{bk: bk, scanner: sc, history: he, analytics: analytics, log: log}
}

// SetMetrics attaches a metrics collector; scan operations will report
// their duration and failure counts through it. A nil Dispatcher.metrics
// (the zero value) disables metrics reporting entirely.
func (d *Dispatcher) SetMetrics(m *metrics.Collector) {
	d.metrics = m
}

// scanScope returns a metrics scope tagged with the operation name, or nil
// when no collector is attached.
func (d *Dispatcher) scanScope(operation string) *metrics.Scope {
	if d.metrics == nil {
		return nil
	}
	return d.metrics.Scope(metrics.Tags{"operation": operation})
}

// ScanReport bundles a ScanResult with the job snapshots used for its
// hard/soft split and its two rendered text views. Jobs is included so a
// caller can later re-render the same result via Render without re-scanning.
type ScanReport struct {
	Result         triage.ScanResult
	Jobs           []triage.JobInfo
	DailyFindings  string
	StandupSummary string
}

func (d *Dispatcher) buildScanReport(ctx context.Context, operation, pipelineSlug, buildNumber string, opts scanner.Options) (ScanReport, error) {
	start := time.Now()
	result, err := d.scanner.ScanBuild(ctx, opts, buildNumber, d.log)
	if scope := d.scanScope(operation); scope != nil {
		scope.Timing("scan.duration", time.Since(start))
		if err == nil {
			scope.Count("scan.failures_found", int64(len(result.Failures)))
		}
	}
	if err != nil {
		return ScanReport{}, err
	}

	_, jobs, err := d.bk.GetBuild(ctx, pipelineSlug, buildNumber)
	if err != nil {
		jobs = nil // rendering still works without the soft/hard split
	}

	return ScanReport{
		Result:         result,
		Jobs:           jobs,
		DailyFindings:  render.DetailedReport(result, jobs),
		StandupSummary: render.StandupSummary(result, jobs),
	}, nil
}

// ScanLatestNightlyRequest configures ScanLatestNightly.
type ScanLatestNightlyRequest struct {
	Pipeline    string
	Branch      string
	Repo        string
	Searcher    classifier.IssueSearcher // nil when SearchGithub is false
	Owners      scanner.OwnerResolver
	DetailLevel scanner.DetailLevel
	MaxFailures int
}

// ScanLatestNightly resolves the most recent nightly/scheduled build on
// req.Branch and scans it.
func (d *Dispatcher) ScanLatestNightly(ctx context.Context, req ScanLatestNightlyRequest) (ScanReport, error) {
	pipeline := withDefault(req.Pipeline, DefaultPipeline)
	branch := withDefault(req.Branch, DefaultBranch)

	sOpts := scanner.Options{
		PipelineSlug:          pipeline,
		DetailLevel:           req.DetailLevel,
		MaxFailures:           withDefaultInt(req.MaxFailures, DefaultMaxFailures),
		Owners:                req.Owners,
		LegacyNightlySelector: experiments.IsEnabled(experiments.LegacyNightlySelector),
		ClassifierOpts:        classifier.Options{Repo: withDefault(req.Repo, DefaultRepo), Searcher: req.Searcher},
	}

	build, err := d.scanner.ResolveLatestNightly(ctx, pipeline, branch, sOpts)
	if err != nil {
		return ScanReport{}, fmt.Errorf("dispatch: resolving latest nightly: %w", err)
	}

	return d.buildScanReport(ctx, "scan_latest_nightly", pipeline, build.BuildNumber, sOpts)
}

// ScanBuildRequest configures ScanBuild.
type ScanBuildRequest struct {
	BuildRef    string
	Pipeline    string
	Repo        string
	Searcher    classifier.IssueSearcher // nil when SearchGithub is false
	Owners      scanner.OwnerResolver
	DetailLevel scanner.DetailLevel
	MaxFailures int
}

// ScanBuild scans a specific build by number or URL.
func (d *Dispatcher) ScanBuild(ctx context.Context, req ScanBuildRequest) (ScanReport, error) {
	pipeline := withDefault(req.Pipeline, DefaultPipeline)

	buildNumber, ok := buildkiteapi.ParseBuildRef(req.BuildRef)
	if !ok {
		return ScanReport{}, fmt.Errorf("dispatch: could not parse a build number from %q", req.BuildRef)
	}

	sOpts := scanner.Options{
		PipelineSlug:   pipeline,
		DetailLevel:    req.DetailLevel,
		MaxFailures:    withDefaultInt(req.MaxFailures, DefaultMaxFailures),
		Owners:         req.Owners,
		ClassifierOpts: classifier.Options{Repo: withDefault(req.Repo, DefaultRepo), Searcher: req.Searcher},
	}

	return d.buildScanReport(ctx, "scan_build", pipeline, buildNumber, sOpts)
}

// TestHistoryRequest configures TestHistory.
type TestHistoryRequest struct {
	NodeID         string
	Branch         string
	Pipeline       string
	LookbackBuilds int
	JobFilter      string
	IncludeLogs    bool
}

// TestHistory walks a test's outcome across recent builds and assesses the
// resulting timeline.
func (d *Dispatcher) TestHistory(ctx context.Context, req TestHistoryRequest) (history.Result, error) {
	if d.history == nil {
		return history.Result{}, fmt.Errorf("dispatch: history engine not configured")
	}

	opts := history.Options{
		PipelineSlug:   withDefault(req.Pipeline, DefaultPipeline),
		Branch:         withDefault(req.Branch, DefaultBranch),
		LookbackBuilds: withDefaultInt(req.LookbackBuilds, DefaultLookbackBuilds),
		JobFilter:      req.JobFilter,
		IncludeLogs:    req.IncludeLogs,
	}

	return d.history.GetTestHistory(ctx, req.NodeID, opts)
}

// TestHistoryAnalyticsRequest configures TestHistoryAnalytics.
type TestHistoryAnalyticsRequest struct {
	TestNameOrNodeID string
	SuiteSlug        string
}

// TestHistoryAnalyticsResult is a single test's analytics snapshot.
type TestHistoryAnalyticsResult struct {
	Found          bool
	IsFlaky        bool
	RecentlyFailed bool
	FailCount      int
}

// TestHistoryAnalytics looks up req.TestNameOrNodeID in the named
// analytics suite's test list.
func (d *Dispatcher) TestHistoryAnalytics(ctx context.Context, req TestHistoryAnalyticsRequest) (TestHistoryAnalyticsResult, error) {
	if d.analytics == nil {
		return TestHistoryAnalyticsResult{}, fmt.Errorf("dispatch: analytics client not configured")
	}

	suite := withDefault(req.SuiteSlug, DefaultSuiteSlug)
	tests, err := d.analytics.ListAnalyticsTests(ctx, suite)
	if err != nil {
		return TestHistoryAnalyticsResult{}, fmt.Errorf("dispatch: listing analytics tests for %s: %w", suite, err)
	}

	scope, name := splitNodeID(req.TestNameOrNodeID)
	for _, t := range tests {
		if analyticsTestMatches(t, scope, name) {
			return TestHistoryAnalyticsResult{
				Found:          true,
				IsFlaky:        t.IsFlaky,
				RecentlyFailed: t.RecentlyFailed,
				FailCount:      t.FailCount,
			}, nil
		}
	}
	return TestHistoryAnalyticsResult{Found: false}, nil
}

// GetJobTestFailuresRequest configures GetJobTestFailures.
type GetJobTestFailuresRequest struct {
	BuildRef      string
	Pipeline      string
	JobNameOrID   string
	MatchStrategy MatchStrategy
}

// ErrNoJobMatch is returned when MatchStrategy finds zero candidate jobs.
var ErrNoJobMatch = fmt.Errorf("dispatch: no job matched")

// ErrAmbiguousJobMatch is returned when MatchStrategy finds more than one
// candidate job; the caller can inspect Candidates for the alternatives.
type ErrAmbiguousJobMatch struct {
	Candidates []string
}

func (e *ErrAmbiguousJobMatch) Error() string {
	return fmt.Sprintf("dispatch: ambiguous job match, candidates: %s", strings.Join(e.Candidates, ", "))
}

// GetJobTestFailures fetches one job's log within a build and parses its
// test failures.
func (d *Dispatcher) GetJobTestFailures(ctx context.Context, req GetJobTestFailuresRequest) ([]triage.TestFailure, error) {
	pipeline := withDefault(req.Pipeline, DefaultPipeline)

	buildNumber, ok := buildkiteapi.ParseBuildRef(req.BuildRef)
	if !ok {
		return nil, fmt.Errorf("dispatch: could not parse a build number from %q", req.BuildRef)
	}

	_, jobs, err := d.bk.GetBuild(ctx, pipeline, buildNumber)
	if err != nil {
		return nil, fmt.Errorf("dispatch: fetching build #%s: %w", buildNumber, err)
	}

	job, err := matchJob(jobs, req.JobNameOrID, req.MatchStrategy)
	if err != nil {
		return nil, err
	}

	logText, err := d.bk.GetJobLog(ctx, pipeline, buildNumber, job.JobID)
	if err != nil {
		return nil, fmt.Errorf("dispatch: fetching log for job %s: %w", job.JobName, err)
	}

	return logparser.Parse(logText, job.JobName), nil
}

func matchJob(jobs []triage.JobInfo, nameOrID string, strategy MatchStrategy) (triage.JobInfo, error) {
	switch strategy {
	case MatchID, "":
		for _, j := range jobs {
			if j.JobID == nameOrID {
				return j, nil
			}
		}
		return triage.JobInfo{}, ErrNoJobMatch
	case MatchExact:
		var matches []triage.JobInfo
		for _, j := range jobs {
			if j.JobName == nameOrID {
				matches = append(matches, j)
			}
		}
		return singleMatch(matches)
	case MatchFuzzy:
		var matches []triage.JobInfo
		lower := strings.ToLower(nameOrID)
		for _, j := range jobs {
			if strings.Contains(strings.ToLower(j.JobName), lower) {
				matches = append(matches, j)
			}
		}
		return singleMatch(matches)
	default:
		return triage.JobInfo{}, fmt.Errorf("dispatch: unknown match strategy %q", strategy)
	}
}

func singleMatch(matches []triage.JobInfo) (triage.JobInfo, error) {
	switch len(matches) {
	case 0:
		return triage.JobInfo{}, ErrNoJobMatch
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = fmt.Sprintf("%s (%s)", m.JobName, m.JobID)
		}
		return triage.JobInfo{}, &ErrAmbiguousJobMatch{Candidates: names}
	}
}

// GetTestAnalyticsBulkRequest configures GetTestAnalyticsBulk.
type GetTestAnalyticsBulkRequest struct {
	NodeIDs   []string
	SuiteSlug string
}

// GetTestAnalyticsBulkResult is the aggregated analytics lookup across
// many nodeids in one suite fetch.
type GetTestAnalyticsBulkResult struct {
	Results         map[string]TestHistoryAnalyticsResult
	NotFound        []string
	MultipleMatches map[string][]string
	Warnings        []string
}

// GetTestAnalyticsBulk resolves analytics for many nodeids against a
// single suite test list, fetched once.
func (d *Dispatcher) GetTestAnalyticsBulk(ctx context.Context, req GetTestAnalyticsBulkRequest) (GetTestAnalyticsBulkResult, error) {
	out := GetTestAnalyticsBulkResult{
		Results:         make(map[string]TestHistoryAnalyticsResult),
		MultipleMatches: make(map[string][]string),
	}

	if d.analytics == nil {
		return out, fmt.Errorf("dispatch: analytics client not configured")
	}

	suite := withDefault(req.SuiteSlug, DefaultSuiteSlug)
	tests, err := d.analytics.ListAnalyticsTests(ctx, suite)
	if err != nil {
		return out, fmt.Errorf("dispatch: listing analytics tests for %s: %w", suite, err)
	}

	for _, nodeID := range req.NodeIDs {
		scope, name := splitNodeID(nodeID)

		var matches []buildkiteapi.AnalyticsTest
		for _, t := range tests {
			if analyticsTestMatches(t, scope, name) {
				matches = append(matches, t)
			}
		}

		switch len(matches) {
		case 0:
			out.NotFound = append(out.NotFound, nodeID)
		case 1:
			t := matches[0]
			out.Results[nodeID] = TestHistoryAnalyticsResult{
				Found:          true,
				IsFlaky:        t.IsFlaky,
				RecentlyFailed: t.RecentlyFailed,
				FailCount:      t.FailCount,
			}
		default:
			names := make([]string, len(matches))
			for i, m := range matches {
				names[i] = m.Name
			}
			out.MultipleMatches[nodeID] = names
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s matched %d tests in suite %s", nodeID, len(matches), suite))
		}
	}

	return out, nil
}

// RenderFormat selects the Render operation's output.
type RenderFormat string

const (
	FormatDailyFindings RenderFormat = "daily_findings"
	FormatStandup       RenderFormat = "standup"
)

// RenderRequest configures Render.
type RenderRequest struct {
	Result triage.ScanResult
	Jobs   []triage.JobInfo
	Format RenderFormat
}

// Render formats a ScanResult using one of the Renderers.
func (d *Dispatcher) Render(req RenderRequest) (string, error) {
	switch req.Format {
	case FormatDailyFindings, "":
		return render.DetailedReport(req.Result, req.Jobs), nil
	case FormatStandup:
		return render.StandupSummary(req.Result, req.Jobs), nil
	default:
		return "", fmt.Errorf("dispatch: unknown render format %q", req.Format)
	}
}

// splitNodeID parses a nodeid into (scope, name) by splitting on the first
// "::". scope is empty when nodeID has no "::" separator.
func splitNodeID(nodeID string) (scope, name string) {
	if i := strings.Index(nodeID, "::"); i >= 0 {
		return nodeID[:i], nodeID[i+2:]
	}
	return "", nodeID
}

// analyticsTestMatches implements the bulk-matching rule: scope matches
// exactly when present, and either the full name matches exactly or the
// parameter-stripped base names match.
func analyticsTestMatches(t buildkiteapi.AnalyticsTest, scope, name string) bool {
	if scope != "" && t.Scope != scope {
		return false
	}
	if t.Name == name {
		return true
	}
	return stripParams(t.Name) == stripParams(name)
}

func stripParams(name string) string {
	if i := strings.Index(name, "["); i >= 0 {
		return name[:i]
	}
	return name
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func withDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
