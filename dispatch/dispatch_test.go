package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougbtv/vllm-ci-mcp/dispatch"
	"github.com/dougbtv/vllm-ci-mcp/experiments"
	"github.com/dougbtv/vllm-ci-mcp/history"
	"github.com/dougbtv/vllm-ci-mcp/internal/buildkiteapi"
	"github.com/dougbtv/vllm-ci-mcp/logger"
	"github.com/dougbtv/vllm-ci-mcp/scanner"
	"github.com/dougbtv/vllm-ci-mcp/triage"
)

type fakeBK struct {
	jobs map[string][]triage.JobInfo
	logs map[string]string
}

func (f *fakeBK) ListBuilds(ctx context.Context, pipelineSlug, branch string, since time.Time) ([]triage.BuildInfo, error) {
	return nil, nil
}

func (f *fakeBK) GetBuild(ctx context.Context, pipelineSlug, buildNumber string) (triage.BuildInfo, []triage.JobInfo, error) {
	return triage.BuildInfo{BuildNumber: buildNumber}, f.jobs[buildNumber], nil
}

func (f *fakeBK) GetJobLog(ctx context.Context, pipelineSlug, buildNumber, jobID string) (string, error) {
	return f.logs[jobID], nil
}

type fakeAnalytics struct {
	tests []buildkiteapi.AnalyticsTest
}

func (f *fakeAnalytics) ListAnalyticsTests(ctx context.Context, suiteSlug string) ([]buildkiteapi.AnalyticsTest, error) {
	return f.tests, nil
}

func TestScanLatestNightlyRendersBothViews(t *testing.T) {
	bk := &fakeBK{
		jobs: map[string][]triage.JobInfo{
			"9": {{JobID: "j1", JobName: "gpu-tests", State: "failed"}},
		},
		logs: map[string]string{
			"j1": "FAILED tests/a.py::test_one - AssertionError: boom",
		},
	}
	sc := scanner.New(&listBuildsAndGetBuild{fakeBK: bk, builds: []triage.BuildInfo{
		{BuildNumber: "9", Source: "schedule", State: triage.BuildFailed},
	}})

	d := dispatch.New(bk, sc, nil, nil, logger.NewBuffer())

	report, err := d.ScanLatestNightly(context.Background(), dispatch.ScanLatestNightlyRequest{Pipeline: "org/ci", Branch: "main"})

	require.NoError(t, err)
	assert.Equal(t, "9", report.Result.BuildInfo.BuildNumber)
	assert.Contains(t, report.DailyFindings, "Daily Findings")
	assert.Contains(t, report.StandupSummary, "Nightly build [9]")
}

func TestGetJobTestFailuresExactMatch(t *testing.T) {
	bk := &fakeBK{
		jobs: map[string][]triage.JobInfo{
			"42": {
				{JobID: "j1", JobName: "gpu-tests"},
				{JobID: "j2", JobName: "cpu-tests"},
			},
		},
		logs: map[string]string{
			"j1": "FAILED tests/a.py::test_one - AssertionError: boom",
		},
	}
	d := dispatch.New(bk, nil, nil, nil, logger.NewBuffer())

	failures, err := d.GetJobTestFailures(context.Background(), dispatch.GetJobTestFailuresRequest{
		BuildRef:      "42",
		Pipeline:      "org/ci",
		JobNameOrID:   "gpu-tests",
		MatchStrategy: dispatch.MatchExact,
	})

	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "tests/a.py::test_one", failures[0].TestName)
}

func TestGetJobTestFailuresFuzzyAmbiguous(t *testing.T) {
	bk := &fakeBK{
		jobs: map[string][]triage.JobInfo{
			"42": {
				{JobID: "j1", JobName: "gpu-tests-a"},
				{JobID: "j2", JobName: "gpu-tests-b"},
			},
		},
	}
	d := dispatch.New(bk, nil, nil, nil, logger.NewBuffer())

	_, err := d.GetJobTestFailures(context.Background(), dispatch.GetJobTestFailuresRequest{
		BuildRef:      "42",
		Pipeline:      "org/ci",
		JobNameOrID:   "gpu-tests",
		MatchStrategy: dispatch.MatchFuzzy,
	})

	require.Error(t, err)
	var ambiguous *dispatch.ErrAmbiguousJobMatch
	require.ErrorAs(t, err, &ambiguous)
	assert.Len(t, ambiguous.Candidates, 2)
}

func TestGetTestAnalyticsBulkSplitsFoundAndNotFound(t *testing.T) {
	analytics := &fakeAnalytics{
		tests: []buildkiteapi.AnalyticsTest{
			{Scope: "tests/a.py", Name: "test_one", IsFlaky: true, RecentlyFailed: true, FailCount: 3},
		},
	}
	d := dispatch.New(&fakeBK{}, nil, nil, analytics, logger.NewBuffer())

	result, err := d.GetTestAnalyticsBulk(context.Background(), dispatch.GetTestAnalyticsBulkRequest{
		NodeIDs:   []string{"tests/a.py::test_one", "tests/b.py::test_missing"},
		SuiteSlug: "ci-1",
	})

	require.NoError(t, err)
	require.Contains(t, result.Results, "tests/a.py::test_one")
	assert.True(t, result.Results["tests/a.py::test_one"].IsFlaky)
	assert.Equal(t, []string{"tests/b.py::test_missing"}, result.NotFound)
}

func TestTestHistoryDelegatesToEngine(t *testing.T) {
	he := &fakeHistoryEngine{result: history.Result{TestNodeID: "tests/a.py::test_one"}}
	d := dispatch.New(&fakeBK{}, nil, he, nil, logger.NewBuffer())

	result, err := d.TestHistory(context.Background(), dispatch.TestHistoryRequest{NodeID: "tests/a.py::test_one"})

	require.NoError(t, err)
	assert.Equal(t, "tests/a.py::test_one", result.TestNodeID)
}

func TestScanLatestNightlyHonorsLegacyNightlySelectorExperiment(t *testing.T) {
	undo := experiments.EnableWithUndo(experiments.LegacyNightlySelector)
	defer undo()

	bk := &fakeBK{
		jobs: map[string][]triage.JobInfo{
			"7": {{JobID: "j1", JobName: "gpu-tests", State: "failed"}},
		},
		logs: map[string]string{
			"j1": "FAILED tests/a.py::test_one - AssertionError: boom",
		},
	}
	// Build 8 is scheduled, so the default selector would pick it; only the
	// legacy message-contains-"nightly" selector picks build 7.
	sc := scanner.New(&listBuildsAndGetBuild{fakeBK: bk, builds: []triage.BuildInfo{
		{BuildNumber: "8", Source: "schedule", State: triage.BuildFailed, Message: "scheduled run"},
		{BuildNumber: "7", Source: "ui", State: triage.BuildFailed, Message: "nightly run"},
	}})

	d := dispatch.New(bk, sc, nil, nil, logger.NewBuffer())

	report, err := d.ScanLatestNightly(context.Background(), dispatch.ScanLatestNightlyRequest{Pipeline: "org/ci", Branch: "main"})

	require.NoError(t, err)
	assert.Equal(t, "7", report.Result.BuildInfo.BuildNumber)
}

type fakeHistoryEngine struct {
	result history.Result
}

func (f *fakeHistoryEngine) GetTestHistory(ctx context.Context, testNodeID string, opts history.Options) (history.Result, error) {
	return f.result, nil
}

// listBuildsAndGetBuild adapts fakeBK (GetBuild/GetJobLog only) plus a
// fixed ListBuilds result into scanner.BuildkiteClient.
type listBuildsAndGetBuild struct {
	*fakeBK
	builds []triage.BuildInfo
}

func (l *listBuildsAndGetBuild) ListBuilds(ctx context.Context, pipelineSlug, branch string, since time.Time) ([]triage.BuildInfo, error) {
	return l.builds, nil
}
