package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougbtv/vllm-ci-mcp/history"
	"github.com/dougbtv/vllm-ci-mcp/triage"
)

type fakeBuildkiteClient struct {
	builds []triage.BuildInfo
	jobs   map[string][]triage.JobInfo // keyed by build number
	logs   map[string]string           // keyed by job ID
}

func (f *fakeBuildkiteClient) ListBuilds(ctx context.Context, pipelineSlug, branch string, since time.Time) ([]triage.BuildInfo, error) {
	return f.builds, nil
}

func (f *fakeBuildkiteClient) GetBuild(ctx context.Context, pipelineSlug, buildNumber string) (triage.BuildInfo, []triage.JobInfo, error) {
	return triage.BuildInfo{BuildNumber: buildNumber}, f.jobs[buildNumber], nil
}

func (f *fakeBuildkiteClient) GetJobLog(ctx context.Context, pipelineSlug, buildNumber, jobID string) (string, error) {
	return f.logs[jobID], nil
}

func buildWith(n string, t time.Time) triage.BuildInfo {
	return triage.BuildInfo{BuildNumber: n, CreatedAt: t, State: triage.BuildFailed}
}

func TestGetTestHistoryDetectsRegression(t *testing.T) {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	fc := &fakeBuildkiteClient{
		builds: []triage.BuildInfo{
			buildWith("1", base),
			buildWith("2", base.Add(time.Hour)),
			buildWith("3", base.Add(2*time.Hour)),
			buildWith("4", base.Add(3*time.Hour)),
		},
		jobs: map[string][]triage.JobInfo{
			"1": {{JobID: "j1", JobName: "gpu-tests", State: "passed"}},
			"2": {{JobID: "j2", JobName: "gpu-tests", State: "passed"}},
			"3": {{JobID: "j3", JobName: "gpu-tests", State: "failed"}},
			"4": {{JobID: "j4", JobName: "gpu-tests", State: "failed"}},
		},
		logs: map[string]string{
			"j1": "tests/a.py::test_one PASSED",
			"j2": "tests/a.py::test_one PASSED",
			"j3": "FAILED tests/a.py::test_one - AssertionError: boom",
			"j4": "FAILED tests/a.py::test_one - AssertionError: boom",
		},
	}

	e := history.New(fc)
	result, err := e.GetTestHistory(context.Background(), "tests/a.py::test_one", history.Options{
		PipelineSlug: "org/ci",
		Branch:       "main",
	})

	require.NoError(t, err)
	assert.Equal(t, triage.AssessmentRegression, result.Assessment.Classification)
	assert.Equal(t, triage.ConfidenceHigh, result.Assessment.Confidence)
	require.NotNil(t, result.Assessment.TransitionBuild)
	assert.Equal(t, 3, *result.Assessment.TransitionBuild)
	assert.Len(t, result.Timeline, 4)
	assert.NotEmpty(t, result.Summary)
}

func TestGetTestHistoryReportsInsufficientData(t *testing.T) {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	fc := &fakeBuildkiteClient{
		builds: []triage.BuildInfo{
			buildWith("1", base),
			buildWith("2", base.Add(time.Hour)),
		},
		jobs: map[string][]triage.JobInfo{
			"1": {{JobID: "j1", JobName: "gpu-tests", State: "passed"}},
			"2": {{JobID: "j2", JobName: "gpu-tests", State: "passed"}},
		},
		logs: map[string]string{
			"j1": "tests/a.py::test_one PASSED",
			"j2": "tests/a.py::test_one PASSED",
		},
	}

	e := history.New(fc)
	result, err := e.GetTestHistory(context.Background(), "tests/a.py::test_one", history.Options{PipelineSlug: "org/ci"})

	require.NoError(t, err)
	assert.Equal(t, triage.AssessmentInsufficientData, result.Assessment.Classification)
	assert.Equal(t, triage.ConfidenceLow, result.Assessment.Confidence)
}

func TestGetTestHistoryDetectsPersistentFailWithConsistentFingerprint(t *testing.T) {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	fc := &fakeBuildkiteClient{
		builds: []triage.BuildInfo{
			buildWith("1", base),
			buildWith("2", base.Add(time.Hour)),
			buildWith("3", base.Add(2*time.Hour)),
			buildWith("4", base.Add(3*time.Hour)),
		},
		jobs: map[string][]triage.JobInfo{
			"1": {{JobID: "j1", JobName: "gpu-tests", State: "failed"}},
			"2": {{JobID: "j2", JobName: "gpu-tests", State: "failed"}},
			"3": {{JobID: "j3", JobName: "gpu-tests", State: "failed"}},
			"4": {{JobID: "j4", JobName: "gpu-tests", State: "failed"}},
		},
		logs: map[string]string{
			"j1": "FAILED tests/a.py::test_one - AssertionError: boom",
			"j2": "FAILED tests/a.py::test_one - AssertionError: boom",
			"j3": "FAILED tests/a.py::test_one - AssertionError: boom",
			"j4": "FAILED tests/a.py::test_one - AssertionError: boom",
		},
	}

	e := history.New(fc)
	result, err := e.GetTestHistory(context.Background(), "tests/a.py::test_one", history.Options{PipelineSlug: "org/ci"})

	require.NoError(t, err)
	assert.Equal(t, triage.AssessmentPersistentFail, result.Assessment.Classification)
	assert.Equal(t, triage.ConfidenceHigh, result.Assessment.Confidence)
}

func TestAssessFlakeOnsetWithDistinctFingerprints(t *testing.T) {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	fingerprints := []string{"Error A", "Error B", "Error C"}

	var timeline []triage.TimelineEntry
	for i := range 10 {
		entry := triage.TimelineEntry{
			BuildNumber: i + 1,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
			TestFound:   true,
		}
		if i%2 == 0 {
			entry.TestStatus = triage.StatusPass
		} else {
			entry.TestStatus = triage.StatusFail
			entry.Jobs = []triage.JobOutcome{{
				Status:                triage.StatusFail,
				FingerprintNormalized: fingerprints[i%len(fingerprints)],
			}}
		}
		timeline = append(timeline, entry)
	}

	assessment := history.Assess(timeline)

	assert.Equal(t, triage.AssessmentFlakeOnset, assessment.Classification)
	assert.Equal(t, triage.ConfidenceMed, assessment.Confidence)
}

func TestGetTestHistoryNoBuildsFound(t *testing.T) {
	fc := &fakeBuildkiteClient{}
	e := history.New(fc)

	result, err := e.GetTestHistory(context.Background(), "tests/a.py::test_one", history.Options{PipelineSlug: "org/ci"})

	require.NoError(t, err)
	assert.Equal(t, triage.AssessmentInsufficientData, result.Assessment.Classification)
	assert.Empty(t, result.Timeline)
}
