package scanner_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougbtv/vllm-ci-mcp/experiments"
	"github.com/dougbtv/vllm-ci-mcp/logger"
	"github.com/dougbtv/vllm-ci-mcp/scanner"
	"github.com/dougbtv/vllm-ci-mcp/triage"
)

type fakeBuildkiteClient struct {
	builds  []triage.BuildInfo
	jobs    []triage.JobInfo
	logs    map[string]string
	logErrs map[string]error
}

func (f *fakeBuildkiteClient) ListBuilds(ctx context.Context, pipelineSlug, branch string, since time.Time) ([]triage.BuildInfo, error) {
	return f.builds, nil
}

func (f *fakeBuildkiteClient) GetBuild(ctx context.Context, pipelineSlug, buildNumber string) (triage.BuildInfo, []triage.JobInfo, error) {
	return triage.BuildInfo{BuildNumber: buildNumber}, f.jobs, nil
}

func (f *fakeBuildkiteClient) GetJobLog(ctx context.Context, pipelineSlug, buildNumber, jobID string) (string, error) {
	if err, ok := f.logErrs[jobID]; ok {
		return "", err
	}
	return f.logs[jobID], nil
}

func TestResolveLatestNightlyPrefersScheduledBuilds(t *testing.T) {
	fc := &fakeBuildkiteClient{
		builds: []triage.BuildInfo{
			{BuildNumber: "10", Source: "ui", State: triage.BuildPassed},
			{BuildNumber: "9", Source: "schedule", State: triage.BuildFailed},
		},
	}
	s := scanner.New(fc)

	build, err := s.ResolveLatestNightly(context.Background(), "org/ci", "main", scanner.Options{})

	require.NoError(t, err)
	assert.Equal(t, "9", build.BuildNumber)
}

func TestResolveLatestNightlyFallsBackWhenNoScheduledBuild(t *testing.T) {
	fc := &fakeBuildkiteClient{
		builds: []triage.BuildInfo{
			{BuildNumber: "10", Source: "ui", State: triage.BuildPassed},
		},
	}
	s := scanner.New(fc)

	build, err := s.ResolveLatestNightly(context.Background(), "org/ci", "main", scanner.Options{})

	require.NoError(t, err)
	assert.Equal(t, "10", build.BuildNumber)
}

func TestScanBuildDeduplicatesAcrossJobs(t *testing.T) {
	fc := &fakeBuildkiteClient{
		jobs: []triage.JobInfo{
			{JobID: "j1", JobName: "GPU Tests", State: "failed"},
			{JobID: "j2", JobName: "gpu tests", State: "failed"},
			{JobID: "j3", JobName: "gpu-tests-c", State: "passed", Passed: true},
		},
		logs: map[string]string{
			"j1": "FAILED tests/a.py::test_one - AssertionError: boom",
			"j2": "FAILED tests/a.py::test_one - AssertionError: boom",
		},
	}
	s := scanner.New(fc)

	result, err := s.ScanBuild(context.Background(), scanner.Options{PipelineSlug: "org/ci"}, "42", logger.NewBuffer())

	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalJobs)
	assert.Equal(t, 2, result.FailedJobs)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "GPU Tests", result.Failures[0].TestFailure.JobName)
}

func TestScanBuildReportsUncappedFailedJobCount(t *testing.T) {
	const numFailed = scanner.MaxFailedJobsToProcess + 5

	var jobs []triage.JobInfo
	logs := map[string]string{}
	for i := range numFailed {
		jobID := fmt.Sprintf("j%d", i)
		jobs = append(jobs, triage.JobInfo{JobID: jobID, JobName: jobID, State: "failed"})
		logs[jobID] = fmt.Sprintf("FAILED tests/a.py::test_%d - AssertionError: boom", i)
	}
	fc := &fakeBuildkiteClient{jobs: jobs, logs: logs}
	s := scanner.New(fc)

	result, err := s.ScanBuild(context.Background(), scanner.Options{PipelineSlug: "org/ci"}, "42", logger.NewBuffer())

	require.NoError(t, err)
	assert.Equal(t, numFailed, result.TotalJobs)
	assert.Equal(t, numFailed, result.FailedJobs)
}

func TestScanBuildSkipsJobsWithFetchErrors(t *testing.T) {
	fc := &fakeBuildkiteClient{
		jobs: []triage.JobInfo{
			{JobID: "j1", JobName: "gpu-tests-a", State: "failed"},
		},
		logErrs: map[string]error{"j1": assertError("boom")},
	}
	s := scanner.New(fc)

	result, err := s.ScanBuild(context.Background(), scanner.Options{PipelineSlug: "org/ci"}, "42", logger.NewBuffer())

	require.NoError(t, err)
	assert.Empty(t, result.Failures)
}

func TestScanBuildWithConcurrentLogFetchExperiment(t *testing.T) {
	undo := experiments.EnableWithUndo(experiments.ConcurrentLogFetch)
	defer undo()

	fc := &fakeBuildkiteClient{
		jobs: []triage.JobInfo{
			{JobID: "j1", JobName: "gpu-tests-a", State: "failed"},
			{JobID: "j2", JobName: "gpu-tests-b", State: "failed"},
		},
		logs: map[string]string{
			"j1": "FAILED tests/a.py::test_one - AssertionError: boom",
			"j2": "FAILED tests/b.py::test_two - AssertionError: bang",
		},
	}
	s := scanner.New(fc)

	result, err := s.ScanBuild(context.Background(), scanner.Options{PipelineSlug: "org/ci"}, "42", logger.NewBuffer())

	require.NoError(t, err)
	require.Len(t, result.Failures, 2)
}

type assertError string

func (e assertError) Error() string { return string(e) }
