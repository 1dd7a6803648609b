package render_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dougbtv/vllm-ci-mcp/render"
	"github.com/dougbtv/vllm-ci-mcp/triage"
)

func sampleResult() triage.ScanResult {
	ownerConfidence := 0.9
	return triage.ScanResult{
		BuildInfo: triage.BuildInfo{
			BuildNumber: "123",
			BuildURL:    "https://buildkite.com/vllm-project/ci/builds/123",
			Branch:      "main",
			Commit:      "abcdef1234567890",
			State:       triage.BuildFailed,
		},
		TotalJobs:  10,
		FailedJobs: 2,
		Failures: []triage.FailureClassification{
			{
				FailureKey: "aaaa",
				TestFailure: triage.TestFailure{
					TestName:     "tests/test_sampler.py::test_greedy",
					JobName:      "gpu-tests",
					ErrorMessage: "AssertionError: expected 1.0 got 0.5",
				},
				Category:        triage.CategoryNewRegression,
				Confidence:      triage.ConfidenceNewRegression,
				Reason:          "No known issue found; appears to be a new failure",
				Owner:           "alice@example.com",
				OwnerConfidence: &ownerConfidence,
			},
			{
				FailureKey: "bbbb",
				TestFailure: triage.TestFailure{
					TestName: "optional-job",
					JobName:  "optional-job",
				},
				Category:  triage.CategoryInfraSuspected,
				Confidence: triage.ConfidenceInfraSuspected,
				Reason:    "Matched infra pattern: connection reset",
			},
		},
		ScanTimestamp: time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC),
	}
}

func TestDetailedReportGroupsByCategoryOrder(t *testing.T) {
	result := sampleResult()
	jobs := []triage.JobInfo{
		{JobName: "gpu-tests", SoftFailed: false},
		{JobName: "optional-job", SoftFailed: true},
	}

	report := render.DetailedReport(result, jobs)

	assert.Contains(t, report, "# Daily Findings - 2026-07-30")
	assert.Contains(t, report, "**Commit**: `abcdef12`")
	assert.Contains(t, report, "## Hard Failures")
	assert.Contains(t, report, "### NEW_REGRESSION (1 failures)")
	assert.Contains(t, report, "tests/test_sampler.py::test_greedy")
	assert.Contains(t, report, "Owner: alice@example.com (confidence: 90%)")
	assert.Contains(t, report, "## Soft Failures")
	assert.Contains(t, report, "`optional-job`")
	assert.NotContains(t, report, "### INFRA_SUSPECTED")
}

func TestStandupSummaryIncludesKeyRegressions(t *testing.T) {
	result := sampleResult()
	jobs := []triage.JobInfo{
		{JobName: "gpu-tests", SoftFailed: false},
		{JobName: "optional-job", SoftFailed: true},
	}

	summary := render.StandupSummary(result, jobs)

	assert.Contains(t, summary, "Nightly build [123]")
	assert.Contains(t, summary, "FAILED")
	assert.Contains(t, summary, "1 hard / 1 soft")
	assert.Contains(t, summary, "Key NEW_REGRESSION tests: test_greedy")
}

func TestStandupSummaryAllSoftMarksPassed(t *testing.T) {
	result := sampleResult()
	result.Failures = result.Failures[1:] // only the soft infra failure
	result.BuildInfo.State = triage.BuildPassed
	jobs := []triage.JobInfo{
		{JobName: "optional-job", SoftFailed: true},
	}

	summary := render.StandupSummary(result, jobs)

	assert.Contains(t, summary, "PASSED with 1 soft-failed (optional) tests")
}
