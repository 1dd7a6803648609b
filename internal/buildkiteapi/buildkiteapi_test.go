package buildkiteapi

import (
	"testing"

	"github.com/buildkite/go-buildkite/v4"
	"github.com/stretchr/testify/assert"

	"github.com/dougbtv/vllm-ci-mcp/triage"
)

func TestParsePipelineSlug(t *testing.T) {
	c := &Client{org: "vllm-project"}

	org, pipeline := c.ParsePipelineSlug("other-org/ci")
	assert.Equal(t, "other-org", org)
	assert.Equal(t, "ci", pipeline)

	org, pipeline = c.ParsePipelineSlug("ci")
	assert.Equal(t, "vllm-project", org)
	assert.Equal(t, "ci", pipeline)
}

func TestParseBuildRef(t *testing.T) {
	num, ok := ParseBuildRef("4821")
	assert.True(t, ok)
	assert.Equal(t, "4821", num)

	num, ok = ParseBuildRef("https://buildkite.com/vllm-project/ci/builds/4821")
	assert.True(t, ok)
	assert.Equal(t, "4821", num)

	_, ok = ParseBuildRef("not-a-ref")
	assert.False(t, ok)
}

func TestToBuildInfo(t *testing.T) {
	b := buildkite.Build{
		Number:  42,
		WebURL:  "https://buildkite.com/x/y/builds/42",
		Branch:  "main",
		Commit:  "abc123",
		State:   "failed",
		Source:  "schedule",
		Message: "nightly",
	}

	info := toBuildInfo(b)

	assert.Equal(t, "42", info.BuildNumber)
	assert.Equal(t, "schedule", info.Source)
	assert.Equal(t, triage.BuildFailed, info.State)
}

func TestToJobInfoMarksPassed(t *testing.T) {
	j := buildkite.Job{ID: "job-1", Name: "gpu-tests", State: "passed"}

	info := toJobInfo(j, "42")

	assert.True(t, info.Passed)
	assert.Equal(t, "job-1", info.JobID)
}
