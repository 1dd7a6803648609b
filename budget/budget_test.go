package budget_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougbtv/vllm-ci-mcp/budget"
)

func TestBudgetExhaustionWarnsOnlyOnce(t *testing.T) {
	b := &budget.Budget{MaxJobsPerBuild: budget.DefaultMaxJobsPerBuild, MaxLogBytes: 1000}

	require.True(t, b.CanFetchLog(500))
	b.RecordLogFetch(500)

	require.True(t, b.CanFetchLog(400))
	b.RecordLogFetch(400)

	assert.False(t, b.CanFetchLog(200))
	assert.Len(t, b.Warnings(), 1)

	assert.False(t, b.CanFetchLog(200))
	assert.Len(t, b.Warnings(), 1)
}

func TestCapJobsFailedFirstThenPassedFillsRemainder(t *testing.T) {
	b := &budget.Budget{MaxJobsPerBuild: 5}
	failed := []string{"f1", "f2", "f3"}
	passed := []string{"p1", "p2", "p3", "p4"}

	cappedFailed, cappedPassed := budget.CapJobs(b, failed, passed)

	assert.Equal(t, []string{"f1", "f2", "f3"}, cappedFailed)
	assert.Equal(t, []string{"p1", "p2"}, cappedPassed)
}

func TestCapJobsFailedAloneExceedsCap(t *testing.T) {
	b := &budget.Budget{MaxJobsPerBuild: 2}
	failed := []string{"f1", "f2", "f3"}
	passed := []string{"p1"}

	cappedFailed, cappedPassed := budget.CapJobs(b, failed, passed)

	assert.Equal(t, []string{"f1", "f2"}, cappedFailed)
	assert.Empty(t, cappedPassed)
}
