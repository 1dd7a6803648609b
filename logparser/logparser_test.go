package logparser_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougbtv/vllm-ci-mcp/logparser"
)

func TestParseANSIAndTimestampNoise(t *testing.T) {
	line := "_bk;t=1769067604900\x1b[31mFAILED\x1b[0m tests/v1/distributed/test_dbo.py::" +
		"\x1b[1mtest_dbo_dp_ep_gsm8k[deepep_low_latency]\x1b[0m - AssertionError: accuracy too low"

	failures := logparser.Parse(line, "dp-ep-test")
	require.Len(t, failures, 1)
	assert.Equal(t,
		"tests/v1/distributed/test_dbo.py::test_dbo_dp_ep_gsm8k[deepep_low_latency]",
		failures[0].TestName,
	)
}

func TestParseEmptyLogProducesJobLevelFailure(t *testing.T) {
	failures := logparser.Parse("", "build-vllm")
	require.Len(t, failures, 1)
	assert.Equal(t, "build-vllm", failures[0].TestName)
	assert.Equal(t, logparser.JobFailedWithoutTestsMessage, failures[0].ErrorMessage)
}

func TestParseShortSummaryFallback(t *testing.T) {
	log := "some unrelated noise\n" +
		"=== short test summary info ===\n" +
		"FAILED tests/x.py::y\n" +
		"=== 1 failed in 1.00s ===\n"

	failures := logparser.Parse(log, "job")
	require.Len(t, failures, 1)
	assert.Equal(t, "tests/x.py::y", failures[0].TestName)
}

func TestParseDedupesWithinJobPreservingOrder(t *testing.T) {
	log := strings.Join([]string{
		"FAILED tests/a.py::test_one",
		"FAILED tests/b.py::test_two",
		"FAILED tests/a.py::test_one", // retry
	}, "\n")

	failures := logparser.Parse(log, "job")
	require.Len(t, failures, 2)
	assert.Equal(t, "tests/a.py::test_one", failures[0].TestName)
	assert.Equal(t, "tests/b.py::test_two", failures[1].TestName)
}

func TestParseExtractsErrorMessageFromUnderscoreSection(t *testing.T) {
	log := "____________________ tests/a.py::test_one ____________________\n" +
		"AssertionError: accuracy too low: 0.590 < 0.620\n" +
		"____________________ tests/b.py::test_two ____________________\n" +
		"FAILED tests/a.py::test_one\n" +
		"FAILED tests/b.py::test_two\n"

	failures := logparser.Parse(log, "job")
	require.Len(t, failures, 2)
	assert.Equal(t, "AssertionError: accuracy too low: 0.590 < 0.620", failures[0].ErrorMessage)
}

func TestFindOutcomeForDistinguishesPassFail(t *testing.T) {
	log := "PASSED tests/a.py::test_one\nFAILED tests/b.py::test_two\n"

	outcome := logparser.FindOutcomeFor(log, "tests/a.py::test_one")
	require.True(t, outcome.Found)
	assert.Equal(t, "pass", string(outcome.Status))

	outcome = logparser.FindOutcomeFor(log, "tests/b.py::test_two")
	require.True(t, outcome.Found)
	assert.Equal(t, "fail", string(outcome.Status))

	outcome = logparser.FindOutcomeFor(log, "tests/c.py::missing")
	assert.False(t, outcome.Found)
}
