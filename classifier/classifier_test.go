package classifier_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougbtv/vllm-ci-mcp/classifier"
	"github.com/dougbtv/vllm-ci-mcp/triage"
)

func TestClassifyInfraWinsOverDefault(t *testing.T) {
	f := triage.TestFailure{
		TestName:     "t.py::m",
		JobName:      "J",
		ErrorMessage: "Connection timed out after 30s",
	}

	result := classifier.Classify(f, classifier.Options{})

	assert.Equal(t, triage.CategoryInfraSuspected, result.Category)
	assert.Equal(t, 0.7, result.Confidence)
	assert.Contains(t, result.Reason, "timeout")
}

func TestClassifyFlakyWinsOnName(t *testing.T) {
	f := triage.TestFailure{
		TestName:     "t.py::test_flaky_behavior",
		JobName:      "J",
		ErrorMessage: "AssertionError: random",
	}

	result := classifier.Classify(f, classifier.Options{})

	assert.Equal(t, triage.CategoryFlakySuspected, result.Category)
	assert.Equal(t, 0.6, result.Confidence)
}

func TestClassifyNewRegressionDefault(t *testing.T) {
	f := triage.TestFailure{
		TestName:     "t.py::test_something",
		JobName:      "J",
		ErrorMessage: "AssertionError: unexpected value 5",
	}

	result := classifier.Classify(f, classifier.Options{})

	assert.Equal(t, triage.CategoryNewRegression, result.Category)
	assert.Equal(t, 0.5, result.Confidence)
}

func TestClassifyNeedsTriageWhenNoErrorMessage(t *testing.T) {
	f := triage.TestFailure{TestName: "t.py::test_something", JobName: "J"}

	result := classifier.Classify(f, classifier.Options{})

	assert.Equal(t, triage.CategoryNeedsTriage, result.Category)
	assert.Equal(t, 0.3, result.Confidence)
}

type fakeSearcher struct {
	exact []classifier.Issue
	broad []classifier.Issue
	err   error
}

func (s *fakeSearcher) SearchIssues(repo, query string, limit int) ([]classifier.Issue, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(query) > 0 && query[0] == '"' {
		return s.exact, nil
	}
	return s.broad, nil
}

func TestClassifyKnownTrackedExactMatch(t *testing.T) {
	f := triage.TestFailure{TestName: "tests/a.py::test_one", JobName: "J", ErrorMessage: "boom"}
	searcher := &fakeSearcher{
		exact: []classifier.Issue{
			{Title: "tests/a.py::test_one fails on main", URL: "https://github.com/o/r/issues/1", Labels: []string{"ci-failure"}},
		},
	}

	result := classifier.Classify(f, classifier.Options{Repo: "o/r", Searcher: searcher})

	require.Equal(t, triage.CategoryKnownTracked, result.Category)
	assert.Equal(t, 0.9, result.Confidence)
	assert.Equal(t, "https://github.com/o/r/issues/1", result.GitHubIssue)
}

func TestClassifyKnownTrackedRejectsUnlabeledIssue(t *testing.T) {
	f := triage.TestFailure{TestName: "tests/a.py::test_one", JobName: "J", ErrorMessage: "boom"}
	searcher := &fakeSearcher{
		exact: []classifier.Issue{
			{Title: "tests/a.py::test_one fails on main", URL: "https://github.com/o/r/issues/1"},
		},
	}

	result := classifier.Classify(f, classifier.Options{Repo: "o/r", Searcher: searcher})

	assert.NotEqual(t, triage.CategoryKnownTracked, result.Category)
}

func TestClassifyDegradesWhenSearchUnavailable(t *testing.T) {
	f := triage.TestFailure{TestName: "tests/a.py::test_one", JobName: "J", ErrorMessage: "Connection timed out"}
	searcher := &fakeSearcher{err: errors.New("network down")}

	result := classifier.Classify(f, classifier.Options{Repo: "o/r", Searcher: searcher})

	assert.Equal(t, triage.CategoryInfraSuspected, result.Category)
}
