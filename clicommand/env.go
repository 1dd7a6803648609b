package clicommand

import (
	"github.com/dougbtv/vllm-ci-mcp/classifier"
	"github.com/dougbtv/vllm-ci-mcp/dispatch"
	"github.com/dougbtv/vllm-ci-mcp/experiments"
	"github.com/dougbtv/vllm-ci-mcp/history"
	"github.com/dougbtv/vllm-ci-mcp/internal/buildkiteapi"
	"github.com/dougbtv/vllm-ci-mcp/internal/githubsearch"
	"github.com/dougbtv/vllm-ci-mcp/internal/owners"
	"github.com/dougbtv/vllm-ci-mcp/logger"
	"github.com/dougbtv/vllm-ci-mcp/metrics"
	"github.com/dougbtv/vllm-ci-mcp/scanner"
)

// applyExperiments enables every experiment cfg.Experiments names. Unknown
// names are enabled too (Enable reports known=false for them) so a
// caller's typo shows up as a no-op rather than a startup failure.
func applyExperiments(l logger.Logger, names []string) {
	for _, name := range names {
		if known := experiments.Enable(name); !known {
			l.Warn("unknown experiment %q", name)
		}
	}
}

// buildDispatcher wires the triage pipeline's components from process
// environment variables (Buildkite/GitHub credentials, repo checkout path)
// into a single Dispatcher. Collaborators that can't be constructed from
// the environment (no GitHub token, no local repo checkout) are simply
// omitted and degrade gracefully when absent. The Buildkite client is the
// exception: if it can't be built from the environment, the error is
// returned.
func buildDispatcher(cfg GlobalConfig, l logger.Logger) (*dispatch.Dispatcher, error) {
	applyExperiments(l, cfg.Experiments)

	bk, err := buildkiteapi.NewClientFromEnv()
	if err != nil {
		return nil, err
	}

	// analytics stays a nil dispatch.AnalyticsClient (not a typed nil
	// pointer wrapped in a non-nil interface) when construction fails, so
	// the Dispatcher's "analytics not configured" check works correctly.
	var analytics dispatch.AnalyticsClient
	if a, err := buildkiteapi.NewAnalyticsClientFromEnv(); err == nil {
		analytics = a
	}

	sc := scanner.New(bk)
	he := history.New(bk)

	d := dispatch.New(bk, sc, he, analytics, l)

	if cfg.MetricsDatadog {
		collector := metrics.NewCollector(l, metrics.CollectorConfig{
			Datadog:     cfg.MetricsDatadog,
			DatadogHost: cfg.MetricsDatadogHost,
		})
		if err := collector.Start(); err != nil {
			l.Warn("metrics: failed to start datadog collector: %s", err)
		} else {
			d.SetMetrics(collector)
		}
	}

	return d, nil
}

// githubSearcherFromEnv returns a classifier.IssueSearcher when the lookup
// is enabled (enabled, from the --search-github flag, or the
// github-issue-search experiment) and a GitHub client can be built from the
// environment, and nil otherwise (the Classifier treats a nil Searcher as
// "skip known-issue lookup").
func githubSearcherFromEnv(enabled bool) classifier.IssueSearcher {
	if !enabled && !experiments.IsEnabled(experiments.GitHubIssueSearch) {
		return nil
	}
	c, err := githubsearch.NewClientFromEnv()
	if err != nil {
		return nil
	}
	return githubSearcherAdapter{c}
}

// githubSearcherAdapter adapts githubsearch.Client to classifier.IssueSearcher:
// the two packages each define their own Issue type so classifier stays
// decoupled from the GitHub API client for testing.
type githubSearcherAdapter struct {
	client *githubsearch.Client
}

func (a githubSearcherAdapter) SearchIssues(repo, query string, limit int) ([]classifier.Issue, error) {
	issues, err := a.client.SearchIssues(repo, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]classifier.Issue, len(issues))
	for i, iss := range issues {
		out[i] = classifier.Issue{
			Number: iss.Number,
			Title:  iss.Title,
			URL:    iss.URL,
			State:  iss.State,
			Labels: iss.Labels,
		}
	}
	return out, nil
}

// ownerResolverFromPath returns a scanner.OwnerResolver rooted at repoPath,
// or nil when repoPath is empty or the owner-resolution experiment is
// disabled.
func ownerResolverFromPath(repoPath string) scanner.OwnerResolver {
	if repoPath == "" || !experiments.IsEnabled(experiments.OwnerResolution) {
		return nil
	}
	return owners.NewResolver(repoPath)
}
