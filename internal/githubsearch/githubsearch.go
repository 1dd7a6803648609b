// Package githubsearch wraps go-github's issue search for the Classifier's
// known-issue lookup step. It is a best-effort collaborator: any failure
// talking to GitHub (missing credentials, rate limit, network error) is
// reported as ErrUnavailable so the Classifier can degrade gracefully
// instead of failing the whole scan.
package githubsearch

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/go-github/github"

	"github.com/dougbtv/vllm-ci-mcp/internal/agenthttp"
)

// ErrUnavailable is returned when the search collaborator cannot be reached
// or is not configured. Callers should treat it as "skip this step", not as
// a fatal error.
var ErrUnavailable = errors.New("githubsearch: collaborator unavailable")

// Issue is the subset of a GitHub issue the Classifier needs to judge a
// match.
type Issue struct {
	Number int
	Title  string
	URL    string
	State  string
	Labels []string
}

// Client searches GitHub issues for a configured repository.
type Client struct {
	gh *github.Client
}

// NewClientFromEnv builds a Client using a token from GITHUB_TOKEN or
// GH_TOKEN. It returns ErrUnavailable when neither is set, so the caller can
// treat "no credentials" the same as "search failed".
func NewClientFromEnv() (*Client, error) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GH_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("%w: no GITHUB_TOKEN or GH_TOKEN set", ErrUnavailable)
	}

	httpClient := agenthttp.NewClient(
		agenthttp.WithAuthToken(token),
		agenthttp.WithTimeout(30*time.Second),
	)

	return &Client{gh: github.NewClient(httpClient)}, nil
}

// SearchIssues searches repo (owner/name) for open issues matching query,
// returning up to limit results ordered as GitHub returns them.
func (c *Client) SearchIssues(repo, query string, limit int) ([]Issue, error) {
	if c == nil || c.gh == nil {
		return nil, ErrUnavailable
	}

	fullQuery := fmt.Sprintf("%s repo:%s", query, repo)
	result, _, err := c.gh.Search.Issues(fullQuery, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	issues := make([]Issue, 0, len(result.Issues))
	for _, iss := range result.Issues {
		if len(issues) >= limit {
			break
		}
		issue := Issue{
			Number: iss.GetNumber(),
			Title:  iss.GetTitle(),
			URL:    iss.GetHTMLURL(),
			State:  iss.GetState(),
		}
		for _, l := range iss.Labels {
			issue.Labels = append(issue.Labels, l.GetName())
		}
		issues = append(issues, issue)
	}
	return issues, nil
}
