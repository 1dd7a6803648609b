package buildkiteapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/dougbtv/vllm-ci-mcp/internal/agenthttp"
)

const (
	analyticsBaseURL     = "https://api.buildkite.com/v2/analytics"
	listAnalyticsTimeout = 30 * time.Second
)

// AnalyticsTest is one test's aggregated Test Analytics data for a suite,
// as returned by Buildkite's Test Analytics REST API (a separate surface
// from the core Builds/Jobs API wrapped above).
type AnalyticsTest struct {
	ID             string
	Scope          string
	Name           string
	IsFlaky        bool
	RecentlyFailed bool
	FailCount      int
}

// AnalyticsClient exposes the subset of Buildkite's Test Analytics API the
// Tool Dispatcher's analytics operations need.
type AnalyticsClient struct {
	httpClient *http.Client
	org        string
}

// NewAnalyticsClientFromEnv builds an AnalyticsClient using the same token
// resolution rules as NewClientFromEnv.
func NewAnalyticsClientFromEnv() (*AnalyticsClient, error) {
	token := os.Getenv("BUILDKITE_TOKEN")
	if token == "" {
		token = os.Getenv("BUILDKITE_API_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("buildkiteapi: neither BUILDKITE_TOKEN nor BUILDKITE_API_TOKEN is set")
	}

	org := os.Getenv("BUILDKITE_ORG")
	if org == "" {
		org = DefaultOrg
	}

	httpClient := agenthttp.NewClient(
		agenthttp.WithAuthBearer(token),
		agenthttp.WithTimeout(listAnalyticsTimeout),
	)

	return &AnalyticsClient{httpClient: httpClient, org: org}, nil
}

type analyticsTestResponse struct {
	ID             string `json:"id"`
	Scope          string `json:"scope"`
	Name           string `json:"name"`
	IsFlaky        bool   `json:"is_flaky"`
	RecentlyFailed bool   `json:"recently_failed"`
	FailCount      int    `json:"fail_count"`
}

// ListAnalyticsTests lists the known tests for suiteSlug, most-recently-run
// first.
func (c *AnalyticsClient) ListAnalyticsTests(ctx context.Context, suiteSlug string) ([]AnalyticsTest, error) {
	u := fmt.Sprintf("%s/organizations/%s/suites/%s/tests", analyticsBaseURL, url.PathEscape(c.org), url.PathEscape(suiteSlug))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("buildkiteapi: building analytics request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("buildkiteapi: fetching analytics suite %s: %w", suiteSlug, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("buildkiteapi: analytics suite %s: unexpected status %d: %s", suiteSlug, resp.StatusCode, body)
	}

	var raw []analyticsTestResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("buildkiteapi: decoding analytics response for %s: %w", suiteSlug, err)
	}

	out := make([]AnalyticsTest, 0, len(raw))
	for _, t := range raw {
		out = append(out, AnalyticsTest{
			ID:             t.ID,
			Scope:          t.Scope,
			Name:           t.Name,
			IsFlaky:        t.IsFlaky,
			RecentlyFailed: t.RecentlyFailed,
			FailCount:      t.FailCount,
		})
	}
	return out, nil
}
