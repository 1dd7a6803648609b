// Package buildkiteapi wraps github.com/buildkite/go-buildkite/v4 with the
// retry policy, credential resolution, and pipeline-slug parsing the
// triage pipeline needs, translating go-buildkite's types into this
// module's triage.BuildInfo/triage.JobInfo snapshots.
package buildkiteapi

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/buildkite/go-buildkite/v4"
	"github.com/buildkite/roko"

	"github.com/dougbtv/vllm-ci-mcp/triage"
	"github.com/dougbtv/vllm-ci-mcp/version"
)

const (
	// DefaultOrg is used when a pipeline slug is given without an
	// "org/pipeline" prefix.
	DefaultOrg = "vllm-project"

	listBuildsTimeout = 30 * time.Second
	getBuildTimeout   = 30 * time.Second
	getJobLogTimeout  = 60 * time.Second
)

var buildURLRef = regexp.MustCompile(`/builds/(\d+)`)

// Client fetches builds, jobs, and job logs for one Buildkite organization.
type Client struct {
	bk  *buildkite.Client
	org string
}

// NewClientFromEnv builds a Client using a token from BUILDKITE_TOKEN or
// BUILDKITE_API_TOKEN, and an org slug from BUILDKITE_ORG (falling back to
// DefaultOrg).
func NewClientFromEnv() (*Client, error) {
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

	client, err := buildkite.NewClient(
		buildkite.WithTokenAuth(token),
		buildkite.WithUserAgent("vllm-ci-mcp/0 "+version.UserAgent()),
	)
	if err != nil {
		return nil, fmt.Errorf("buildkiteapi: building client: %w", err)
	}

	return &Client{bk: client, org: org}, nil
}

// ParsePipelineSlug splits a "org/pipeline" or bare "pipeline" slug into its
// org and pipeline parts, defaulting the org to c.org when omitted.
func (c *Client) ParsePipelineSlug(slug string) (org, pipeline string) {
	if o, p, ok := strings.Cut(slug, "/"); ok {
		return o, p
	}
	return c.org, slug
}

// ParseBuildRef extracts a build number from either a bare number or a
// Buildkite build URL. ok is false when ref names neither.
func ParseBuildRef(ref string) (number string, ok bool) {
	if _, err := strconv.Atoi(ref); err == nil {
		return ref, true
	}
	if m := buildURLRef.FindStringSubmatch(ref); m != nil {
		return m[1], true
	}
	return "", false
}

func withRetry[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := roko.NewRetrier(
		roko.WithStrategy(roko.Constant(5*time.Second)),
		roko.WithMaxAttempts(5),
	)
	return roko.DoFunc(ctx, r, func(*roko.Retrier) (T, error) {
		return fn(ctx)
	})
}

// ListBuilds returns builds for pipelineSlug on branch, newest first,
// within the given time window.
func (c *Client) ListBuilds(ctx context.Context, pipelineSlug, branch string, since time.Time) ([]triage.BuildInfo, error) {
	org, pipeline := c.ParsePipelineSlug(pipelineSlug)

	opts := &buildkite.BuildsListOptions{
		ListOptions: buildkite.ListOptions{PerPage: 100},
	}
	if branch != "" {
		opts.Branch = []string{branch}
	}

	builds, err := withRetry(ctx, listBuildsTimeout, func(ctx context.Context) ([]buildkite.Build, error) {
		builds, _, err := c.bk.Builds.ListByPipeline(ctx, org, pipeline, opts)
		return builds, err
	})
	if err != nil {
		return nil, fmt.Errorf("buildkiteapi: listing builds for %s/%s: %w", org, pipeline, err)
	}

	out := make([]triage.BuildInfo, 0, len(builds))
	for _, b := range builds {
		info := toBuildInfo(b)
		if !since.IsZero() && info.CreatedAt.Before(since) {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// GetBuild fetches a single build, including its jobs.
func (c *Client) GetBuild(ctx context.Context, pipelineSlug, buildNumber string) (triage.BuildInfo, []triage.JobInfo, error) {
	org, pipeline := c.ParsePipelineSlug(pipelineSlug)

	build, err := withRetry(ctx, getBuildTimeout, func(ctx context.Context) (buildkite.Build, error) {
		build, _, err := c.bk.Builds.Get(ctx, org, pipeline, buildNumber, &buildkite.BuildGetOptions{})
		return build, err
	})
	if err != nil {
		return triage.BuildInfo{}, nil, fmt.Errorf("buildkiteapi: fetching build %s/%s#%s: %w", org, pipeline, buildNumber, err)
	}

	jobs := make([]triage.JobInfo, 0, len(build.Jobs))
	for _, j := range build.Jobs {
		jobs = append(jobs, toJobInfo(j, buildNumber))
	}
	return toBuildInfo(build), jobs, nil
}

// GetJobLog fetches the raw text log for one job.
func (c *Client) GetJobLog(ctx context.Context, pipelineSlug, buildNumber, jobID string) (string, error) {
	org, pipeline := c.ParsePipelineSlug(pipelineSlug)

	jobLog, err := withRetry(ctx, getJobLogTimeout, func(ctx context.Context) (buildkite.JobLog, error) {
		jobLog, _, err := c.bk.Jobs.GetJobLog(ctx, org, pipeline, buildNumber, jobID)
		return jobLog, err
	})
	if err != nil {
		return "", fmt.Errorf("buildkiteapi: fetching job log %s/%s#%s/%s: %w", org, pipeline, buildNumber, jobID, err)
	}
	return jobLog.Content, nil
}

func toBuildInfo(b buildkite.Build) triage.BuildInfo {
	info := triage.BuildInfo{
		BuildNumber: strconv.Itoa(b.Number),
		BuildURL:    b.WebURL,
		Branch:      b.Branch,
		Commit:      b.Commit,
		State:       triage.BuildState(b.State),
		Source:      b.Source,
		Message:     b.Message,
	}
	if b.CreatedAt != nil {
		info.CreatedAt = b.CreatedAt.Time
	}
	if b.FinishedAt != nil {
		t := b.FinishedAt.Time
		info.FinishedAt = &t
	}
	return info
}

func toJobInfo(j buildkite.Job, buildNumber string) triage.JobInfo {
	info := triage.JobInfo{
		JobID:       j.ID,
		JobName:     j.Name,
		State:       j.State,
		BuildNumber: buildNumber,
		Passed:      j.State == "passed",
		SoftFailed:  j.SoftFailed,
	}
	if j.ExitStatus != nil {
		status := *j.ExitStatus
		info.ExitStatus = &status
	}
	return info
}
