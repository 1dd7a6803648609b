package clicommand

import (
	"context"
	"slices"

	"github.com/urfave/cli"

	"github.com/dougbtv/vllm-ci-mcp/dispatch"
	"github.com/dougbtv/vllm-ci-mcp/scanner"
)

const scanLatestNightlyDescription = `Usage:

    vllm-ci-mcp scan-latest-nightly [options...]

Description:

Resolves the most recent nightly/scheduled build on a branch and scans its
failed jobs, producing a deduplicated, classified failure report in both the
Daily Findings and standup-summary formats.

Example:

    $ vllm-ci-mcp scan-latest-nightly --pipeline vllm/ci --branch main --search-github`

type ScanLatestNightlyConfig struct {
	GlobalConfig

	Pipeline     string `cli:"pipeline"`
	Branch       string `cli:"branch"`
	Repo         string `cli:"repo"`
	SearchGithub bool   `cli:"search-github"`
	RepoPath     string `cli:"repo-path"`
	DetailLevel  string `cli:"detail-level"`
	MaxFailures  int    `cli:"max-failures"`
}

var ScanLatestNightlyCommand = cli.Command{
	Name:        "scan-latest-nightly",
	Category:    categoryScan,
	Usage:       "Scan the latest nightly build's failures",
	Description: scanLatestNightlyDescription,
	Flags: slices.Concat(globalFlags(), []cli.Flag{
		cli.StringFlag{Name: "pipeline", Value: dispatch.DefaultPipeline, EnvVar: "VLLM_CI_MCP_PIPELINE", Usage: "Buildkite pipeline slug, e.g. org/pipeline"},
		cli.StringFlag{Name: "branch", Value: dispatch.DefaultBranch, EnvVar: "VLLM_CI_MCP_BRANCH", Usage: "Branch to resolve the latest nightly build on"},
		cli.StringFlag{Name: "repo", Value: dispatch.DefaultRepo, EnvVar: "VLLM_CI_MCP_REPO", Usage: "GitHub repository searched for known issues, owner/name"},
		cli.BoolFlag{Name: "search-github", Usage: "Search GitHub issues for known-issue matches (requires a GitHub token)"},
		cli.StringFlag{Name: "repo-path", EnvVar: "VLLM_REPO_PATH", Usage: "Local checkout used to infer test ownership via CODEOWNERS/git blame"},
		cli.StringFlag{Name: "detail-level", Value: string(scanner.DetailFull), Usage: "Failure detail retained: minimal, summary, full"},
		cli.IntFlag{Name: "max-failures", Value: dispatch.DefaultMaxFailures, Usage: "Maximum number of deduplicated failures to report"},
	}),
	Action: func(c *cli.Context) error {
		cfg, warnings, err := loadConfig[ScanLatestNightlyConfig](c)
		if err != nil {
			return err
		}

		l := CreateLogger(cfg.GlobalConfig)
		logWarnings(l, warnings)

		d, err := buildDispatcher(cfg.GlobalConfig, l)
		if err != nil {
			return err
		}

		report, err := d.ScanLatestNightly(context.Background(), dispatch.ScanLatestNightlyRequest{
			Pipeline:    cfg.Pipeline,
			Branch:      cfg.Branch,
			Repo:        cfg.Repo,
			Searcher:    githubSearcherFromEnv(cfg.SearchGithub),
			Owners:      ownerResolverFromPath(cfg.RepoPath),
			DetailLevel: scanner.DetailLevel(cfg.DetailLevel),
			MaxFailures: cfg.MaxFailures,
		})
		if err != nil {
			return printOperationError(err)
		}

		return printResult(report)
	},
}
