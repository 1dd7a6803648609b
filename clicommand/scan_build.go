package clicommand

import (
	"context"
	"slices"

	"github.com/urfave/cli"

	"github.com/dougbtv/vllm-ci-mcp/dispatch"
	"github.com/dougbtv/vllm-ci-mcp/scanner"
)

const scanBuildDescription = `Usage:

    vllm-ci-mcp scan-build --build <number-or-url> [options...]

Description:

Scans a specific build's failed jobs, producing a deduplicated, classified
failure report in both the Daily Findings and standup-summary formats.

Example:

    $ vllm-ci-mcp scan-build --build 4821 --pipeline vllm/ci`

type ScanBuildConfig struct {
	GlobalConfig

	Build        string `cli:"build" validate:"required"`
	Pipeline     string `cli:"pipeline"`
	Repo         string `cli:"repo"`
	SearchGithub bool   `cli:"search-github"`
	RepoPath     string `cli:"repo-path"`
	DetailLevel  string `cli:"detail-level"`
	MaxFailures  int    `cli:"max-failures"`
}

var ScanBuildCommand = cli.Command{
	Name:        "scan-build",
	Category:    categoryScan,
	Usage:       "Scan a specific build's failures",
	Description: scanBuildDescription,
	Flags: slices.Concat(globalFlags(), []cli.Flag{
		cli.StringFlag{Name: "build", Usage: "Build number or Buildkite build URL"},
		cli.StringFlag{Name: "pipeline", Value: dispatch.DefaultPipeline, EnvVar: "VLLM_CI_MCP_PIPELINE", Usage: "Buildkite pipeline slug, e.g. org/pipeline"},
		cli.StringFlag{Name: "repo", Value: dispatch.DefaultRepo, EnvVar: "VLLM_CI_MCP_REPO", Usage: "GitHub repository searched for known issues, owner/name"},
		cli.BoolFlag{Name: "search-github", Usage: "Search GitHub issues for known-issue matches (requires a GitHub token)"},
		cli.StringFlag{Name: "repo-path", EnvVar: "VLLM_REPO_PATH", Usage: "Local checkout used to infer test ownership via CODEOWNERS/git blame"},
		cli.StringFlag{Name: "detail-level", Value: string(scanner.DetailFull), Usage: "Failure detail retained: minimal, summary, full"},
		cli.IntFlag{Name: "max-failures", Value: dispatch.DefaultMaxFailures, Usage: "Maximum number of deduplicated failures to report"},
	}),
	Action: func(c *cli.Context) error {
		cfg, warnings, err := loadConfig[ScanBuildConfig](c)
		if err != nil {
			return err
		}

		l := CreateLogger(cfg.GlobalConfig)
		logWarnings(l, warnings)

		d, err := buildDispatcher(cfg.GlobalConfig, l)
		if err != nil {
			return err
		}

		report, err := d.ScanBuild(context.Background(), dispatch.ScanBuildRequest{
			BuildRef:    cfg.Build,
			Pipeline:    cfg.Pipeline,
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
