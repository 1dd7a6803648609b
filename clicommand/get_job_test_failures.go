package clicommand

import (
	"context"
	"slices"

	"github.com/urfave/cli"

	"github.com/dougbtv/vllm-ci-mcp/dispatch"
)

const getJobTestFailuresDescription = `Usage:

    vllm-ci-mcp get-job-test-failures --build <number-or-url> --job <name-or-id> [options...]

Description:

Fetches a single job's log within a build and parses its test failures,
without running them through classification.

Example:

    $ vllm-ci-mcp get-job-test-failures --build 4821 --job gpu-tests --match fuzzy`

type GetJobTestFailuresConfig struct {
	GlobalConfig

	Build    string `cli:"build" validate:"required"`
	Pipeline string `cli:"pipeline"`
	Job      string `cli:"job" validate:"required"`
	Match    string `cli:"match"`
}

var GetJobTestFailuresCommand = cli.Command{
	Name:        "get-job-test-failures",
	Category:    categoryScan,
	Usage:       "Parse a single job's test failures",
	Description: getJobTestFailuresDescription,
	Flags: slices.Concat(globalFlags(), []cli.Flag{
		cli.StringFlag{Name: "build", Usage: "Build number or Buildkite build URL"},
		cli.StringFlag{Name: "pipeline", Value: dispatch.DefaultPipeline, EnvVar: "VLLM_CI_MCP_PIPELINE"},
		cli.StringFlag{Name: "job", Usage: "Job name or job ID to match"},
		cli.StringFlag{Name: "match", Value: string(dispatch.MatchFuzzy), Usage: "Job matching strategy: exact, fuzzy, id"},
	}),
	Action: func(c *cli.Context) error {
		cfg, warnings, err := loadConfig[GetJobTestFailuresConfig](c)
		if err != nil {
			return err
		}

		l := CreateLogger(cfg.GlobalConfig)
		logWarnings(l, warnings)

		d, err := buildDispatcher(cfg.GlobalConfig, l)
		if err != nil {
			return err
		}

		failures, err := d.GetJobTestFailures(context.Background(), dispatch.GetJobTestFailuresRequest{
			BuildRef:      cfg.Build,
			Pipeline:      cfg.Pipeline,
			JobNameOrID:   cfg.Job,
			MatchStrategy: dispatch.MatchStrategy(cfg.Match),
		})
		if err != nil {
			return printOperationError(err)
		}

		return printResult(failures)
	},
}
