package clicommand

import (
	"context"
	"slices"

	"github.com/urfave/cli"

	"github.com/dougbtv/vllm-ci-mcp/dispatch"
)

const testHistoryDescription = `Usage:

    vllm-ci-mcp test-history --node-id <pytest-nodeid> [options...]

Description:

Walks a single test's outcome across recent builds on a branch, then
assesses the resulting timeline: a clean regression, the onset of flakiness,
a persistent failure, or sporadic noise.

Example:

    $ vllm-ci-mcp test-history --node-id tests/models/test_foo.py::test_bar --lookback-builds 30`

type TestHistoryConfig struct {
	GlobalConfig

	NodeID         string `cli:"node-id" validate:"required"`
	Pipeline       string `cli:"pipeline"`
	Branch         string `cli:"branch"`
	LookbackBuilds int    `cli:"lookback-builds"`
	JobFilter      string `cli:"job-filter"`
	IncludeLogs    bool   `cli:"include-logs"`
}

var TestHistoryCommand = cli.Command{
	Name:        "test-history",
	Category:    categoryHistory,
	Usage:       "Walk and assess a test's outcome history",
	Description: testHistoryDescription,
	Flags: slices.Concat(globalFlags(), []cli.Flag{
		cli.StringFlag{Name: "node-id", Usage: "Pytest nodeid, e.g. tests/a.py::test_one"},
		cli.StringFlag{Name: "pipeline", Value: dispatch.DefaultPipeline, EnvVar: "VLLM_CI_MCP_PIPELINE"},
		cli.StringFlag{Name: "branch", Value: dispatch.DefaultBranch, EnvVar: "VLLM_CI_MCP_BRANCH"},
		cli.IntFlag{Name: "lookback-builds", Value: dispatch.DefaultLookbackBuilds, Usage: "Number of recent builds to walk"},
		cli.StringFlag{Name: "job-filter", Usage: "Only search jobs whose name contains this substring"},
		cli.BoolFlag{Name: "include-logs", Usage: "Include a short log excerpt for each build in the timeline"},
	}),
	Action: func(c *cli.Context) error {
		cfg, warnings, err := loadConfig[TestHistoryConfig](c)
		if err != nil {
			return err
		}

		l := CreateLogger(cfg.GlobalConfig)
		logWarnings(l, warnings)

		d, err := buildDispatcher(cfg.GlobalConfig, l)
		if err != nil {
			return err
		}

		result, err := d.TestHistory(context.Background(), dispatch.TestHistoryRequest{
			NodeID:         cfg.NodeID,
			Pipeline:       cfg.Pipeline,
			Branch:         cfg.Branch,
			LookbackBuilds: cfg.LookbackBuilds,
			JobFilter:      cfg.JobFilter,
			IncludeLogs:    cfg.IncludeLogs,
		})
		if err != nil {
			return printOperationError(err)
		}

		return printResult(result)
	},
}
