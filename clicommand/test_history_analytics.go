package clicommand

import (
	"context"
	"slices"

	"github.com/urfave/cli"

	"github.com/dougbtv/vllm-ci-mcp/dispatch"
)

const testHistoryAnalyticsDescription = `Usage:

    vllm-ci-mcp test-history-analytics --node-id <pytest-nodeid> [options...]

Description:

Looks a single test up in Buildkite Test Analytics for a suite, returning
its flakiness and recent-failure signal without walking build history.

Example:

    $ vllm-ci-mcp test-history-analytics --node-id tests/a.py::test_one --suite-slug ci-1`

type TestHistoryAnalyticsConfig struct {
	GlobalConfig

	NodeID    string `cli:"node-id" validate:"required"`
	SuiteSlug string `cli:"suite-slug"`
}

var TestHistoryAnalyticsCommand = cli.Command{
	Name:        "test-history-analytics",
	Category:    categoryHistory,
	Usage:       "Look up a test's Test Analytics signal",
	Description: testHistoryAnalyticsDescription,
	Flags: slices.Concat(globalFlags(), []cli.Flag{
		cli.StringFlag{Name: "node-id", Usage: "Pytest nodeid or scope::name pair"},
		cli.StringFlag{Name: "suite-slug", Value: dispatch.DefaultSuiteSlug, EnvVar: "VLLM_CI_MCP_SUITE_SLUG"},
	}),
	Action: func(c *cli.Context) error {
		cfg, warnings, err := loadConfig[TestHistoryAnalyticsConfig](c)
		if err != nil {
			return err
		}

		l := CreateLogger(cfg.GlobalConfig)
		logWarnings(l, warnings)

		d, err := buildDispatcher(cfg.GlobalConfig, l)
		if err != nil {
			return err
		}

		result, err := d.TestHistoryAnalytics(context.Background(), dispatch.TestHistoryAnalyticsRequest{
			TestNameOrNodeID: cfg.NodeID,
			SuiteSlug:        cfg.SuiteSlug,
		})
		if err != nil {
			return printOperationError(err)
		}

		return printResult(result)
	},
}
