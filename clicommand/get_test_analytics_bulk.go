package clicommand

import (
	"context"
	"slices"

	"github.com/urfave/cli"

	"github.com/dougbtv/vllm-ci-mcp/dispatch"
)

const getTestAnalyticsBulkDescription = `Usage:

    vllm-ci-mcp get-test-analytics-bulk --node-id <nodeid> [--node-id <nodeid> ...] [options...]

Description:

Resolves Test Analytics signal for many tests against a single suite's test
list, fetched once, rather than once per test.

Example:

    $ vllm-ci-mcp get-test-analytics-bulk --node-id tests/a.py::test_one --node-id tests/b.py::test_two`

type GetTestAnalyticsBulkConfig struct {
	GlobalConfig

	NodeIDs   []string `cli:"node-id"`
	SuiteSlug string   `cli:"suite-slug"`
}

var GetTestAnalyticsBulkCommand = cli.Command{
	Name:        "get-test-analytics-bulk",
	Category:    categoryHistory,
	Usage:       "Look up many tests' Test Analytics signal in one fetch",
	Description: getTestAnalyticsBulkDescription,
	Flags: slices.Concat(globalFlags(), []cli.Flag{
		cli.StringSliceFlag{Name: "node-id", Usage: "Pytest nodeid or scope::name pair; may be passed multiple times"},
		cli.StringFlag{Name: "suite-slug", Value: dispatch.DefaultSuiteSlug, EnvVar: "VLLM_CI_MCP_SUITE_SLUG"},
	}),
	Action: func(c *cli.Context) error {
		cfg, warnings, err := loadConfig[GetTestAnalyticsBulkConfig](c)
		if err != nil {
			return err
		}

		l := CreateLogger(cfg.GlobalConfig)
		logWarnings(l, warnings)

		d, err := buildDispatcher(cfg.GlobalConfig, l)
		if err != nil {
			return err
		}

		result, err := d.GetTestAnalyticsBulk(context.Background(), dispatch.GetTestAnalyticsBulkRequest{
			NodeIDs:   cfg.NodeIDs,
			SuiteSlug: cfg.SuiteSlug,
		})
		if err != nil {
			return printOperationError(err)
		}

		return printResult(result)
	},
}
