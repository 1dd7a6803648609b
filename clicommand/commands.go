package clicommand

import "github.com/urfave/cli"

// Commands is every command this binary exposes, in help-listing order.
var Commands = []cli.Command{
	ScanLatestNightlyCommand,
	ScanBuildCommand,
	TestHistoryCommand,
	TestHistoryAnalyticsCommand,
	GetJobTestFailuresCommand,
	GetTestAnalyticsBulkCommand,
	RenderCommand,
}
