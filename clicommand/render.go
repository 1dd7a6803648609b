package clicommand

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/urfave/cli"

	"github.com/dougbtv/vllm-ci-mcp/dispatch"
	"github.com/dougbtv/vllm-ci-mcp/render"
	"github.com/dougbtv/vllm-ci-mcp/triage"
)

const renderDescription = `Usage:

    vllm-ci-mcp render --scan-result <path> [--format daily_findings|standup]

Description:

Renders a previously-saved scan result (the "Result"/"Jobs" fields of a
scan-latest-nightly or scan-build JSON output, or a bare {"result":
..., "jobs": ...} document) in one of the two report formats, without
re-scanning.

Example:

    $ vllm-ci-mcp scan-build --build 4821 > result.json
    $ vllm-ci-mcp render --scan-result result.json --format standup`

// renderInput is the on-disk shape render reads: either a full ScanReport
// (Result/Jobs/DailyFindings/StandupSummary) or the bare subset it needs.
type renderInput struct {
	Result triage.ScanResult `json:"Result"`
	Jobs   []triage.JobInfo  `json:"Jobs"`
}

type RenderConfig struct {
	GlobalConfig

	ScanResultPath string `cli:"scan-result" validate:"required,file-exists"`
	Format         string `cli:"format"`
}

var RenderCommand = cli.Command{
	Name:        "render",
	Category:    categoryRender,
	Usage:       "Render a saved scan result as a report",
	Description: renderDescription,
	Flags: slices.Concat(globalFlags(), []cli.Flag{
		cli.StringFlag{Name: "scan-result", Usage: "Path to a saved scan-build/scan-latest-nightly JSON result"},
		cli.StringFlag{Name: "format", Value: string(dispatch.FormatDailyFindings), Usage: "Output format: daily_findings, standup"},
	}),
	Action: func(c *cli.Context) error {
		cfg, warnings, err := loadConfig[RenderConfig](c)
		if err != nil {
			return err
		}

		l := CreateLogger(cfg.GlobalConfig)
		logWarnings(l, warnings)

		raw, err := os.ReadFile(cfg.ScanResultPath)
		if err != nil {
			return fmt.Errorf("reading scan result: %w", err)
		}

		var in renderInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return fmt.Errorf("parsing scan result: %w", err)
		}

		switch dispatch.RenderFormat(cfg.Format) {
		case dispatch.FormatDailyFindings, "":
			fmt.Println(render.DetailedReport(in.Result, in.Jobs))
		case dispatch.FormatStandup:
			fmt.Println(render.StandupSummary(in.Result, in.Jobs))
		default:
			return printOperationError(fmt.Errorf("dispatch: unknown render format %q", cfg.Format))
		}
		return nil
	},
}
