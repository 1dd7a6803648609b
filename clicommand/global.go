package clicommand

import (
	"os"

	"github.com/urfave/cli"

	"github.com/dougbtv/vllm-ci-mcp/logger"
)

const (
	categoryScan    = "Scan Commands"
	categoryHistory = "History Commands"
	categoryRender  = "Render Commands"
)

var (
	LogLevelFlag = cli.StringFlag{
		Name:   "log-level",
		Value:  "notice",
		Usage:  "Set the log level, making logging more or less verbose. Allowed values are: debug, info, notice, warn, error",
		EnvVar: "VLLM_CI_MCP_LOG_LEVEL",
	}

	NoColorFlag = cli.BoolFlag{
		Name:   "no-color",
		Usage:  "Don't show colors in logging",
		EnvVar: "VLLM_CI_MCP_NO_COLOR",
	}

	ExperimentFlag = cli.StringSliceFlag{
		Name:   "experiment",
		Usage:  "Enable an experimental behavior, can be passed multiple times",
		EnvVar: "VLLM_CI_MCP_EXPERIMENTS",
	}

	MetricsDatadogFlag = cli.BoolFlag{
		Name:   "metrics-datadog",
		Usage:  "Send command timing and failure-count metrics to a dogstatsd agent",
		EnvVar: "VLLM_CI_MCP_METRICS_DATADOG",
	}

	MetricsDatadogHostFlag = cli.StringFlag{
		Name:   "metrics-datadog-host",
		Value:  "127.0.0.1:8125",
		Usage:  "dogstatsd host:port to send metrics to",
		EnvVar: "VLLM_CI_MCP_METRICS_DATADOG_HOST",
	}
)

// GlobalConfig holds the flags shared across every command. Embed it into a
// command-specific config struct.
type GlobalConfig struct {
	LogLevel           string   `cli:"log-level"`
	NoColor            bool     `cli:"no-color"`
	Experiments        []string `cli:"experiment"`
	MetricsDatadog     bool     `cli:"metrics-datadog"`
	MetricsDatadogHost string   `cli:"metrics-datadog-host"`
}

func globalFlags() []cli.Flag {
	return []cli.Flag{LogLevelFlag, NoColorFlag, ExperimentFlag, MetricsDatadogFlag, MetricsDatadogHostFlag}
}

// CreateLogger builds a text logger writing to stderr (so stdout stays
// reserved for a command's JSON result), honoring LogLevel/NoColor if the
// config embeds GlobalConfig.
func CreateLogger(cfg GlobalConfig) logger.Logger {
	printer := logger.NewTextPrinter(os.Stderr)
	printer.Colors = !cfg.NoColor

	l := logger.NewConsoleLogger(printer, os.Exit)
	l.SetLevel(logger.NOTICE)

	if cfg.LogLevel != "" {
		if level, err := logger.LevelFromString(cfg.LogLevel); err == nil {
			l.SetLevel(level)
		} else {
			l.Warn("unknown log level %q, defaulting to notice", cfg.LogLevel)
		}
	}

	return l
}
