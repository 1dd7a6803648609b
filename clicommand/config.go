package clicommand

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/dougbtv/vllm-ci-mcp/cliconfig"
	"github.com/dougbtv/vllm-ci-mcp/logger"
)

// loadConfig binds T's `cli:"..."` tagged fields from c's flags and returns
// the populated config plus any non-fatal warnings from the load. No config
// file is read: the Loader is given no config file paths.
func loadConfig[T any](c *cli.Context) (*T, []string, error) {
	cfg := new(T)
	l := &cliconfig.Loader{CLI: c, Config: cfg}
	warnings, err := l.Load()
	if err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

func logWarnings(l logger.Logger, warnings []string) {
	for _, w := range warnings {
		l.Warn("%s", w)
	}
}

// printResult writes v to stdout as JSON. Command output is always JSON on
// stdout, regardless of how the underlying operation failed, so that a
// calling process can parse a result either way; logging goes to stderr via
// the command's logger instead.
func printResult(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// errorResult is printed to stdout (not stderr) for operation-level
// failures, including an API that cannot be reached while the operation
// runs, so these still exit 0: only failures before the operation runs (a
// configuration error, a Dispatcher that cannot be constructed) return a
// non-zero exit code.
type errorResult struct {
	Error string `json:"error"`
}

func printOperationError(err error) error {
	if printErr := printResult(errorResult{Error: err.Error()}); printErr != nil {
		return fmt.Errorf("printing error result: %w", printErr)
	}
	return nil
}
