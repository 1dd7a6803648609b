package clicommand

import (
	"errors"
	"fmt"
	"os"
)

// ExitError signals that the command should exit with code, wrapping the
// underlying error for context.
type ExitError struct {
	code  int
	inner error
}

// NewExitError returns an ExitError with the given code and wrapped error.
func NewExitError(code int, err error) *ExitError {
	return &ExitError{code: code, inner: err}
}

func (e *ExitError) Code() int     { return e.code }
func (e *ExitError) Error() string { return e.inner.Error() }
func (e *ExitError) Unwrap() error { return e.inner }

func (e *ExitError) Is(target error) bool {
	terr, ok := target.(*ExitError)
	return ok && e.code == terr.code
}

// PrintMessageAndReturnExitCode prints err to stderr (unless it is nil) and
// returns the process exit code for it: 0 for nil, the wrapped code for an
// ExitError, 1 otherwise.
func PrintMessageAndReturnExitCode(err error) int {
	if err == nil {
		return 0
	}

	fmt.Fprintf(os.Stderr, "vllm-ci-mcp: fatal: %s\n", err)

	var eerr *ExitError
	if errors.As(err, &eerr) {
		return eerr.Code()
	}

	return 1
}
