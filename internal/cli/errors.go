package cli

import (
	"errors"
	"fmt"
)

// ExitError represents a command execution failure with a specific exit code.
//
// Cobra RunE functions return it to signal a non-zero exit without calling
// os.Exit directly. [RunWithConfig] extracts the code with [IsExitError]
// into the [ExecuteResult], and [Execute] performs the actual exit.
type ExitError struct {
	// Code is the exit code to return to the shell.
	// Convention: 0 = success, 1 = general error, 2 = rejected transition,
	// 3 = finished tour (status --check).
	Code int
}

// Error implements the error interface in the "exit status N" format of
// os/exec.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates an [ExitError] with the given exit code.
//
//	if state.CurrentStep.IsFinished() {
//	    return NewExitError(exitFinished)
//	}
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError checks if err is or wraps an [ExitError] and extracts its
// exit code. Returns (0, false) for nil or any other error.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
