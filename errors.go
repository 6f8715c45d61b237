package composetest

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by compose operations
var (
	// ErrRuntimeNotFound indicates the docker binary is not installed or not in PATH
	ErrRuntimeNotFound = errors.New("composetest: docker not found, have you installed docker?")

	// ErrRuntimeBroken indicates docker is present but the compose sub-command failed
	ErrRuntimeBroken = errors.New("composetest: docker compose not working, have you installed docker compose?")

	// ErrServiceNotFound indicates a lifecycle operation named a service that
	// is not part of this environment
	ErrServiceNotFound = errors.New("composetest: service not found")

	// ErrWaitTimeout indicates the readiness wait exceeded its budget
	ErrWaitTimeout = errors.New("composetest: readiness wait timed out")

	// ErrContainerFailed indicates a container entered a failure state while
	// the environment was still starting up
	ErrContainerFailed = errors.New("composetest: container failed to initialize")
)

// CommandError reports a runtime command that exited non-zero. It carries
// the full combined output so a failure is diagnosable without re-running
// anything.
type CommandError struct {
	// Command is the binary that was invoked
	Command string
	// Args are the arguments it was invoked with
	Args []string
	// ExitCode is the process exit status
	ExitCode int
	// Output is the combined stdout and stderr
	Output string
}

// Error returns a formatted error message
func (e *CommandError) Error() string {
	return fmt.Sprintf("composetest: command %s %s exited with code %d and output:\n%s",
		e.Command, strings.Join(e.Args, " "), e.ExitCode, e.Output)
}

// ContractError reports a caller mistake: a malformed manifest, an image
// missing from the catalog, or a lifecycle call naming an unknown service.
// These are configuration or programming errors, not transient runtime
// conditions, and retrying the same call will fail the same way.
type ContractError struct {
	// Msg describes the violated contract
	Msg string
	// Err is the underlying error, if any
	Err error
}

// Error returns a formatted error message
func (e *ContractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("composetest: %s: %v", e.Msg, e.Err)
	}
	return "composetest: " + e.Msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *ContractError) Unwrap() error {
	return e.Err
}

func contractErrorf(format string, args ...any) *ContractError {
	return &ContractError{Msg: fmt.Sprintf(format, args...)}
}
