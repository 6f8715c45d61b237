package composetest

import (
	"context"
	"os/exec"
)

// Runner executes an external command and returns its combined stdout and
// stderr. It is the single seam between this library and the docker CLI;
// tests substitute a scripted implementation.
type Runner interface {
	// Run executes command with args, blocking until it exits. On a
	// non-zero exit status it returns a *CommandError carrying the exit
	// code and the combined output.
	Run(ctx context.Context, command string, args ...string) (string, error)
}

// execRunner is the default Runner backed by os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, command string, args ...string) (string, error) {
	log.Printf("composetest: executing %s %v", command, args)

	cmd := exec.CommandContext(ctx, command, args...)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return string(out), nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		return "", &CommandError{
			Command:  command,
			Args:     args,
			ExitCode: exitErr.ExitCode(),
			Output:   string(out),
		}
	}
	// Startup failure (binary missing, permission denied): no exit status
	// or output to report.
	return "", err
}
