package system

import (
	"context"
	"os/exec"
)

// Runner executes an external command and returns its standard output.
// Implementations must return whatever output was produced even when the
// command exits non-zero, alongside the error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec. The command is killed when ctx is
// done.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
