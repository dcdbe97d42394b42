package control

import (
	"context"
	"fmt"
	"os/exec"
)

// Executor runs OS commands on behalf of the gateway.
type Executor interface {
	// Run waits for the command and returns its combined stdout and stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// Start launches the command in its own process group and returns once
	// it is running. The command is neither waited on nor cancelled.
	Start(name string, args ...string) error
}

// ExecExecutor implements Executor with os/exec.
type ExecExecutor struct{}

// Run implements Executor.
func (ExecExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Start implements Executor. The child is reaped in the background.
func (ExecExecutor) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = sysProcAttr()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
