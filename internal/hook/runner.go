package hook

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// defaultTimeout bounds a hook command when neither the definition nor the
// engine configures one.
const defaultTimeout = 60 * time.Second

// Exit code 2 is the blocking contract; everything else non-zero is a
// non-fatal hook bug.
const blockExitCode = 2

// runResult captures one hook command execution.
type runResult struct {
	exitCode int
	stdout   string
	stderr   string
	timedOut bool
}

// runCommand executes a single hook command via the shell, feeding payload
// on stdin. The process group is killed on timeout or cancellation so no
// grandchildren survive.
func runCommand(ctx context.Context, command string, payload []byte, timeout time.Duration) (runResult, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = bytes.NewReader(payload)

	err := cmd.Run()

	res := runResult{
		stdout: stdout.String(),
		stderr: stderr.String(),
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.timedOut = true
		return res, nil
	}

	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.exitCode = exitErr.ExitCode()
		return res, nil
	}

	// Non-exit failures (shell missing, fork failure) are runner errors.
	return res, err
}
