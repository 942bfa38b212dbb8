//go:build unix

package builtin

import (
	"os/exec"
	"syscall"
)

// noFollowFlag rejects a symlink as the final path component at open
// time.
const noFollowFlag = syscall.O_NOFOLLOW

// setProcessGroup places the shell in its own process group so the whole
// tree can be killed at once.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup terminates the command's entire process group.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
