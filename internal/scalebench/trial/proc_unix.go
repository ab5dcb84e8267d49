//go:build !windows

package trial

import (
	"os/exec"
	"syscall"
)

// killProcessGroup starts cmd in its own process group and makes cancellation kill the whole group, so that workers
// forked by a launcher do not outlive a timed-out trial.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
