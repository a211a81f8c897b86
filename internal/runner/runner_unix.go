//go:build !windows

package runner

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// setProcessGroup detaches cmd into its own process group so a timeout or
// shutdown kill reaches every descendant it spawns, not just the direct
// child.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessTree sends SIGTERM to the negative PID (the whole process
// group), then SIGKILL after grace if it is still alive.
func killProcessTree(process *os.Process, grace time.Duration, log *logrus.Entry) {
	if process == nil {
		return
	}
	_ = syscall.Kill(-process.Pid, syscall.SIGTERM)

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(-process.Pid, 0); err == syscall.ESRCH {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err := syscall.Kill(-process.Pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		log.WithError(err).WithField("pid", process.Pid).Warn("runner: SIGKILL of process group failed")
	}
}

func platformExitCode(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus()
		}
	}
	return -1
}
