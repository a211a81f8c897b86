//go:build windows

package runner

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// setProcessGroup puts cmd in a new process group so taskkill /T can reach
// every descendant it spawns (UI-automation helpers routinely fan out).
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// killProcessTree asks taskkill to terminate the whole tree rooted at
// process.Pid. taskkill /T already recurses to children, so there is no
// separate graceful/forceful grace-period loop to run here beyond what /T
// /F gives us in one call.
func killProcessTree(process *os.Process, grace time.Duration, log *logrus.Entry) {
	if process == nil {
		return
	}
	if err := exec.Command("taskkill", "/PID", fmt.Sprintf("%d", process.Pid), "/T", "/F").Run(); err != nil {
		log.WithError(err).WithField("pid", process.Pid).Warn("runner: taskkill of process tree failed")
	}
}

func platformExitCode(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
