//go:build !windows

package lock

import (
	"os"
	"syscall"
)

// processAlive sends signal 0 to pid, which performs the permission/existence
// checks without actually delivering a signal.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
