//go:build windows

package lock

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// processAlive shells out to tasklist, since os.FindProcess on Windows
// always succeeds regardless of whether pid is running, and Signal(0) is
// not a liveness probe there.
func processAlive(pid int) bool {
	out, err := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/NH", "/FO", "CSV").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), strconv.Itoa(pid))
}
