//go:build windows

package hygiene

import "os/exec"

// platformKill runs taskkill against each pattern; /F forces a kill,
// otherwise it is a graceful close-window request. taskkill exits non-zero
// when no matching process is found, which is the common case on a day the
// legacy app never opened — never an error worth surfacing.
func platformKill(patterns []string, forceful bool) {
	for _, pattern := range patterns {
		args := []string{"/IM", pattern}
		if forceful {
			args = append(args, "/F")
		}
		_ = exec.Command("taskkill", args...).Run()
	}
}
