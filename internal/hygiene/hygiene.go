// Package hygiene force-terminates the named process family belonging to
// the legacy target application, at fixed daily moments and after any step
// that declares closes_application_on_exit.
package hygiene

import (
	"time"

	"github.com/sirupsen/logrus"
)

// runCmd abstracts process-termination commands for testing; platformKill
// is the platform-specific implementation in hygiene_unix.go/hygiene_windows.go.
type runCmd func(patterns []string, forceful bool)

// Hygiene terminates a configured list of process-name patterns.
type Hygiene struct {
	Patterns []string
	Grace    time.Duration
	Log      *logrus.Entry
	run      runCmd
}

// New returns a Hygiene sweeping for patterns, allowing grace before a
// forceful kill (default 5s if zero).
func New(patterns []string, grace time.Duration, log *logrus.Entry) *Hygiene {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hygiene{Patterns: patterns, Grace: grace, Log: log, run: platformKill}
}

// TerminateFamily best-effort closes, then force-kills, every process
// matching Patterns. reason is logged for operator diagnostics only.
func (h *Hygiene) TerminateFamily(reason string) error {
	h.Log.WithField("reason", reason).Info("hygiene: terminating process family")
	h.run(h.Patterns, false)
	time.Sleep(h.Grace)
	h.run(h.Patterns, true)
	return nil
}
