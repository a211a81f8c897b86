package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/orcherr"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/paths"
)

// Store loads and atomically persists the active day's Journal. It is the
// only component that writes the Journal file; every other component reads
// through its accessor methods.
type Store struct {
	mu      sync.RWMutex
	paths   paths.Paths
	journal *Journal
	audit   *AuditLog // nil if the supplementary audit log is disabled
	log     *logrus.Entry
}

// Open loads today's Journal from disk, creating one via newFn if none
// exists yet (a fresh day, or a first run). audit may be nil to disable the
// supplementary event log.
func Open(p paths.Paths, today time.Time, newFn func() *Journal, audit *AuditLog, log *logrus.Entry) (*Store, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Store{paths: p, audit: audit, log: log}

	current := p.CurrentJournalFile()
	data, err := os.ReadFile(current)
	switch {
	case err == nil:
		var j Journal
		if unmarshalErr := json.Unmarshal(data, &j); unmarshalErr != nil {
			return nil, orcherr.StateIOError(fmt.Sprintf("corrupt journal at %s", current)).Build()
		}
		if j.Date != today.Format("2006-01-02") {
			// A Journal exists but is stale; the Supervisor rolls it over
			// on its first tick after Open. Adopt it as-is rather than
			// silently discarding state — Open never rolls over on its own.
			s.log.WithField("journal_date", j.Date).Warn("state: loaded journal does not match today; caller must roll over")
		}
		s.journal = &j
	case os.IsNotExist(err):
		s.journal = newFn()
		if writeErr := s.writeLocked(); writeErr != nil {
			return nil, writeErr
		}
	default:
		return nil, orcherr.StateIOError(fmt.Sprintf("reading journal at %s", current)).Build()
	}

	return s, nil
}

// Journal returns a snapshot copy of the current day's Journal state for
// read-only inspection (status reporting, tests).
func (s *Store) Journal() Journal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.journal
}

// Get returns a copy of the named step's record, or nil if the step is not
// part of today's Journal.
func (s *Store) Get(name string) *StepRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.journal.Steps[name]
	if rec == nil {
		return nil
	}
	cp := *rec
	return &cp
}

// MarkStarted transitions name to Running and increments its attempt count.
func (s *Store) MarkStarted(name string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.journal.Steps[name]
	if rec == nil {
		return orcherr.InternalError(fmt.Sprintf("mark_started: unknown step %q", name)).Build()
	}
	rec.State = Running
	rec.AttemptsToday++
	rec.LastStartedAt = &startedAt

	if err := s.writeLocked(); err != nil {
		return err
	}
	s.appendAudit(name, Running, "")
	return nil
}

// MarkPendingAgain undoes a MarkStarted call for a step that never actually
// launched because the engine's global parallelism cap was full this tick.
// It returns the step to Pending and refunds the attempt MarkStarted
// consumed, so the cap never costs the step part of its attempt budget.
func (s *Store) MarkPendingAgain(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.journal.Steps[name]
	if rec == nil {
		return orcherr.InternalError(fmt.Sprintf("mark_pending_again: unknown step %q", name)).Build()
	}
	rec.State = Pending
	if rec.AttemptsToday > 0 {
		rec.AttemptsToday--
	}
	rec.LastStartedAt = nil

	if err := s.writeLocked(); err != nil {
		return err
	}
	s.appendAudit(name, Pending, "")
	return nil
}

// RunOutcome carries the fields a completed run reports back to the Journal.
type RunOutcome struct {
	ExitCode           int
	FinishedAt         time.Time
	KilledDueToTimeout bool
	ErrorMessage       string
}

// MarkDone transitions name to Done.
func (s *Store) MarkDone(name string, outcome RunOutcome) error {
	return s.finish(name, Done, outcome)
}

// MarkFailed transitions name to Failed.
func (s *Store) MarkFailed(name string, outcome RunOutcome) error {
	return s.finish(name, Failed, outcome)
}

// MarkRetryPending records a failed run's outcome but returns name to
// Pending (rather than leaving it Failed) so the Pipeline Engine retries it
// after a backoff. A step only becomes terminally Failed once its attempt
// budget for the day is exhausted.
func (s *Store) MarkRetryPending(name string, outcome RunOutcome) error {
	return s.finish(name, Pending, outcome)
}

// MarkSkipped transitions name to Skipped (dependency failure cascade, or a
// required_days_of_week exclusion discovered after journal creation).
func (s *Store) MarkSkipped(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.journal.Steps[name]
	if rec == nil {
		return orcherr.InternalError(fmt.Sprintf("mark_skipped: unknown step %q", name)).Build()
	}
	if rec.State == Done {
		// Invariant 1: Done never regresses, not even to Skipped.
		return nil
	}
	rec.State = Skipped

	if err := s.writeLocked(); err != nil {
		return err
	}
	s.appendAudit(name, Skipped, "")
	return nil
}

func (s *Store) finish(name string, target StepState, outcome RunOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.journal.Steps[name]
	if rec == nil {
		return orcherr.InternalError(fmt.Sprintf("finish: unknown step %q", name)).Build()
	}
	rec.State = target
	rec.LastFinishedAt = &outcome.FinishedAt
	code := outcome.ExitCode
	rec.LastExitCode = &code
	rec.KilledDueToTimeout = outcome.KilledDueToTimeout
	rec.LastErrorMessage = truncateError(outcome.ErrorMessage)

	if err := s.writeLocked(); err != nil {
		return err
	}
	s.appendAudit(name, target, rec.LastErrorMessage)
	return nil
}

// MarkAlertSent records that alertKey has been notified today, returning
// true if this call is the one that newly recorded it (false if it was
// already present — the caller should not re-send).
func (s *Store) MarkAlertSent(alertKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.journal.AlertsSent[alertKey] {
		return false, nil
	}
	s.journal.AlertsSent[alertKey] = true
	if err := s.writeLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// AlertAlreadySent reports whether alertKey has already fired today.
func (s *Store) AlertAlreadySent(alertKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.journal.AlertsSent[alertKey]
}

// AnyAlertSentToday reports whether any alert at all has fired today. The
// heartbeat uses this to stay silent on days where a step failure (or any
// other alert) has already told the operator the process is alive.
func (s *Store) AnyAlertSentToday() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.journal.AlertsSent) > 0
}

// Rollover writes a final snapshot of the outgoing Journal, renames it to
// its dated filename, then installs newJournal as the new current Journal.
// Per invariant 5, from the perspective of any observer either both steps
// have happened or neither has: the rename only occurs after a successful
// write, and the new Journal is only written after a successful rename.
func (s *Store) Rollover(newJournal *Journal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLocked(); err != nil {
		return err
	}

	outgoingDate, err := time.Parse("2006-01-02", s.journal.Date)
	if err != nil {
		return orcherr.InternalError(fmt.Sprintf("rollover: unparseable journal date %q", s.journal.Date)).Build()
	}

	dated := s.paths.JournalFileFor(outgoingDate)
	dated = s.uniqueBackupPath(dated)

	current := s.paths.CurrentJournalFile()
	if err := os.Rename(current, dated); err != nil {
		return orcherr.StateIOError(fmt.Sprintf("rollover: renaming %s to %s", current, dated)).Build()
	}

	s.journal = newJournal
	if err := s.writeLocked(); err != nil {
		return err
	}
	return nil
}

// uniqueBackupPath appends ".bak-<seq>" if target already exists, tolerating
// a pre-existing dated file from a prior rollover that was never cleaned up.
func (s *Store) uniqueBackupPath(target string) string {
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return target
	}
	for seq := 1; ; seq++ {
		candidate := fmt.Sprintf("%s.bak-%d", target, seq)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// writeLocked serializes the current Journal to its tempfile, fsyncs it, and
// renames it over state/current.json. Callers must hold s.mu.
func (s *Store) writeLocked() error {
	data, err := json.MarshalIndent(s.journal, "", "  ")
	if err != nil {
		return orcherr.InternalError("marshaling journal").Build()
	}

	target := s.paths.CurrentJournalFile()
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return orcherr.StateIOError(fmt.Sprintf("creating state dir %s", dir)).Fatal().Build()
	}

	tmp, err := os.CreateTemp(dir, ".current-*.json.tmp")
	if err != nil {
		return orcherr.StateIOError("creating journal tempfile").Build()
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return orcherr.StateIOError("writing journal tempfile").Build()
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return orcherr.StateIOError("fsyncing journal tempfile").Build()
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return orcherr.StateIOError("closing journal tempfile").Build()
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return orcherr.StateIOError(fmt.Sprintf("renaming journal into place at %s", target)).Build()
	}
	return nil
}

func (s *Store) appendAudit(step string, state StepState, message string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(s.journal.Date, step, string(state), message); err != nil {
		s.log.WithError(err).WithField("step", step).Warn("state: audit log append failed, journal write already succeeded")
	}
}
