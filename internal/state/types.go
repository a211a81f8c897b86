package state

import "time"

// StepState is the lifecycle state of a single step within a Day's Journal.
type StepState string

const (
	Pending StepState = "pending"
	Running StepState = "running"
	Done    StepState = "done"
	Failed  StepState = "failed"
	Skipped StepState = "skipped"
)

// maxErrorMessageLen bounds LastErrorMessage so a runaway child process
// cannot bloat the journal file.
const maxErrorMessageLen = 2048

func truncateError(msg string) string {
	if len(msg) <= maxErrorMessageLen {
		return msg
	}
	return msg[:maxErrorMessageLen] + "...(truncated)"
}

// StepRecord is the per-(Day, Step) record kept in the Journal.
type StepRecord struct {
	State              StepState  `json:"state"`
	AttemptsToday      int        `json:"attempts_today"`
	LastExitCode       *int       `json:"last_exit_code,omitempty"`
	LastStartedAt      *time.Time `json:"last_started_at,omitempty"`
	LastFinishedAt     *time.Time `json:"last_finished_at,omitempty"`
	LastErrorMessage   string     `json:"last_error_message,omitempty"`
	KilledDueToTimeout bool       `json:"killed_due_to_timeout,omitempty"`
}

// journalSchemaVersion is bumped whenever the on-disk Journal shape changes
// in a way operators reading old journals should know about.
const journalSchemaVersion = 1

// Journal is the whole state for a given Day: the sole source of truth for
// "did this complete today?" (filesystem artifacts only corroborate it).
type Journal struct {
	Date              string                 `json:"date"` // YYYY-MM-DD, local calendar date
	Steps             map[string]*StepRecord `json:"steps"`
	AlertsSent        map[string]bool        `json:"alerts_sent"`
	SchemaVersion     int                    `json:"schema_version"`
	ConfigFingerprint string                 `json:"config_fingerprint,omitempty"`
}

// NewJournal returns an empty Journal for date (YYYY-MM-DD), seeding every
// name in stepNames Pending, except names in skippedNames which start
// Skipped (today excluded by required_days_of_week).
func NewJournal(date string, stepNames []string, skippedNames map[string]bool, configFingerprint string) *Journal {
	j := &Journal{
		Date:              date,
		Steps:             make(map[string]*StepRecord, len(stepNames)),
		AlertsSent:        make(map[string]bool),
		SchemaVersion:     journalSchemaVersion,
		ConfigFingerprint: configFingerprint,
	}
	for _, name := range stepNames {
		initial := Pending
		if skippedNames[name] {
			initial = Skipped
		}
		j.Steps[name] = &StepRecord{State: initial}
	}
	return j
}

// Get returns the record for name, or nil if name is not part of this
// Journal's step set.
func (j *Journal) Get(name string) *StepRecord {
	return j.Steps[name]
}
