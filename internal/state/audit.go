package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/orcherr"
)

// AuditLog is a supplementary, non-authoritative record of every state
// transition, kept for historical queries (status --history, diagnostics).
// It can be rebuilt from the Journal at any time; the Journal is never
// rebuilt from it. Losing audit.db is a non-event for correctness.
type AuditLog struct {
	db *sql.DB
}

// OpenAuditLog opens (creating if necessary) the audit database at dbPath.
func OpenAuditLog(dbPath string) (*AuditLog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, orcherr.Wrap(err, orcherr.CategoryStateIO, "opening audit database").Logged().Build()
	}

	// SQLite's single-writer model means a connection pool larger than one
	// just serializes at the driver level with extra contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, orcherr.Wrap(err, orcherr.CategoryStateIO, "pinging audit database").Logged().Build()
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, orcherr.Wrap(err, orcherr.CategoryStateIO, fmt.Sprintf("setting %s", pragma)).Logged().Build()
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS step_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	day TEXT NOT NULL,
	step TEXT NOT NULL,
	state TEXT NOT NULL,
	message TEXT,
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_step_events_step ON step_events(step, recorded_at);
CREATE INDEX IF NOT EXISTS idx_step_events_day ON step_events(day);
`
	if _, err := db.Exec(schema); err != nil {
		return nil, orcherr.Wrap(err, orcherr.CategoryStateIO, "creating audit schema").Logged().Build()
	}

	return &AuditLog{db: db}, nil
}

// Append records one state transition. Best-effort: callers log failures
// and continue, since the Journal write is what actually matters.
func (a *AuditLog) Append(day, step, state, message string) error {
	_, err := a.db.Exec(
		`INSERT INTO step_events (day, step, state, message, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		day, step, state, message, time.Now().Unix(),
	)
	return err
}

// StepEvent is one row of audit history for a step.
type StepEvent struct {
	Day        string
	Step       string
	State      string
	Message    string
	RecordedAt time.Time
}

// History returns the last limit events recorded for step, most recent
// first, backing the `status --history <step>` CLI flag.
func (a *AuditLog) History(step string, limit int) ([]StepEvent, error) {
	rows, err := a.db.Query(
		`SELECT day, step, state, message, recorded_at FROM step_events WHERE step = ? ORDER BY recorded_at DESC LIMIT ?`,
		step, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StepEvent
	for rows.Next() {
		var e StepEvent
		var recordedAtUnix int64
		if err := rows.Scan(&e.Day, &e.Step, &e.State, &e.Message, &recordedAtUnix); err != nil {
			return nil, err
		}
		e.RecordedAt = time.Unix(recordedAtUnix, 0)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close releases the underlying database handle.
func (a *AuditLog) Close() error {
	return a.db.Close()
}
