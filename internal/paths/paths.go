// Package paths is the single place that knows how the orchestrator's root,
// state, and log directories map onto a given day's dated artifact folder.
// No other package constructs these paths by string concatenation.
package paths

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// months gives the lowercase three-letter month abbreviation the DDmon
// convention uses (e.g. "jul"), independent of time.Time's own Month.String
// casing.
var months = [...]string{
	"jan", "feb", "mar", "apr", "may", "jun",
	"jul", "aug", "sep", "oct", "nov", "dec",
}

// DateSuffix renders t's local calendar date in the lowercase DDmon folder
// convention (e.g. "31jul"). This is the exact string passed to job
// executables as PIPELINE_DATE.
func DateSuffix(t time.Time) string {
	return fmt.Sprintf("%02d%s", t.Day(), months[t.Month()-1])
}

// Paths resolves every on-disk location the orchestrator reads or writes,
// rooted at a configured root/state/log directory triple.
type Paths struct {
	Root    string
	StateDir string
	LogDir  string
}

// New returns a Paths rooted at the given directories. Relative paths are
// accepted as-is; callers are expected to have already resolved them against
// the config file's own directory if the config uses relative paths.
func New(root, stateDir, logDir string) Paths {
	return Paths{Root: root, StateDir: stateDir, LogDir: logDir}
}

// DatedDir returns the base dated folder for date under root, e.g.
// "<root>/31jul".
func (p Paths) DatedDir(date time.Time) string {
	return filepath.Join(p.Root, DateSuffix(date))
}

// CSVDir returns the csv output folder for date.
func (p Paths) CSVDir(date time.Time) string {
	return filepath.Join(p.DatedDir(date), "csv")
}

// MergedDir returns the merged output folder for date.
func (p Paths) MergedDir(date time.Time) string {
	return filepath.Join(p.DatedDir(date), "merged")
}

// PDFDir returns the pdf output folder for date.
func (p Paths) PDFDir(date time.Time) string {
	return filepath.Join(p.DatedDir(date), "pdf")
}

// LogDirFor returns the per-day step log directory, under the configured
// log_dir rather than the dated artifact root (logs are operator-facing,
// artifacts are job-product).
func (p Paths) LogDirFor(date time.Time) string {
	return filepath.Join(p.LogDir, DateSuffix(date))
}

// StepLogFile returns the log file path for a single step's attempt on date.
func (p Paths) StepLogFile(date time.Time, stepName string, attempt int) string {
	safe := sanitizeName(stepName)
	return filepath.Join(p.LogDirFor(date), fmt.Sprintf("%s-attempt%d.log", safe, attempt))
}

// CurrentJournalFile returns state/current.json.
func (p Paths) CurrentJournalFile() string {
	return filepath.Join(p.StateDir, "current.json")
}

// JournalFileFor returns state/journal-YYYY-MM-DD.json for date.
func (p Paths) JournalFileFor(date time.Time) string {
	return filepath.Join(p.StateDir, fmt.Sprintf("journal-%s.json", date.Format("2006-01-02")))
}

// InstanceLockFile returns state/instance.lock.
func (p Paths) InstanceLockFile() string {
	return filepath.Join(p.StateDir, "instance.lock")
}

// AuditDBFile returns state/audit.db, the supplementary event log (never
// authoritative — see the Journal).
func (p Paths) AuditDBFile() string {
	return filepath.Join(p.StateDir, "audit.db")
}

// sanitizeName strips characters that would be awkward in a filename; step
// names come from trusted config, this only guards against accidental path
// separators.
func sanitizeName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", " ", "_")
	return r.Replace(name)
}

// FileURI prefixes an absolute path with the file:// scheme so terminal
// emulators render it as a clickable link; used by `status` to surface a
// step's log file. Relative paths, empty strings, and paths that already
// carry a URI scheme are returned unchanged.
func FileURI(path string) string {
	if path == "" || strings.Contains(path, "://") || !strings.HasPrefix(path, "/") {
		return path
	}
	return "file://" + path
}
