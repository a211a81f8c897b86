// Package probe answers "has this step already produced its output?" by
// inspecting dated artifact folders. The predicates take no timestamp; the
// only time-dependent check is CountFiles' size-stability test, which
// sleeps between two size samples.
package probe

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/paths"
)

// Match describes a single file matched by a glob predicate.
type Match struct {
	Path  string
	MTime time.Time
	Size  int64
}

// Probe inspects the filesystem on behalf of the Pipeline Engine. A nil
// Logger is not valid; use NewProbe to get a safe default.
type Probe struct {
	Log *logrus.Entry
}

// NewProbe returns a Probe that logs I/O errors through log (a nil log
// falls back to a standard logger instance).
func NewProbe(log *logrus.Entry) *Probe {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Probe{Log: log}
}

// CountFiles counts files directly under folder matching glob whose size is
// at least minSizeBytes. If minAgeMillis > 0, a file only counts once two
// size samples minAgeMillis apart agree, which screens out files still being
// written by a producer job.
func (p *Probe) CountFiles(folder, glob string, minSizeBytes int64, minAgeMillis int64) int {
	matches, err := p.list(folder, glob)
	if err != nil {
		p.Log.WithError(err).WithField("folder", folder).Warn("probe: listing folder failed, treating as unknown")
		return 0
	}

	count := 0
	for _, m := range matches {
		if m.Size < minSizeBytes {
			continue
		}
		if minAgeMillis > 0 && !p.sizeStable(m.Path, minAgeMillis) {
			continue
		}
		count++
	}
	return count
}

// ExistsAny reports whether any file under folder matches glob.
func (p *Probe) ExistsAny(folder, glob string) bool {
	matches, err := p.list(folder, glob)
	if err != nil {
		p.Log.WithError(err).WithField("folder", folder).Warn("probe: listing folder failed, treating as unknown")
		return false
	}
	return len(matches) > 0
}

// NewestMatching returns the most recently modified file under folder
// matching glob, or nil if none match or the folder is unreadable.
func (p *Probe) NewestMatching(folder, glob string) *Match {
	matches, err := p.list(folder, glob)
	if err != nil {
		p.Log.WithError(err).WithField("folder", folder).Warn("probe: listing folder failed, treating as unknown")
		return nil
	}
	if len(matches) == 0 {
		return nil
	}

	newest := matches[0]
	for _, m := range matches[1:] {
		if m.MTime.After(newest.MTime) {
			newest = m
		}
	}
	return &newest
}

// sizeStable reports whether folder entry path's size is unchanged across
// two stats minAgeMillis apart, defending against counting half-written
// output from an in-progress job.
func (p *Probe) sizeStable(path string, minAgeMillis int64) bool {
	first, err := statSize(path)
	if err != nil {
		return false
	}
	time.Sleep(time.Duration(minAgeMillis) * time.Millisecond)
	second, err := statSize(path)
	if err != nil {
		return false
	}
	return first == second
}

func (p *Probe) list(folder, glob string) ([]Match, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := filepath.Match(glob, e.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		matches = append(matches, Match{
			Path:  filepath.Join(folder, e.Name()),
			MTime: info.ModTime(),
			Size:  info.Size(),
		})
	}
	return matches, nil
}

func statSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// DatedCountFiles is a convenience wrapper that resolves folder via p and a
// Paths accessor rather than string concatenation at the call site.
func (p *Probe) DatedCountFiles(pp paths.Paths, date time.Time, dirFn func(paths.Paths, time.Time) string, glob string, minSizeBytes, minAgeMillis int64) int {
	return p.CountFiles(dirFn(pp, date), glob, minSizeBytes, minAgeMillis)
}
