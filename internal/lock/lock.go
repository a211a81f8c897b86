// Package lock guarantees single-instance execution of the orchestrator via
// an exclusive-create PID file, with stale-lock reclamation for crashed
// predecessors.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/orcherr"
)

// Info is the JSON body written into the lock file.
type Info struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Host      string    `json:"host"`
	Program   string    `json:"program"`
}

// Lock holds an acquired instance lock; Release must be called on normal
// shutdown.
type Lock struct {
	path string
}

// ErrHeldByPeer is returned by Acquire when a live peer already holds the
// lock; callers map this to the lock-contention exit code.
type ErrHeldByPeer struct {
	Peer Info
}

func (e *ErrHeldByPeer) Error() string {
	return fmt.Sprintf("instance lock held by pid %d on %s since %s", e.Peer.PID, e.Peer.Host, e.Peer.StartedAt)
}

// Acquire creates the lock file at path exclusively. If a lock file already
// exists, it is reclaimed only when the PID it names is no longer alive, or
// belongs to a different program; otherwise Acquire returns *ErrHeldByPeer.
func Acquire(path string) (*Lock, error) {
	lock, err := tryCreate(path)
	if err == nil {
		return lock, nil
	}
	if !os.IsExist(err) {
		return nil, orcherr.LockError(fmt.Sprintf("creating lock file %s", path)).Build()
	}

	existing, readErr := readInfo(path)
	if readErr != nil {
		// The file is present but unreadable/corrupt; treat it as stale
		// rather than refusing to start forever.
		if removeErr := os.Remove(path); removeErr != nil {
			return nil, orcherr.LockError(fmt.Sprintf("removing unreadable lock file %s", path)).Build()
		}
		return tryCreateOrFatal(path)
	}

	if isLive(existing) {
		return nil, &ErrHeldByPeer{Peer: existing}
	}

	// Stale: the named PID is gone, or belongs to a different program.
	if err := os.Remove(path); err != nil {
		return nil, orcherr.LockError(fmt.Sprintf("removing stale lock file %s", path)).Build()
	}
	return tryCreateOrFatal(path)
}

func tryCreateOrFatal(path string) (*Lock, error) {
	lock, err := tryCreate(path)
	if err != nil {
		// A second create-race loser after reclaiming a stale lock is
		// treated the same as genuine contention: fail fast rather than
		// loop.
		if os.IsExist(err) {
			existing, readErr := readInfo(path)
			if readErr == nil {
				return nil, &ErrHeldByPeer{Peer: existing}
			}
		}
		return nil, orcherr.LockError(fmt.Sprintf("creating lock file %s after reclaiming stale lock", path)).Build()
	}
	return lock, nil
}

func tryCreate(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info := Info{
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		Host:      hostname(),
		Program:   programIdentity(),
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		return nil, err
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file. Calling it on a nil *Lock is a no-op.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return os.Remove(l.path)
}

func readInfo(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, err
	}
	return info, nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func programIdentity() string {
	exe, err := os.Executable()
	if err != nil {
		return os.Args[0]
	}
	return exe
}

// isLive reports whether info's PID names a running process belonging to
// the same program. A lock whose program field no longer matches the
// current executable is never considered live, even if that PID happens to
// be in use by an unrelated process.
func isLive(info Info) bool {
	if info.Program != programIdentity() {
		return false
	}
	return processAlive(info.PID)
}
