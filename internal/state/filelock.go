// Package state implements the State Store: an embedded SQLite database
// tracking documents, chunks and conversion events so re-ingestion can be
// incremental and idempotent.
package state

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is a process-wide advisory lock on the state database file,
// adapted directly from the teacher's embed.FileLock: one corpuskit ingest
// process may hold the lock on a workspace's state database at a time, so
// two concurrent `corpuskit ingest` invocations against the same project
// fail fast rather than interleave writes.
type FileLock struct {
	flock *flock.Flock
	path  string
}

// NewFileLock creates a lock file alongside the state database at dbPath.
func NewFileLock(dbPath string) *FileLock {
	path := dbPath + ".lock"
	return &FileLock{flock: flock.New(path), path: path}
}

// TryLock attempts to acquire the lock without blocking.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, err
	}
	return l.flock.TryLock()
}

// Unlock releases the lock. Safe to call when not locked.
func (l *FileLock) Unlock() error {
	return l.flock.Unlock()
}

// Path returns the lock file's path.
func (l *FileLock) Path() string { return l.path }

// IsLocked reports whether this instance currently holds the lock.
func (l *FileLock) IsLocked() bool { return l.flock.Locked() }
