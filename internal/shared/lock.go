package shared

import (
	"fmt"

	"github.com/gofrs/flock"
)

// FileLock is a process-level advisory lock backed by a lock file.
//
// Only one holder can own the lock at a time; a second TryLock from any process fails
// immediately with [ErrSyncLocked].
type FileLock struct {
	path string
	fl   *flock.Flock
}

// NewFileLock creates a [FileLock] for path. The file is created on first lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, fl: flock.New(path)}
}

// TryLock acquires the lock without waiting.
func (l *FileLock) TryLock() error {
	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("%w: lock held at %s", ErrSyncLocked, l.path)
	}
	return nil
}

// Unlock releases the lock. Calling it without holding the lock is a no-op.
func (l *FileLock) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.path, err)
	}
	return nil
}
