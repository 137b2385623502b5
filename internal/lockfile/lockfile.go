// Package lockfile holds an exclusive advisory lock on a file so that only one
// process at a time changes the sync state under a data directory.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Name is the lock file created in the data directory.
const Name = "stb-sync.lock"

// ErrLocked means another process holds the lock.
var ErrLocked = errors.New("lockfile: held by another process")

// Lock is a held lock. Release it with Unlock.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the lock in dir without waiting. It returns an error wrapping
// ErrLocked when another holder exists.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lockfile: mkdir: %w", err)
	}
	path := filepath.Join(dir, Name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open: %w", err)
	}
	if err := tryLock(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	// Holder PID, for operators; the lock itself is the flock.
	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "%d\n", os.Getpid())
	}
	return &Lock{f: f, path: path}, nil
}

func (l *Lock) Path() string { return l.path }

// Unlock releases the lock. The file stays so a later Acquire reuses it.
func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
