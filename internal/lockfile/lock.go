// Package lockfile guards a sync pass against a second casesync process
// working from the same state file. The lock is an advisory file lock held
// for the life of the pass; the kernel drops it if the process dies.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrLockBusy is returned when another process holds the lock.
var ErrLockBusy = errors.New("lock already held by another process")

// Lock is a held run lock.
type Lock struct {
	path string
	f    *os.File
}

// PathFor returns the lock file that guards the given state file.
func PathFor(stateFile string) string {
	return stateFile + ".lock"
}

// TryAcquire takes the lock without waiting. When another process holds it
// the returned error wraps ErrLockBusy and names the holder's pid if known.
func TryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 - path derives from the configured state file
	if err != nil {
		return nil, fmt.Errorf("open lock %s: %w", path, err)
	}
	if err := lockExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLockBusy) {
			if pid := readPID(path); pid > 0 {
				return nil, fmt.Errorf("%s: %w (pid %d)", path, ErrLockBusy, pid)
			}
			return nil, fmt.Errorf("%s: %w", path, ErrLockBusy)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	// The pid is informational only.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{path: path, f: f}, nil
}

// Release drops the lock. It is safe to call on a nil or released lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	_ = f.Truncate(0)
	unlockErr := unlock(f)
	closeErr := f.Close()
	return errors.Join(unlockErr, closeErr)
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

func readPID(path string) int {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
