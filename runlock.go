package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

const stateDirPerms = 0o700

// errAlreadyRunning is returned when another backup holds the run lock.
var errAlreadyRunning = errors.New("another backup is already running")

// runLock is the exclusive lock one backup run holds on its backup
// directory. The lock file itself is never removed: deleting it while
// another process waits on the old inode would let two runs in.
type runLock struct {
	lock    *flock.Flock
	pidPath string
}

// holderPIDPath is where the lock holder records its PID.
func holderPIDPath(lockPath string) string {
	return strings.TrimSuffix(lockPath, filepath.Ext(lockPath)) + ".pid"
}

// acquireRunLock takes the run lock at lockPath without blocking. When
// another run holds it the error wraps errAlreadyRunning and names the
// holder's PID if known.
func acquireRunLock(lockPath string) (*runLock, error) {
	if lockPath == "" {
		return nil, errors.New("run lock path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(lockPath), stateDirPerms); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	l := &runLock{lock: flock.New(lockPath), pidPath: holderPIDPath(lockPath)}

	locked, err := l.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", lockPath, err)
	}

	if !locked {
		if pid, readErr := readHolderPID(l.pidPath); readErr == nil {
			return nil, fmt.Errorf("%w (PID %d, lock %s)", errAlreadyRunning, pid, lockPath)
		}

		return nil, fmt.Errorf("%w (lock %s)", errAlreadyRunning, lockPath)
	}

	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(l.pidPath, []byte(pid), 0o600); err != nil {
		l.lock.Unlock()
		return nil, fmt.Errorf("recording PID in %s: %w", l.pidPath, err)
	}

	return l, nil
}

// Release drops the PID record and the lock.
func (l *runLock) Release() {
	os.Remove(l.pidPath)
	l.lock.Unlock()
}

// runningBackupPID reports the PID of a backup currently holding the lock
// at lockPath. It never creates the lock file.
func runningBackupPID(lockPath string) (int, bool) {
	if _, err := os.Stat(lockPath); err != nil {
		return 0, false
	}

	check := flock.New(lockPath)

	locked, err := check.TryLock()
	if err != nil {
		return 0, false
	}

	if locked {
		check.Unlock()
		return 0, false
	}

	pid, err := readHolderPID(holderPIDPath(lockPath))
	if err != nil {
		return 0, true
	}

	return pid, true
}

func readHolderPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed PID in %s: %w", path, err)
	}

	return pid, nil
}
