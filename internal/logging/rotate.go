package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	logFilePerms = 0o600
	logDirPerms  = 0o700
)

// rotatingWriter appends to path and, once the next write would take the
// file past maxSize, shifts path.1 .. path.N up by one and starts afresh.
// With maxBackups zero the file is truncated instead. A non-positive maxSize
// disables rotation.
type rotatingWriter struct {
	mu         sync.Mutex
	path       string
	maxSize    int64
	maxBackups int
	file       *os.File
	size       int64
}

func newRotatingWriter(path string, maxSize int64, maxBackups int) (*rotatingWriter, error) {
	if path == "" {
		return nil, errors.New("logging: log file path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), logDirPerms); err != nil {
		return nil, fmt.Errorf("logging: creating log directory: %w", err)
	}

	w := &rotatingWriter{path: path, maxSize: maxSize, maxBackups: maxBackups}
	if err := w.open(); err != nil {
		return nil, err
	}

	return w, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, fs.ErrClosed
	}

	if w.maxSize > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)

	return n, err
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}

	err := w.file.Close()
	w.file = nil

	return err
}

func (w *rotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFilePerms)
	if err != nil {
		return fmt.Errorf("logging: opening log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()

		return fmt.Errorf("logging: stat log file: %w", err)
	}

	w.file = f
	w.size = info.Size()

	return nil
}

func (w *rotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("logging: closing log file: %w", err)
	}

	w.file = nil

	if w.maxBackups == 0 {
		if err := os.Truncate(w.path, 0); err != nil {
			return fmt.Errorf("logging: truncating log file: %w", err)
		}

		return w.open()
	}

	// The oldest backup falls off the end.
	for i := w.maxBackups - 1; i >= 1; i-- {
		if err := renameIfExists(backupName(w.path, i), backupName(w.path, i+1)); err != nil {
			return err
		}
	}

	if err := renameIfExists(w.path, backupName(w.path, 1)); err != nil {
		return err
	}

	return w.open()
}

func backupName(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

func renameIfExists(from, to string) error {
	err := os.Rename(from, to)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("logging: rotating %s: %w", from, err)
	}

	return nil
}
