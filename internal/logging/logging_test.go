package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

func TestNew_NoSinksDiscards(t *testing.T) {
	logger, closer, err := New(Options{Level: slog.LevelDebug})
	require.NoError(t, err)
	defer closer.Close()

	assert.False(t, logger.Enabled(t.Context(), LevelCritical))
}

func TestNew_FileSinkRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gdrive_backup.log")

	logger, closer, err := New(Options{File: true, FilePath: path, Level: slog.LevelWarn, MaxSize: 1 << 20})
	require.NoError(t, err)

	logger.Info("not written")
	logger.Warn("disk nearly full", slog.String("dir", "/backup"))
	require.NoError(t, closer.Close())

	out := readFile(t, path)
	assert.NotContains(t, out, "not written")
	assert.Contains(t, out, "disk nearly full")
	assert.Contains(t, out, "dir=/backup")
	assert.Contains(t, out, "source=")
}

func TestNew_CriticalLevelName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.log")

	logger, closer, err := New(Options{File: true, FilePath: path, Format: "json", Level: slog.LevelInfo})
	require.NoError(t, err)

	logger.Log(t.Context(), LevelCritical, "run aborted")
	require.NoError(t, closer.Close())

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(readFile(t, path))), &rec))
	assert.Equal(t, "CRITICAL", rec["level"])
	assert.Equal(t, "run aborted", rec["msg"])
}

func TestNew_ConsoleAndFileFanOut(t *testing.T) {
	dir := t.TempDir()
	consolePath := filepath.Join(dir, "console.out")

	console, err := os.Create(consolePath)
	require.NoError(t, err)
	defer console.Close()

	filePath := filepath.Join(dir, "backup.log")

	logger, closer, err := New(Options{
		Console:    true,
		ConsoleOut: console,
		File:       true,
		FilePath:   filePath,
		Level:      slog.LevelInfo,
	})
	require.NoError(t, err)

	logger.With(slog.String("run", "r1")).Info("saved file", slog.String("path", "a.txt"))
	require.NoError(t, closer.Close())

	consoleOut := readFile(t, consolePath)
	assert.Contains(t, consoleOut, "saved file")
	assert.Contains(t, consoleOut, "run=r1")
	assert.NotContains(t, consoleOut, "\x1b[", "no colour when not a terminal")

	fileOut := readFile(t, filePath)
	assert.Contains(t, fileOut, "saved file")
	assert.Contains(t, fileOut, "run=r1")
	assert.Contains(t, fileOut, "path=a.txt")
}

func TestNew_EmptyFilePath(t *testing.T) {
	_, _, err := New(Options{File: true})
	require.Error(t, err)
}

func TestRotatingWriter_RotatesAndKeepsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.log")

	w, err := newRotatingWriter(path, 10, 2)
	require.NoError(t, err)

	for _, line := range []string{"aaaaaaaa\n", "bbbbbbbb\n", "cccccccc\n", "dddddddd\n"} {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())

	assert.Equal(t, "dddddddd\n", readFile(t, path))
	assert.Equal(t, "cccccccc\n", readFile(t, path+".1"))
	assert.Equal(t, "bbbbbbbb\n", readFile(t, path+".2"))
	assert.NoFileExists(t, path+".3")
}

func TestRotatingWriter_ZeroBackupsTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.log")

	w, err := newRotatingWriter(path, 10, 0)
	require.NoError(t, err)

	_, err = w.Write([]byte("first line\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, "second\n", readFile(t, path))
	assert.NoFileExists(t, path+".1")
}

func TestRotatingWriter_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))

	w, err := newRotatingWriter(path, 1024, 1)
	require.NoError(t, err)

	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, "old\nnew\n", readFile(t, path))

	_, err = w.Write([]byte("late\n"))
	assert.Error(t, err, "write after close")
}
