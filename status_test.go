package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdrive-backup/internal/config"
	"github.com/tonimelisma/gdrive-backup/internal/store"
)

// seedStore records two versions of one file, one other file and a
// finished run under backupDir.
func seedStore(t *testing.T, backupDir string) {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(backupDir, config.StateDirName, "state.db")

	st, err := store.Open(ctx, dbPath, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer st.Close()

	modified := time.Date(2023, 4, 1, 9, 0, 0, 0, time.UTC)

	_, err = st.RecordVersion(ctx, store.NewVersion{
		RemoteID: "file-budget", Path: "Reports/Budget.xlsx", Name: "Budget.xlsx",
		MimeType: "application/octet-stream", ModifiedAt: modified, Size: 1500,
	})
	require.NoError(t, err)

	_, err = st.RecordVersion(ctx, store.NewVersion{
		RemoteID: "file-budget", Path: "Reports/Budget.xlsx", Name: "Budget.xlsx",
		MimeType: "application/octet-stream", ModifiedAt: modified.Add(time.Hour), Size: 2500,
		SupersededPath: "Reports/Budget.v01.xlsx",
	})
	require.NoError(t, err)

	_, err = st.RecordVersion(ctx, store.NewVersion{
		RemoteID: "file-notes", Path: "notes.txt", Name: "notes.txt",
		MimeType: "text/plain", ModifiedAt: modified, Size: 10,
	})
	require.NoError(t, err)

	require.NoError(t, st.UpsertFolder(ctx, store.Folder{RemoteID: "folder-reports", Name: "Reports", Path: "Reports"}))

	windowStart := time.Date(2023, 1, 1, 0, 0, 0, 0, time.Local)
	windowEnd := time.Date(2023, 12, 31, 0, 0, 0, 0, time.Local).AddDate(0, 0, 1)

	require.NoError(t, st.BeginRun(ctx, "run-1", windowStart, windowEnd))
	require.NoError(t, st.FinishRun(ctx, "run-1", store.RunCounts{Fetched: 3, Bytes: 4010}, store.RunCompleted))
}

func TestStatus_NoBackupYet(t *testing.T) {
	_, backupDir := testEnv(t)

	out, err := execute(t, "status", "--backup-dir", backupDir)
	require.NoError(t, err)

	assert.Contains(t, out, "Account:          -")
	assert.Contains(t, out, "Token:            not logged in")
	assert.Contains(t, out, "No backup has run yet.")
	assert.NoDirExists(t, filepath.Join(backupDir, config.StateDirName), "status must not create state")
}

func TestStatus_ReportsTrackedFilesAndRuns(t *testing.T) {
	_, backupDir := testEnv(t)
	seedStore(t, backupDir)

	out, err := execute(t, "status", "--backup-dir", backupDir, "--files")
	require.NoError(t, err)

	assert.Contains(t, out, "Tracked:          2 files (2.5 kB), 1 folders")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "2023-01-01..2023-12-31")
	assert.Contains(t, out, "4.0 kB")
	assert.Contains(t, out, "Reports/Budget.xlsx")
	assert.Contains(t, out, "notes.txt")
	assert.NotContains(t, out, "Budget.v01.xlsx", "only current versions are listed")
}

func TestStatus_ShowsRunningBackup(t *testing.T) {
	_, backupDir := testEnv(t)
	seedStore(t, backupDir)

	lock, err := acquireRunLock(filepath.Join(backupDir, config.StateDirName, "backup.lock"))
	require.NoError(t, err)
	defer lock.Release()

	out, err := execute(t, "status", "--backup-dir", backupDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Running:          backup in progress (PID ")
}

func TestVersions_ListsHistory(t *testing.T) {
	_, backupDir := testEnv(t)
	seedStore(t, backupDir)

	out, err := execute(t, "versions", "file-budget", "--backup-dir", backupDir)
	require.NoError(t, err)

	assert.Contains(t, out, "Reports/Budget.v01.xlsx")
	assert.Contains(t, out, "Reports/Budget.xlsx")
	assert.Contains(t, out, "1.5 kB")
	assert.Contains(t, out, "2.5 kB")
}

func TestVersions_UnknownID(t *testing.T) {
	_, backupDir := testEnv(t)
	seedStore(t, backupDir)

	_, err := execute(t, "versions", "file-missing", "--backup-dir", backupDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no versions recorded")
}

func TestVersions_NoBackupYet(t *testing.T) {
	_, backupDir := testEnv(t)

	_, err := execute(t, "versions", "file-budget", "--backup-dir", backupDir)
	require.Error(t, err)
}

func TestFormatWindow(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	end := time.Date(2024, 3, 8, 0, 0, 0, 0, time.Local)

	assert.Equal(t, "2024-03-01..2024-03-07", formatWindow(start, end))
	assert.Equal(t, "-..-", formatWindow(time.Time{}, time.Time{}))
}

func TestPrintRecords(t *testing.T) {
	var buf bytes.Buffer

	printRecords(&buf, []store.Record{{RemoteID: "id-1", Version: 2, Size: 0, Path: "a.txt"}}, time.Now())

	assert.Contains(t, buf.String(), "REMOTE ID")
	assert.Contains(t, buf.String(), "id-1")
	assert.Contains(t, buf.String(), "a.txt")
}
