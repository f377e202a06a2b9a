package main

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdrive-backup/internal/backup"
	"github.com/tonimelisma/gdrive-backup/internal/config"
	"github.com/tonimelisma/gdrive-backup/internal/gdrive"
)

func TestBackup_MissingCredentials(t *testing.T) {
	_, backupDir := testEnv(t)

	_, err := execute(t, "--backup-dir", backupDir, "-q")
	require.ErrorIs(t, err, gdrive.ErrNoCredentials)
	assert.Contains(t, err.Error(), "Google Cloud console")

	assert.NoFileExists(t, filepath.Join(backupDir, config.StateDirName, "backup.pid"), "lock released")

	_, running := runningBackupPID(filepath.Join(backupDir, config.StateDirName, "backup.lock"))
	assert.False(t, running)
}

func TestBackup_RefusesConcurrentRun(t *testing.T) {
	_, backupDir := testEnv(t)

	lock, err := acquireRunLock(filepath.Join(backupDir, config.StateDirName, "backup.lock"))
	require.NoError(t, err)
	defer lock.Release()

	_, err = execute(t, "--backup-dir", backupDir, "-q")
	require.ErrorIs(t, err, errAlreadyRunning)
}

func TestPrintSummary(t *testing.T) {
	s := &backup.Summary{
		RunID:    "run-1",
		Fetched:  2,
		Bytes:    2048,
		Skipped:  5,
		Failed:   1,
		Duration: 1500 * time.Millisecond,
		Errors: []*backup.EntryError{{
			Kind: backup.KindRemote, RemoteID: "file-x", Name: "x.pdf", Op: "fetch",
			Err: errors.New("gdrive: server error"),
		}},
	}

	var buf bytes.Buffer
	printSummary(&buf, s)

	out := buf.String()
	assert.Contains(t, out, "Backup run-1: 2 fetched (2.0 kB), 5 unchanged")
	assert.Contains(t, out, "1 file(s) failed and will be retried next run")
	assert.Contains(t, out, "fetch x.pdf (file-x)")
}

func TestPrintSummary_TruncatesFailureList(t *testing.T) {
	s := &backup.Summary{RunID: "run-2"}

	for i := range maxListedFailures + 5 {
		s.Errors = append(s.Errors, &backup.EntryError{
			Kind: backup.KindLocal, RemoteID: fmt.Sprintf("id-%d", i), Name: "f", Op: "write", Err: errors.New("disk full"),
		})
	}

	s.Failed = len(s.Errors)

	var buf bytes.Buffer
	printSummary(&buf, s)

	assert.Contains(t, buf.String(), "... and 5 more (see the log)")
	assert.NotContains(t, buf.String(), fmt.Sprintf("(id-%d)", maxListedFailures))
}
