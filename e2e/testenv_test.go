//go:build e2e

package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tonimelisma/gdrive-backup/testutil"
)

// appName is the per-user directory name under XDG_CONFIG_HOME.
const appName = "gdrive-backup"

// realHomeDir is HOME before TestMain overrides it.
var realHomeDir string

// testAccount is the live account from the repo's .testdata/ directory.
var testAccount testutil.Account

// appConfigDir is the isolated config directory the binary reads.
var appConfigDir string

// setupIsolation points HOME and XDG directories at a temp root and copies
// the test credentials into it. The returned cleanup copies a refreshed
// token back to .testdata/ and removes the temp root.
func setupIsolation() func() {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot determine home dir: %v\n", err)
		os.Exit(1)
	}

	realHomeDir = home

	root, err := testutil.ModuleRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	if testAccount, err = testutil.FindAccount(root); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	os.Unsetenv("GDRIVE_BACKUP_CONFIG")
	os.Unsetenv("GDRIVE_BACKUP_DIR")

	tempRoot, err := os.MkdirTemp("", "gdrive-backup-e2e-isolation-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: creating isolation temp dir: %v\n", err)
		os.Exit(1)
	}

	tempHome := filepath.Join(tempRoot, "home")
	tempConfig := filepath.Join(tempRoot, "config")
	tempData := filepath.Join(tempRoot, "data")
	appConfigDir = filepath.Join(tempConfig, appName)

	for _, d := range []string{tempHome, tempData, appConfigDir} {
		if mkErr := os.MkdirAll(d, 0o700); mkErr != nil {
			fmt.Fprintf(os.Stderr, "FATAL: creating dir %s: %v\n", d, mkErr)
			os.Exit(1)
		}
	}

	os.Setenv("HOME", tempHome)
	os.Setenv("XDG_CONFIG_HOME", tempConfig)
	os.Setenv("XDG_DATA_HOME", tempData)

	if err := testAccount.Install(appConfigDir); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	verifyIsolation(tempRoot)

	fmt.Fprintf(os.Stderr, "E2E isolation: HOME=%s (credentials from .testdata/)\n", tempHome)

	return func() {
		if err := testAccount.KeepRefreshedToken(appConfigDir); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: cannot write refreshed token back: %v\n", err)
		}

		os.RemoveAll(tempRoot)
	}
}

// verifyIsolation crashes the process if a production path could leak into
// the run. Runs before m.Run so no test executes with broken isolation.
func verifyIsolation(tempRoot string) {
	crash := func(msg string) {
		fmt.Fprintf(os.Stderr, "FATAL: isolation check failed: %s\n", msg)
		os.Exit(1)
	}

	for _, v := range []string{"HOME", "XDG_DATA_HOME", "XDG_CONFIG_HOME"} {
		if val := os.Getenv(v); val == "" || !strings.HasPrefix(val, tempRoot) {
			crash(v + " not overridden to temp dir")
		}
	}

	if homeDir, _ := os.UserHomeDir(); !strings.HasPrefix(homeDir, tempRoot) {
		crash("UserHomeDir() returns " + homeDir + " (not under temp)")
	}
}

func TestIsolation_HomeOverridden(t *testing.T) {
	home, err := os.UserHomeDir()
	if assert.NoError(t, err) {
		assert.NotEqual(t, realHomeDir, home)
	}
}

func TestIsolation_CredentialsInTempDir(t *testing.T) {
	assert.NotContains(t, appConfigDir, realHomeDir)
	assert.FileExists(t, filepath.Join(appConfigDir, testutil.TokenFileName))
	assert.FileExists(t, filepath.Join(appConfigDir, testutil.CredentialsFileName))
}
