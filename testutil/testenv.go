// Package testutil locates and installs the live Google account used by the
// e2e suite. The account lives in .testdata/ at the module root: the OAuth
// client secrets downloaded from the Google Cloud console and a token minted
// by cmd/integration-bootstrap.
package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// File names shared by .testdata/ and the per-user config directory.
const (
	CredentialsFileName = "credentials.json"
	TokenFileName       = "token.json"
)

// Environment overrides for the live backup window, as YYYY-MM-DD.
const (
	WindowStartEnv = "GDRIVE_BACKUP_E2E_START"
	WindowEndEnv   = "GDRIVE_BACKUP_E2E_END"

	defaultWindow = 14 * 24 * time.Hour
	dateLayout    = "2006-01-02"
	secretPerms   = 0o600
)

// ErrNoTestAccount means .testdata/ lacks the credentials or the token.
var ErrNoTestAccount = errors.New("testutil: no test account in .testdata")

// Account is the test account's files on disk.
type Account struct {
	Dir string
}

// ModuleRoot returns the nearest directory at or above the working
// directory that holds go.mod.
func ModuleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("testutil: go.mod not found above working directory")
		}

		dir = parent
	}
}

// LoadEnv applies moduleRoot/.env without overriding variables already set.
// A missing file is fine; CI sets the variables directly.
func LoadEnv(moduleRoot string) error {
	err := godotenv.Load(filepath.Join(moduleRoot, ".env"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}

// FindAccount checks moduleRoot/.testdata for both account files.
func FindAccount(moduleRoot string) (Account, error) {
	dir := filepath.Join(moduleRoot, ".testdata")

	for _, name := range []string{CredentialsFileName, TokenFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return Account{}, fmt.Errorf("%w: %s missing from %s; run go run ./cmd/integration-bootstrap",
				ErrNoTestAccount, name, dir)
		}
	}

	return Account{Dir: dir}, nil
}

// Install copies the account files into configDir, where the binary under
// test looks for them.
func (a Account) Install(configDir string) error {
	for _, name := range []string{CredentialsFileName, TokenFileName} {
		if err := copySecret(filepath.Join(a.Dir, name), filepath.Join(configDir, name)); err != nil {
			return err
		}
	}

	return nil
}

// KeepRefreshedToken copies the token the binary may have refreshed in
// configDir back into .testdata/, so the next suite starts from it.
func (a Account) KeepRefreshedToken(configDir string) error {
	src := filepath.Join(configDir, TokenFileName)
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return copySecret(src, filepath.Join(a.Dir, TokenFileName))
}

// Window returns the start and end dates for the live backup. The
// environment overrides take precedence; by default the window is the two
// weeks up to now, with the end left to the binary's default of today.
func Window(now time.Time) (start, end string) {
	start = os.Getenv(WindowStartEnv)
	if start == "" {
		start = now.Add(-defaultWindow).Format(dateLayout)
	}

	return start, os.Getenv(WindowEndEnv)
}

func copySecret(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("testutil: reading %s: %w", src, err)
	}

	if err := os.WriteFile(dst, data, secretPerms); err != nil {
		return fmt.Errorf("testutil: writing %s: %w", dst, err)
	}

	return nil
}
