package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "gdrive-backup"

// File and directory names.
const (
	configFileName      = "config.toml"
	tokenFileName       = "token.json"
	credentialsFileName = "credentials.json"
	logFileName         = "gdrive_backup.log"
	stateDBFileName     = "state.db"
	lockFileName        = "backup.lock"

	// StateDirName is the directory inside the backup root holding the
	// metadata database and lock file.
	StateDirName = ".gdrive-backup"
)

// DefaultConfigDir holds the config file, the OAuth client secrets and
// the saved token: $XDG_CONFIG_HOME/gdrive-backup on Linux,
// ~/Library/Application Support/gdrive-backup on macOS.
func DefaultConfigDir() string {
	return platformDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir holds log files: $XDG_DATA_HOME/gdrive-backup on Linux.
// macOS keeps config and data together.
func DefaultDataDir() string {
	return platformDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// platformDir resolves the application directory under an XDG base. The
// variable is honored on Linux only; homeRel is the base's usual location
// relative to the home directory. Returns "" when there is no home.
func platformDir(xdgVar, homeRel string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	if runtime.GOOS == platformDarwin {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	base := filepath.Join(home, homeRel)
	if runtime.GOOS == platformLinux {
		base = xdgBase(xdgVar, base)
	}

	return filepath.Join(base, appName)
}

func xdgBase(envVar, fallback string) string {
	// XDG requires absolute paths; relative values are ignored.
	if xdg := os.Getenv(envVar); filepath.IsAbs(xdg) {
		return xdg
	}

	return fallback
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	return inDir(DefaultConfigDir(), configFileName)
}

// DefaultTokenPath returns where the OAuth token is saved.
func DefaultTokenPath() string {
	return inDir(DefaultConfigDir(), tokenFileName)
}

// DefaultCredentialsPath returns where the OAuth client secrets are expected.
func DefaultCredentialsPath() string {
	return inDir(DefaultConfigDir(), credentialsFileName)
}

// DefaultLogPath returns the default log file location.
func DefaultLogPath() string {
	return inDir(DefaultDataDir(), logFileName)
}

func inDir(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}

func joinPath(dir, name string) string {
	return filepath.Join(dir, name)
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// absPath expands a tilde and makes path absolute relative to the working
// directory.
func absPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	return filepath.Abs(expandTilde(path))
}
