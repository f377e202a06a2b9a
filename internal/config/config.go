// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for gdrive-backup. It supports a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags) and produces a fully typed Resolved value for the commands.
package config

import (
	"log/slog"
	"time"
)

// Config is the top-level configuration structure parsed from a TOML file.
// All keys are flat; the embedded structs only group related settings.
type Config struct {
	BackupConfig
	LoggingConfig
	NetworkConfig
}

// BackupConfig controls what is backed up and where.
type BackupConfig struct {
	BackupDir       string `toml:"backup_dir"`
	StartDate       string `toml:"start_date"` // YYYY-MM-DD, inclusive
	EndDate         string `toml:"end_date"`   // YYYY-MM-DD, inclusive; empty = today
	ConvertedDir    string `toml:"converted_dir"`
	CredentialsFile string `toml:"credentials_file"`
}

// LoggingConfig controls the console and file log sinks. Both are off by
// default; a run with neither enabled logs nothing.
type LoggingConfig struct {
	LogConsole    bool   `toml:"log_console"`
	LogFile       bool   `toml:"log_file"`
	LogLevel      string `toml:"log_level"`
	LogPath       string `toml:"log_path"`
	LogFormat     string `toml:"log_format"`
	LogMaxSize    string `toml:"log_max_size"`
	LogMaxBackups int    `toml:"log_max_backups"`
}

// NetworkConfig controls the HTTP client used for Drive requests.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	MaxRetries     int    `toml:"max_retries"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value", so --no-log-file can turn off a
// sink the config file enabled.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	BackupDir  *string // --backup-dir
	StartDate  *string // --start-date
	EndDate    *string // --end-date
	LogConsole *bool   // --log-console / --no-log-console
	LogFile    *bool   // --log-file / --no-log-file
	LogLevel   *string // --log-level
}

// Resolved is the final configuration after the override chain, with every
// value parsed and every path expanded to an absolute path.
type Resolved struct {
	ConfigPath string

	BackupDir       string
	StateDir        string // <BackupDir>/.gdrive-backup
	Start           time.Time
	End             time.Time // inclusive calendar day
	ConvertedDir    string
	CredentialsFile string
	TokenPath       string

	LogConsole    bool
	LogFile       bool
	LogLevel      slog.Level
	LogPath       string
	LogFormat     string
	LogMaxSize    int64
	LogMaxBackups int

	ConnectTimeout time.Duration
	MaxRetries     int
}

// StateDBPath is the metadata database location.
func (r *Resolved) StateDBPath() string {
	return joinPath(r.StateDir, stateDBFileName)
}

// LockPath is the lock file guarding the backup directory against concurrent
// runs. The holder writes its PID beside it.
func (r *Resolved) LockPath() string {
	return joinPath(r.StateDir, lockFileName)
}
