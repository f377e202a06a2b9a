package config

import (
	"log/slog"
	"os"
)

// Environment variable names for overrides.
const (
	EnvConfig    = "GDRIVE_BACKUP_CONFIG"
	EnvBackupDir = "GDRIVE_BACKUP_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // GDRIVE_BACKUP_CONFIG: override config file path
	BackupDir  string // GDRIVE_BACKUP_DIR: backup directory override
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	env := EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		BackupDir:  os.Getenv(EnvBackupDir),
	}

	if env.ConfigPath != "" || env.BackupDir != "" {
		logger.Debug("environment overrides",
			slog.String("config_path", env.ConfigPath),
			slog.String("backup_dir", env.BackupDir),
		)
	}

	return env
}
