package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal and come with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("no config file, using defaults", slog.String("path", path))
		return DefaultConfig(), nil
	}

	logger.Debug("loading config file", slog.String("path", path))

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns a fully parsed configuration ready for use.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	return resolveAt(env, cli, time.Now(), logger)
}

// resolveAt is Resolve with an explicit "today" for the default end date.
func resolveAt(env EnvOverrides, cli CLIOverrides, now time.Time, logger *slog.Logger) (*Resolved, error) {
	// 1. Config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Config file (defaults if absent)
	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, err
	}

	// 3. Environment
	if env.BackupDir != "" {
		cfg.BackupDir = env.BackupDir
	}

	// 4. CLI flags
	applyCLI(cfg, cli)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	resolved, err := finalize(cfg, now)
	if err != nil {
		return nil, err
	}

	resolved.ConfigPath = cfgPath

	return resolved, nil
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.BackupDir != nil {
		cfg.BackupDir = *cli.BackupDir
	}

	if cli.StartDate != nil {
		cfg.StartDate = *cli.StartDate
	}

	if cli.EndDate != nil {
		cfg.EndDate = *cli.EndDate
	}

	if cli.LogConsole != nil {
		cfg.LogConsole = *cli.LogConsole
	}

	if cli.LogFile != nil {
		cfg.LogFile = *cli.LogFile
	}

	if cli.LogLevel != nil {
		cfg.LogLevel = *cli.LogLevel
	}
}

// finalize converts a validated Config into typed values. now supplies the
// default end date.
func finalize(cfg *Config, now time.Time) (*Resolved, error) {
	backupDir, err := absPath(cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("backup_dir: %w", err)
	}

	start, err := ParseDate(cfg.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}

	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	if cfg.EndDate != "" {
		if end, err = ParseDate(cfg.EndDate); err != nil {
			return nil, fmt.Errorf("end_date: %w", err)
		}
	}

	if end.Before(start) {
		return nil, fmt.Errorf("end_date: %s is before start_date %s", end.Format(DateLayout), cfg.StartDate)
	}

	credentials := DefaultCredentialsPath()
	if cfg.CredentialsFile != "" {
		if credentials, err = absPath(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("credentials_file: %w", err)
		}
	}

	logPath := DefaultLogPath()
	if cfg.LogPath != "" {
		if logPath, err = absPath(cfg.LogPath); err != nil {
			return nil, fmt.Errorf("log_path: %w", err)
		}
	}

	// Validate has already accepted these.
	level, _ := ParseLogLevel(cfg.LogLevel)
	maxSize, _ := ParseByteSize(cfg.LogMaxSize)
	connectTimeout, _ := time.ParseDuration(cfg.ConnectTimeout)

	return &Resolved{
		BackupDir:       backupDir,
		StateDir:        joinPath(backupDir, StateDirName),
		Start:           start,
		End:             end,
		ConvertedDir:    cfg.ConvertedDir,
		CredentialsFile: credentials,
		TokenPath:       DefaultTokenPath(),
		LogConsole:      cfg.LogConsole,
		LogFile:         cfg.LogFile,
		LogLevel:        level,
		LogPath:         logPath,
		LogFormat:       cfg.LogFormat,
		LogMaxSize:      maxSize,
		LogMaxBackups:   cfg.LogMaxBackups,
		ConnectTimeout:  connectTimeout,
		MaxRetries:      cfg.MaxRetries,
	}, nil
}
