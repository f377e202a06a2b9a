package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tonimelisma/gdrive-backup/internal/logging"
)

// Validation range constants.
const (
	minConnectTimeout = 1 * time.Second
	maxMaxRetries     = 20
	minLogMaxSize     = 1024

	// DateLayout is the format of start_date, end_date and their flags.
	DateLayout = "2006-01-02"
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateBackup(&cfg.BackupConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)

	return errors.Join(errs...)
}

func validateBackup(b *BackupConfig) []error {
	var errs []error

	if strings.TrimSpace(b.BackupDir) == "" {
		errs = append(errs, errors.New("backup_dir: must not be empty"))
	}

	start, startErr := ParseDate(b.StartDate)
	if startErr != nil {
		errs = append(errs, fmt.Errorf("start_date: %w", startErr))
	}

	if b.EndDate != "" {
		end, endErr := ParseDate(b.EndDate)

		switch {
		case endErr != nil:
			errs = append(errs, fmt.Errorf("end_date: %w", endErr))
		case startErr == nil && end.Before(start):
			errs = append(errs, fmt.Errorf("end_date: %s is before start_date %s", b.EndDate, b.StartDate))
		}
	}

	errs = append(errs, validateConvertedDir(b.ConvertedDir)...)

	return errs
}

// validateConvertedDir requires a single path component that does not
// collide with the state directory.
func validateConvertedDir(dir string) []error {
	switch {
	case strings.TrimSpace(dir) == "":
		return []error{errors.New("converted_dir: must not be empty")}
	case strings.ContainsAny(dir, `/\`), dir == ".", dir == "..":
		return []error{fmt.Errorf("converted_dir: must be a single directory name, got %q", dir)}
	case dir == StateDirName:
		return []error{fmt.Errorf("converted_dir: %q is reserved", dir)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if _, err := ParseLogLevel(l.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of text, json; got %q", l.LogFormat))
	}

	size, err := ParseByteSize(l.LogMaxSize)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("log_max_size: %w", err))
	case size < minLogMaxSize:
		errs = append(errs, fmt.Errorf("log_max_size: must be at least %d bytes, got %q", minLogMaxSize, l.LogMaxSize))
	}

	if l.LogMaxBackups < 0 {
		errs = append(errs, fmt.Errorf("log_max_backups: must be >= 0, got %d", l.LogMaxBackups))
	}

	return errs
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	d, err := time.ParseDuration(n.ConnectTimeout)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("connect_timeout: invalid duration %q: %w", n.ConnectTimeout, err))
	case d < minConnectTimeout:
		errs = append(errs, fmt.Errorf("connect_timeout: must be >= %s, got %s", minConnectTimeout, d))
	}

	if n.MaxRetries < 0 || n.MaxRetries > maxMaxRetries {
		errs = append(errs, fmt.Errorf("max_retries: must be between 0 and %d, got %d", maxMaxRetries, n.MaxRetries))
	}

	return errs
}

// ParseLogLevel maps a level name to a slog level. "warning" and "warn"
// are synonyms; "critical" maps to logging.LevelCritical.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warning", "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return logging.LevelCritical, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warning, error, critical; got %q", level)
	}
}

// ParseDate parses a YYYY-MM-DD calendar date in the local time zone.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}

	return t, nil
}

// ParseByteSize reads a size such as "10MiB", "5 MB" or "2048". SI and IEC
// suffixes are both accepted; a bare number is bytes.
func ParseByteSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}

	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q is too large", s)
	}

	return int64(n), nil
}
