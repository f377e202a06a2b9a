package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-backup/internal/config"
	"github.com/tonimelisma/gdrive-backup/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the raw persistent flag values. Only flags the user set
// explicitly are forwarded to config resolution.
type CLIFlags struct {
	ConfigPath   string
	BackupDir    string
	StartDate    string
	EndDate      string
	LogConsole   bool
	NoLogConsole bool
	LogFile      bool
	NoLogFile    bool
	LogLevel     string
	Quiet        bool
}

// CLIContext is built once per invocation by the root pre-run and carried on
// the command context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger

	logCloser io.Closer
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext installed by the root pre-run.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("cli context not initialized")
	}

	return cc
}

// Statusf prints a status message to stderr unless --quiet is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// Close flushes the log file, if any.
func (cc *CLIContext) Close() {
	if cc.logCloser != nil {
		cc.logCloser.Close()
		cc.logCloser = nil
	}
}

// newRootCmd builds the root command. Invoked without a subcommand it runs
// a backup.
func newRootCmd(cc *CLIContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gdrive-backup",
		Short: "Back up Google Drive to a local directory",
		Long: `Copy every Google Drive file modified within a date window into a local
directory that mirrors the Drive folder tree.

Files are never deleted locally. When a file changes on Drive the previous
local copy is kept as "name.v01.ext" and the new content takes its place.
Google Docs, Sheets, Slides and Drawings are exported under "Converted Files".`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadCLIContext(cmd, cc)
		},
		RunE: runBackup,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&cc.Flags.ConfigPath, "config", "", "config file path")
	f.StringVar(&cc.Flags.BackupDir, "backup-dir", "", "local backup directory")
	f.StringVar(&cc.Flags.StartDate, "start-date", "", "first modification date to back up (YYYY-MM-DD)")
	f.StringVar(&cc.Flags.EndDate, "end-date", "", "last modification date to back up (YYYY-MM-DD, default today)")
	f.BoolVar(&cc.Flags.LogConsole, "log-console", false, "log to the console")
	f.BoolVar(&cc.Flags.NoLogConsole, "no-log-console", false, "do not log to the console")
	f.BoolVar(&cc.Flags.LogFile, "log-file", false, "log to the rotating log file")
	f.BoolVar(&cc.Flags.NoLogFile, "no-log-file", false, "do not log to the log file")
	f.StringVar(&cc.Flags.LogLevel, "log-level", "", "log level: debug, info, warning, error, critical")
	f.BoolVarP(&cc.Flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("log-console", "no-log-console")
	cmd.MarkFlagsMutuallyExclusive("log-file", "no-log-file")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionsCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadCLIContext resolves the configuration, builds the logger and installs
// cc on the command context.
func loadCLIContext(cmd *cobra.Command, cc *CLIContext) error {
	bootstrap := bootstrapLogger(cc.Flags)

	resolved, err := config.Resolve(config.ReadEnvOverrides(bootstrap), cliOverrides(cmd, cc.Flags), bootstrap)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closer, err := logging.New(logging.Options{
		Console:    resolved.LogConsole,
		File:       resolved.LogFile,
		FilePath:   resolved.LogPath,
		Format:     resolved.LogFormat,
		MaxSize:    resolved.LogMaxSize,
		MaxBackups: resolved.LogMaxBackups,
		Level:      resolved.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	cc.Cfg = resolved
	cc.Logger = logger
	cc.logCloser = closer

	logger.Debug("config resolved",
		slog.String("config_path", resolved.ConfigPath),
		slog.String("backup_dir", resolved.BackupDir),
	)

	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

	return nil
}

// cliOverrides converts explicitly set flags into config overrides.
func cliOverrides(cmd *cobra.Command, flags CLIFlags) config.CLIOverrides {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}
	changed := cmd.Flags().Changed

	if changed("backup-dir") {
		cli.BackupDir = &flags.BackupDir
	}

	if changed("start-date") {
		cli.StartDate = &flags.StartDate
	}

	if changed("end-date") {
		cli.EndDate = &flags.EndDate
	}

	if changed("log-level") {
		cli.LogLevel = &flags.LogLevel
	}

	cli.LogConsole = pairedBool(changed("log-console"), changed("no-log-console"))
	cli.LogFile = pairedBool(changed("log-file"), changed("no-log-file"))

	return cli
}

// pairedBool resolves a --x/--no-x flag pair into an optional override.
func pairedBool(on, off bool) *bool {
	var v bool

	switch {
	case on:
		v = true
	case off:
		v = false
	default:
		return nil
	}

	return &v
}

// bootstrapLogger is used before the config is known. It only surfaces
// warnings, and only when console logging was requested on the command line.
func bootstrapLogger(flags CLIFlags) *slog.Logger {
	if !flags.LogConsole {
		return slog.New(slog.DiscardHandler)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
