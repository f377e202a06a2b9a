package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-backup/internal/backup"
	"github.com/tonimelisma/gdrive-backup/internal/config"
	"github.com/tonimelisma/gdrive-backup/internal/logging"
	"github.com/tonimelisma/gdrive-backup/internal/store"
)

// maxListedFailures caps the failures printed after a run; the rest are in
// the log.
const maxListedFailures = 20

func runBackup(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg
	logger := cc.Logger
	ctx, stop := watchInterrupts(cmd.Context(), cc)
	defer stop()

	lock, err := acquireRunLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.Open(ctx, cfg.StateDBPath(), logger)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := newDriveClient(ctx, cc, true)
	if err != nil {
		return err
	}

	window := backup.DateWindow(cfg.Start, cfg.End)

	logger.Info("starting backup",
		slog.String("backup_dir", cfg.BackupDir),
		slog.String("start_date", cfg.Start.Format(config.DateLayout)),
		slog.String("end_date", cfg.End.Format(config.DateLayout)),
	)

	cc.Statusf("Backing up files modified %s to %s into %s\n",
		cfg.Start.Format(config.DateLayout), cfg.End.Format(config.DateLayout), cfg.BackupDir)

	driver := backup.NewDriver(client, st, backup.Options{
		Root:          cfg.BackupDir,
		Window:        window,
		ConvertedDir:  cfg.ConvertedDir,
		StateDir:      config.StateDirName,
		VerifyRetries: -1,
	}, logger)

	summary, runErr := driver.Run(ctx)
	if summary != nil && !cc.Flags.Quiet {
		printSummary(cmd.ErrOrStderr(), summary)
	}

	if runErr != nil && interrupted(ctx) {
		logger.Warn("backup interrupted", slog.String("error", runErr.Error()))
		return fmt.Errorf("backup %w; rerun to continue", errInterrupted)
	}

	if runErr != nil {
		logger.Log(ctx, logging.LevelCritical, "backup aborted", slog.String("error", runErr.Error()))

		if errors.Is(runErr, backup.ErrAuthentication) {
			return fmt.Errorf("%w; run 'gdrive-backup login' to sign in again", runErr)
		}

		return fmt.Errorf("backup aborted: %w", runErr)
	}

	return nil
}

// printSummary writes the one-line run summary followed by the first few
// per-file failures.
func printSummary(w io.Writer, s *backup.Summary) {
	fmt.Fprintf(w, "Backup %s: %s\n", s.RunID, s)

	if len(s.Errors) == 0 {
		return
	}

	fmt.Fprintf(w, "\n%d file(s) failed and will be retried next run:\n", len(s.Errors))

	for i, ee := range s.Errors {
		if i == maxListedFailures {
			fmt.Fprintf(w, "  ... and %d more (see the log)\n", len(s.Errors)-maxListedFailures)
			break
		}

		fmt.Fprintf(w, "  %s\n", ee)
	}
}
