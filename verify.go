package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-backup/internal/backup"
)

// errVerifyMismatch makes verify exit non-zero when files do not match.
var errVerifyMismatch = errors.New("backup verification found mismatches")

func newVerifyCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check backed-up files against the metadata database",
		Long: `Check that every recorded version, current and superseded, is present
in the backup directory with the recorded size and, for regular files, the
MD5 checksum Drive reported. Works offline and never modifies anything.

Exits non-zero if any file is missing or differs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")

	return cmd
}

func runVerify(cmd *cobra.Command, asJSON bool) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	st, err := openExistingStore(ctx, cc)
	if err != nil {
		return err
	}

	if st == nil {
		return errors.New("no backup has run yet")
	}
	defer st.Close()

	records, err := st.AllVersions(ctx)
	if err != nil {
		return err
	}

	report, err := backup.Verify(ctx, records, cc.Cfg.BackupDir, cc.Logger)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()

	if asJSON {
		if err := printVerifyJSON(w, report); err != nil {
			return err
		}
	} else {
		printVerifyTable(w, report)
	}

	if len(report.Mismatches) > 0 {
		return fmt.Errorf("%w: %d of %d files", errVerifyMismatch, len(report.Mismatches), len(records))
	}

	return nil
}

func printVerifyJSON(w io.Writer, report *backup.VerifyReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printVerifyTable(w io.Writer, report *backup.VerifyReport) {
	fmt.Fprintf(w, "Verified: %d files\n", report.Verified)

	if len(report.Mismatches) == 0 {
		fmt.Fprintln(w, "All files verified successfully.")
		return
	}

	fmt.Fprintf(w, "Mismatches: %d\n\n", len(report.Mismatches))

	headers := []string{"STATUS", "EXPECTED", "ACTUAL", "PATH"}
	rows := make([][]string, len(report.Mismatches))

	for i := range report.Mismatches {
		m := &report.Mismatches[i]
		rows[i] = []string{m.Status, m.Expected, m.Actual, m.Path}
	}

	printTable(w, headers, rows)
}
