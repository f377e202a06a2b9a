package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-backup/internal/config"
	"github.com/tonimelisma/gdrive-backup/internal/store"
	"github.com/tonimelisma/gdrive-backup/internal/tokenfile"
)

// defaultRecentRuns is how many runs status lists.
const defaultRecentRuns = 10

// Token state labels for status reporting.
const (
	tokenStateMissing = "not logged in"
	tokenStateExpired = "expired (refreshed on next use)"
	tokenStateValid   = "valid"
)

func newStatusCmd() *cobra.Command {
	var (
		runs      int
		showFiles bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the login, backed-up files and recent runs",
		Long: `Display the login state, how many files and folders the metadata
database tracks, and the most recent backup runs. Works offline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, runs, showFiles)
		},
	}

	cmd.Flags().IntVarP(&runs, "runs", "n", defaultRecentRuns, "number of recent runs to show")
	cmd.Flags().BoolVar(&showFiles, "files", false, "list the current version of every backed-up file")

	return cmd
}

func newVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <remote-id>",
		Short: "List every recorded version of one Drive file",
		Args:  cobra.ExactArgs(1),
		RunE:  runVersions,
	}
}

// openExistingStore opens the metadata database without creating one.
// Returns (nil, nil) when no backup has run yet.
func openExistingStore(ctx context.Context, cc *CLIContext) (*store.Store, error) {
	path := cc.Cfg.StateDBPath()

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	return store.Open(ctx, path, cc.Logger)
}

func runStatus(cmd *cobra.Command, runs int, showFiles bool) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	now := time.Now()

	printAccount(w, cc.Cfg, now)
	fmt.Fprintf(w, "Backup directory: %s\n", cc.Cfg.BackupDir)

	if pid, running := runningBackupPID(cc.Cfg.LockPath()); running {
		if pid > 0 {
			fmt.Fprintf(w, "Running:          backup in progress (PID %d)\n", pid)
		} else {
			fmt.Fprintln(w, "Running:          backup in progress")
		}
	}

	st, err := openExistingStore(ctx, cc)
	if err != nil {
		return err
	}

	if st == nil {
		fmt.Fprintln(w, "\nNo backup has run yet.")
		return nil
	}
	defer st.Close()

	current, err := st.AllCurrent(ctx)
	if err != nil {
		return err
	}

	folders, err := st.FolderCount(ctx)
	if err != nil {
		return err
	}

	var total int64
	for i := range current {
		total += current[i].Size
	}

	fmt.Fprintf(w, "Tracked:          %d files (%s), %d folders\n", len(current), formatSize(total), folders)

	recent, err := st.RecentRuns(ctx, runs)
	if err != nil {
		return err
	}

	if len(recent) > 0 {
		fmt.Fprintln(w)
		printRuns(w, recent, now)
	}

	if showFiles && len(current) > 0 {
		fmt.Fprintln(w)
		printRecords(w, current, now)
	}

	return nil
}

func runVersions(cmd *cobra.Command, args []string) error {
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

	versions, err := st.Versions(ctx, args[0])
	if err != nil {
		return err
	}

	if len(versions) == 0 {
		return fmt.Errorf("no versions recorded for %s", args[0])
	}

	printRecords(cmd.OutOrStdout(), versions, time.Now())

	return nil
}

// printAccount shows the cached account labels and token state without a
// network call.
func printAccount(w io.Writer, cfg *config.Resolved, now time.Time) {
	tok, meta, err := tokenfile.Load(cfg.TokenPath)

	state := tokenStateValid

	switch {
	case err != nil:
		state = "unreadable: " + err.Error()
	case tok == nil:
		state = tokenStateMissing
	case !tok.Expiry.IsZero() && tok.Expiry.Before(now):
		state = tokenStateExpired
	}

	account := "-"
	if email := meta[tokenfile.MetaEmail]; email != "" {
		account = email
	}

	fmt.Fprintf(w, "Account:          %s\n", account)
	fmt.Fprintf(w, "Token:            %s\n", state)
}

func printRuns(w io.Writer, runs []store.Run, now time.Time) {
	rows := make([][]string, 0, len(runs))

	for i := range runs {
		r := &runs[i]
		rows = append(rows, []string{
			formatAgo(r.StartedAt, now),
			string(r.Status),
			formatWindow(r.WindowStart, r.WindowEnd),
			strconv.Itoa(r.Counts.Fetched),
			formatSize(r.Counts.Bytes),
			strconv.Itoa(r.Counts.Skipped),
			strconv.Itoa(r.Counts.Failed),
		})
	}

	printTable(w, []string{"STARTED", "STATUS", "WINDOW", "FETCHED", "BYTES", "UNCHANGED", "FAILED"}, rows)
}

func printRecords(w io.Writer, records []store.Record, now time.Time) {
	rows := make([][]string, 0, len(records))

	for i := range records {
		r := &records[i]
		rows = append(rows, []string{
			r.RemoteID,
			strconv.Itoa(r.Version),
			formatSize(r.Size),
			formatTime(r.ModifiedAt, now),
			r.Path,
		})
	}

	printTable(w, []string{"REMOTE ID", "VERSION", "SIZE", "MODIFIED", "PATH"}, rows)
}

// formatWindow renders a run window as inclusive calendar dates. The stored
// end is exclusive.
func formatWindow(start, end time.Time) string {
	first := "-"
	if !start.IsZero() {
		first = start.Local().Format(config.DateLayout)
	}

	last := "-"
	if !end.IsZero() {
		last = end.Add(-time.Nanosecond).Local().Format(config.DateLayout)
	}

	return first + ".." + last
}
