package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-backup/internal/config"
	"github.com/tonimelisma/gdrive-backup/internal/logging"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			return renderEffective(cmd.OutOrStdout(), cc.Cfg, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")

	return cmd
}

// effectiveSetting is one key of the effective configuration, named as in
// the config file.
type effectiveSetting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func effectiveSettings(r *config.Resolved) []effectiveSetting {
	return []effectiveSetting{
		{"config_file", r.ConfigPath},
		{"backup_dir", r.BackupDir},
		{"start_date", r.Start.Format(config.DateLayout)},
		{"end_date", r.End.Format(config.DateLayout)},
		{"converted_dir", r.ConvertedDir},
		{"credentials_file", r.CredentialsFile},
		{"token_file", r.TokenPath},
		{"state_db", r.StateDBPath()},
		{"log_console", strconv.FormatBool(r.LogConsole)},
		{"log_file", strconv.FormatBool(r.LogFile)},
		{"log_level", levelName(r.LogLevel)},
		{"log_path", r.LogPath},
		{"log_format", r.LogFormat},
		{"log_max_size", formatSize(r.LogMaxSize)},
		{"log_max_backups", strconv.Itoa(r.LogMaxBackups)},
		{"connect_timeout", r.ConnectTimeout.String()},
		{"max_retries", strconv.Itoa(r.MaxRetries)},
	}
}

func levelName(l slog.Level) string {
	if l >= logging.LevelCritical {
		return "CRITICAL"
	}

	return l.String()
}

func renderEffective(w io.Writer, r *config.Resolved, asJSON bool) error {
	settings := effectiveSettings(r)

	if asJSON {
		out := make(map[string]string, len(settings))
		for _, s := range settings {
			out[s.Key] = s.Value
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	rows := make([][]string, len(settings))
	for i, s := range settings {
		rows[i] = []string{s.Key, s.Value}
	}

	printTable(w, []string{"KEY", "VALUE"}, rows)

	return nil
}
