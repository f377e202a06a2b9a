package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-backup/internal/gdrive"
	"github.com/tonimelisma/gdrive-backup/internal/tokenfile"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize read-only access to Google Drive in the browser",
		Long: `Run the OAuth consent flow in the browser and save the token.

Requires an OAuth desktop client secrets file (credentials_file, by default
credentials.json in the config directory).`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved authentication token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated account and storage quota",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx, stop := watchInterrupts(cmd.Context(), cc)
	defer stop()

	oauthCfg, err := gdrive.LoadOAuthConfig(cc.Cfg.CredentialsFile)
	if err != nil {
		return err
	}

	ts, err := gdrive.Login(ctx, oauthCfg, cc.Cfg.TokenPath, openBrowser, cc.Logger)
	if err != nil {
		return err
	}

	client, err := gdrive.NewClient(ctx, gdrive.NewHTTPClient(ctx, ts, cc.Cfg.ConnectTimeout), cc.Cfg.MaxRetries, cc.Logger)
	if err != nil {
		return err
	}

	acct, err := client.About(ctx)
	if err != nil {
		// The token is saved; the account label is cosmetic.
		cc.Logger.Warn("could not fetch account info", slog.String("error", err.Error()))
		cc.Statusf("Login successful.\n")

		return nil
	}

	cacheAccountMeta(cc, acct)
	cc.Statusf("Login successful as %s.\n", acct.Email)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := gdrive.Logout(cc.Cfg.TokenPath, cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Logged out.\n")

	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	client, err := newDriveClient(ctx, cc, false)
	if err != nil {
		return err
	}

	acct, err := client.About(ctx)
	if err != nil {
		return fmt.Errorf("fetching account info: %w", err)
	}

	cacheAccountMeta(cc, acct)
	printWhoami(cmd.OutOrStdout(), acct)

	return nil
}

// cacheAccountMeta stores the account labels next to the token so status
// can show them without a network call.
func cacheAccountMeta(cc *CLIContext, acct *gdrive.Account) {
	err := tokenfile.MergeMeta(cc.Cfg.TokenPath, map[string]string{
		tokenfile.MetaEmail:       acct.Email,
		tokenfile.MetaDisplayName: acct.DisplayName,
	})
	if err != nil {
		cc.Logger.Warn("could not cache account info", slog.String("error", err.Error()))
	}
}

func printWhoami(w io.Writer, acct *gdrive.Account) {
	fmt.Fprintf(w, "User:  %s (%s)\n", acct.DisplayName, acct.Email)

	if acct.QuotaLimit > 0 {
		fmt.Fprintf(w, "Quota: %s / %s\n", formatSize(acct.QuotaUsed), formatSize(acct.QuotaLimit))
		return
	}

	fmt.Fprintf(w, "Quota: %s used (unlimited)\n", formatSize(acct.QuotaUsed))
}
