package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/gdrive-backup/internal/gdrive"
)

// tokenSource loads the saved token. When none is stored and interactive is
// set it runs the browser login, so a first backup needs no separate step.
func tokenSource(ctx context.Context, cc *CLIContext, interactive bool) (oauth2.TokenSource, error) {
	oauthCfg, err := gdrive.LoadOAuthConfig(cc.Cfg.CredentialsFile)
	if err != nil {
		if errors.Is(err, gdrive.ErrNoCredentials) {
			return nil, fmt.Errorf("%w (download an OAuth desktop client from the Google Cloud console)", err)
		}

		return nil, err
	}

	ts, err := gdrive.TokenSourceFromPath(ctx, oauthCfg, cc.Cfg.TokenPath, cc.Logger)

	switch {
	case err == nil:
		return ts, nil
	case !errors.Is(err, gdrive.ErrNotLoggedIn):
		return nil, err
	case !interactive:
		return nil, errors.New("not logged in, run 'gdrive-backup login' first")
	}

	cc.Logger.Info("no saved token, starting login", slog.String("token_path", cc.Cfg.TokenPath))
	cc.Statusf("No saved login, opening the browser to authorize read-only Drive access.\n")

	return gdrive.Login(ctx, oauthCfg, cc.Cfg.TokenPath, openBrowser, cc.Logger)
}

// newDriveClient builds an authenticated Drive client from the resolved
// config.
func newDriveClient(ctx context.Context, cc *CLIContext, interactive bool) (*gdrive.Client, error) {
	ts, err := tokenSource(ctx, cc, interactive)
	if err != nil {
		return nil, err
	}

	httpClient := gdrive.NewHTTPClient(ctx, ts, cc.Cfg.ConnectTimeout)

	return gdrive.NewClient(ctx, httpClient, cc.Cfg.MaxRetries, cc.Logger)
}
