// Command integration-bootstrap runs the browser login once and saves the
// token under .testdata/ for the end-to-end tests.
//
// Usage: go run ./cmd/integration-bootstrap [--dir .testdata]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/tonimelisma/gdrive-backup/internal/gdrive"
	"github.com/tonimelisma/gdrive-backup/testutil"
)

func main() {
	dir := flag.String("dir", ".testdata", "directory holding credentials.json; token.json is written here")
	flag.Parse()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := gdrive.LoadOAuthConfig(filepath.Join(*dir, testutil.CredentialsFileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading credentials: %v\n", err)
		os.Exit(1)
	}

	_, err = gdrive.Login(ctx, cfg, filepath.Join(*dir, testutil.TokenFileName), openBrowser, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Login successful. Token saved.")
}

func openBrowser(u string) error {
	name := "xdg-open"
	if runtime.GOOS == "darwin" {
		name = "open"
	}

	return exec.Command(name, u).Start()
}
