package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var schemaFiles embed.FS

// ErrSchemaTooNew means the database was written by a newer gdrive-backup.
// Opening it with this binary could misread version rows, so it is refused.
var ErrSchemaTooNew = errors.New("store: database schema is newer than this program")

// migrateSchema brings the metadata schema up to date and returns the
// resulting schema version.
func migrateSchema(ctx context.Context, db *sql.DB, logger *slog.Logger) (int64, error) {
	files, err := fs.Sub(schemaFiles, "migrations")
	if err != nil {
		return 0, fmt.Errorf("store: loading schema files: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, files)
	if err != nil {
		return 0, fmt.Errorf("store: preparing schema migration: %w", err)
	}

	current, latest, err := provider.GetVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: reading schema version: %w", err)
	}

	if current > latest {
		return 0, fmt.Errorf("%w: database at version %d, program knows up to %d", ErrSchemaTooNew, current, latest)
	}

	if current == latest {
		return current, nil
	}

	if _, err := provider.Up(ctx); err != nil {
		return 0, fmt.Errorf("store: upgrading schema from version %d: %w", current, err)
	}

	logger.Info("metadata schema upgraded",
		slog.Int64("from_version", current),
		slog.Int64("to_version", latest),
	)

	return latest, nil
}
