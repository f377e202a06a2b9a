// Package store is the local metadata index for gdrive-backup: one SQLite row
// per (remote file id, version) that has been materialized on disk, plus the
// folder mapping and run history. Store is the sole writer to the database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// ErrPathInUse is returned by RecordVersion when another recorded version
// already occupies the requested path.
var ErrPathInUse = errors.New("store: path already used by another recorded version")

// dirPerms is used for the state directory holding the database.
const dirPerms = 0o700

const (
	sqlVersionColumns = `remote_id, version, path, name, mime_type, parent_id,
		modified_at, size, checksum, recorded_at`

	sqlLookupCurrent = `SELECT ` + sqlVersionColumns + `
		FROM file_versions WHERE remote_id = ?
		ORDER BY version DESC LIMIT 1`

	sqlListVersions = `SELECT ` + sqlVersionColumns + `
		FROM file_versions WHERE remote_id = ? ORDER BY version`

	sqlAllCurrent = `SELECT ` + sqlVersionColumns + `
		FROM current_versions ORDER BY path`

	sqlAllVersions = `SELECT ` + sqlVersionColumns + `
		FROM file_versions ORDER BY path, remote_id, version`

	sqlMaxVersion = `SELECT MAX(version) FROM file_versions WHERE remote_id = ?`

	// Any row at path except the current row of the given remote id, which
	// is about to move or be replaced.
	sqlPathOwner = `SELECT fv.remote_id FROM file_versions fv
		WHERE fv.path = ? AND NOT (fv.remote_id = ? AND fv.version = (
			SELECT MAX(v.version) FROM file_versions v WHERE v.remote_id = fv.remote_id))
		LIMIT 1`

	sqlMovePath = `UPDATE file_versions SET path = ? WHERE remote_id = ? AND version = ?`

	sqlInsertVersion = `INSERT INTO file_versions (` + sqlVersionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlUpsertFolder = `INSERT INTO folders (remote_id, name, parent_id, path, seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(remote_id) DO UPDATE SET
		 name = excluded.name,
		 parent_id = excluded.parent_id,
		 path = excluded.path,
		 seen_at = excluded.seen_at`

	sqlCountFolders = `SELECT COUNT(*) FROM folders`
)

// Record is one materialized version of a remote file.
type Record struct {
	RemoteID   string
	Version    int
	Path       string // slash-separated, relative to the backup root
	Name       string
	MimeType   string
	ParentID   string
	ModifiedAt time.Time
	Size       int64
	Checksum   string // empty when the remote service supplied none
	RecordedAt time.Time
}

// NewVersion carries the values for RecordVersion. SupersededPath, when set,
// is the path the previous current version was renamed to on disk.
type NewVersion struct {
	RemoteID       string
	Path           string
	Name           string
	MimeType       string
	ParentID       string
	ModifiedAt     time.Time
	Size           int64
	Checksum       string
	SupersededPath string
}

// Folder is a persisted remote folder → local directory mapping.
type Folder struct {
	RemoteID string
	Name     string
	ParentID string
	Path     string
}

// Store wraps the SQLite metadata database.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens (creating if needed) the database at dbPath and applies pending
// migrations. The database uses WAL mode with synchronous=FULL so a committed
// version survives a crash.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), dirPerms); err != nil {
		return nil, fmt.Errorf("store: creating state directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database %s: %w", dbPath, err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)

	schema, err := migrateSchema(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("metadata store opened",
		slog.String("db_path", dbPath),
		slog.Int64("schema_version", schema),
	)

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: closing database: %w", err)
	}

	return nil
}

// LookupCurrent returns the highest-numbered version recorded for remoteID,
// or nil if the file has never been materialized.
func (s *Store) LookupCurrent(ctx context.Context, remoteID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, sqlLookupCurrent, remoteID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // absent record is not an error
	}

	if err != nil {
		return nil, fmt.Errorf("store: looking up %s: %w", remoteID, err)
	}

	return rec, nil
}

// Versions returns every recorded version of remoteID in ascending order.
func (s *Store) Versions(ctx context.Context, remoteID string) ([]Record, error) {
	return s.queryRecords(ctx, sqlListVersions, remoteID)
}

// AllCurrent returns the current version of every recorded file, ordered by path.
func (s *Store) AllCurrent(ctx context.Context) ([]Record, error) {
	return s.queryRecords(ctx, sqlAllCurrent)
}

// AllVersions returns every recorded version, current and superseded,
// ordered by path.
func (s *Store) AllVersions(ctx context.Context) ([]Record, error) {
	return s.queryRecords(ctx, sqlAllVersions)
}

// PathInUse reports whether any recorded version occupies path, ignoring
// the current version of exceptID. Superseded versions count: their files
// still sit on disk under that path.
func (s *Store) PathInUse(ctx context.Context, path, exceptID string) (bool, error) {
	owner, err := pathOwner(ctx, s.db, path, exceptID)
	if err != nil {
		return false, err
	}

	return owner != "", nil
}

// RecordVersion appends a new version row for v.RemoteID and returns the
// assigned version number (previous maximum + 1, or 1). When
// v.SupersededPath is set, the previous current row is moved to that path in
// the same transaction.
func (s *Store) RecordVersion(ctx context.Context, v NewVersion) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var maxVersion sql.NullInt64
	if err := tx.QueryRowContext(ctx, sqlMaxVersion, v.RemoteID).Scan(&maxVersion); err != nil {
		return 0, fmt.Errorf("store: reading max version of %s: %w", v.RemoteID, err)
	}

	next := 1
	if maxVersion.Valid {
		next = int(maxVersion.Int64) + 1
	}

	if v.SupersededPath != "" {
		if !maxVersion.Valid {
			return 0, fmt.Errorf("store: %s has no previous version to supersede", v.RemoteID)
		}

		if _, err := tx.ExecContext(ctx, sqlMovePath, v.SupersededPath, v.RemoteID, maxVersion.Int64); err != nil {
			return 0, fmt.Errorf("store: moving version %d of %s: %w", maxVersion.Int64, v.RemoteID, err)
		}
	}

	owner, err := pathOwner(ctx, tx, v.Path, v.RemoteID)
	if err != nil {
		return 0, err
	}

	if owner != "" {
		return 0, fmt.Errorf("%w: %s (owner %s)", ErrPathInUse, v.Path, owner)
	}

	_, err = tx.ExecContext(ctx, sqlInsertVersion,
		v.RemoteID, next, v.Path, v.Name, v.MimeType, nullString(v.ParentID),
		v.ModifiedAt.UnixNano(), v.Size, nullString(v.Checksum), s.nowFunc().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: inserting version %d of %s: %w", next, v.RemoteID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: committing version %d of %s: %w", next, v.RemoteID, err)
	}

	s.logger.Debug("recorded version",
		slog.String("remote_id", v.RemoteID),
		slog.Int("version", next),
		slog.String("path", v.Path),
	)

	return next, nil
}

// UpsertFolder records where a remote folder was mapped during a run.
func (s *Store) UpsertFolder(ctx context.Context, f Folder) error {
	_, err := s.db.ExecContext(ctx, sqlUpsertFolder,
		f.RemoteID, f.Name, nullString(f.ParentID), f.Path, s.nowFunc().UnixNano())
	if err != nil {
		return fmt.Errorf("store: upserting folder %s: %w", f.RemoteID, err)
	}

	return nil
}

// FolderCount returns the number of folders ever mapped.
func (s *Store) FolderCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, sqlCountFolders).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: counting folders: %w", err)
	}

	return n, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func pathOwner(ctx context.Context, q querier, path, exceptID string) (string, error) {
	var owner string

	err := q.QueryRowContext(ctx, sqlPathOwner, path, exceptID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("store: checking path %s: %w", path, err)
	}

	return owner, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying versions: %w", err)
	}
	defer rows.Close()

	var out []Record

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning version row: %w", err)
		}

		out = append(out, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating version rows: %w", err)
	}

	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord scans one file_versions row, handling nullable columns.
func scanRecord(sc scanner) (*Record, error) {
	var (
		r          Record
		parentID   sql.NullString
		checksum   sql.NullString
		modifiedAt int64
		recordedAt int64
	)

	err := sc.Scan(&r.RemoteID, &r.Version, &r.Path, &r.Name, &r.MimeType, &parentID,
		&modifiedAt, &r.Size, &checksum, &recordedAt)
	if err != nil {
		return nil, err
	}

	r.ParentID = parentID.String
	r.Checksum = checksum.String
	r.ModifiedAt = time.Unix(0, modifiedAt).UTC()
	r.RecordedAt = time.Unix(0, recordedAt).UTC()

	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
