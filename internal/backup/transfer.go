package backup

import (
	"context"
	"crypto/md5" //nolint:gosec // Drive publishes MD5 checksums; used for integrity only
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// partialPattern names staging files. os.CreateTemp opens them with
	// O_EXCL, so staging never truncates a file already on disk.
	partialPattern = ".gdrive-backup-*.partial"

	dirPerms  = 0o700
	filePerms = 0o600

	// defaultMaxVerifyRetries is how many extra downloads are attempted
	// when content fails size or checksum verification.
	defaultMaxVerifyRetries = 2
)

var (
	errVerification = errors.New("backup: downloaded content failed verification")
	errForeignFile  = errors.New("backup: versioned path holds a different file")
)

// fetchFunc streams remote content to w.
type fetchFunc func(ctx context.Context, w io.Writer) (int64, error)

// expectation is what the remote service claims about the content.
// Zero values skip the corresponding check.
type expectation struct {
	Size  int64
	MD5   string
	Mtime time.Time
}

// stagedFile is remote content fully written to a uniquely named partial
// file in its final destination's directory.
type stagedFile struct {
	path   string
	target string
	size   int64
	md5    string
}

// stage downloads into a fresh partial file beside target, verifies it and
// stamps its mtime. The partial file is removed on every failure path,
// including cancellation, so an interrupted run leaves nothing behind.
func stage(
	ctx context.Context, target string, fetch fetchFunc, want expectation, retries int, logger *slog.Logger,
) (*stagedFile, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return nil, &EntryError{Kind: KindLocal, Op: "mkdir", Err: err}
	}

	for attempt := 0; ; attempt++ {
		partial, size, sum, err := writePartial(ctx, dir, fetch)
		if err != nil {
			return nil, err
		}

		verr := verify(size, sum, want)
		if verr == nil {
			if !want.Mtime.IsZero() {
				if err := os.Chtimes(partial, want.Mtime, want.Mtime); err != nil {
					logger.Warn("failed to set mtime on partial",
						slog.String("path", partial),
						slog.String("error", err.Error()),
					)
				}
			}

			return &stagedFile{path: partial, target: target, size: size, md5: sum}, nil
		}

		os.Remove(partial)

		if attempt >= retries {
			return nil, &EntryError{Kind: KindRemote, Op: "verify", Err: verr}
		}

		logger.Warn("download verification failed, retrying",
			slog.String("target", target),
			slog.Int("attempt", attempt+1),
			slog.String("error", verr.Error()),
		)
	}
}

// writePartial streams fetch into a new partial file in dir, fsyncs and
// closes it, and returns its path with the size and hex MD5 of what was
// written. On error the partial file is already gone.
func writePartial(ctx context.Context, dir string, fetch fetchFunc) (string, int64, string, error) {
	f, err := os.CreateTemp(dir, partialPattern)
	if err != nil {
		return "", 0, "", &EntryError{Kind: KindLocal, Op: "create", Err: err}
	}

	partial := f.Name()

	fail := func(err error) (string, int64, string, error) {
		f.Close()
		os.Remove(partial)

		return "", 0, "", err
	}

	if err := f.Chmod(filePerms); err != nil {
		return fail(&EntryError{Kind: KindLocal, Op: "chmod", Err: err})
	}

	h := md5.New() //nolint:gosec // integrity check against Drive's md5Checksum

	n, err := fetch(ctx, io.MultiWriter(f, h))
	if err != nil {
		var ee *EntryError
		if errors.As(err, &ee) {
			return fail(err)
		}

		return fail(&EntryError{Kind: KindRemote, Op: "fetch", Err: err})
	}

	if err := f.Sync(); err != nil {
		return fail(&EntryError{Kind: KindLocal, Op: "fsync", Err: err})
	}

	if err := f.Close(); err != nil {
		os.Remove(partial)
		return "", 0, "", &EntryError{Kind: KindLocal, Op: "close", Err: err}
	}

	return partial, n, hex.EncodeToString(h.Sum(nil)), nil
}

func verify(size int64, sum string, want expectation) error {
	if want.Size > 0 && size != want.Size {
		return fmt.Errorf("%w: size %d, expected %d", errVerification, size, want.Size)
	}

	if want.MD5 != "" && !strings.EqualFold(sum, want.MD5) {
		return fmt.Errorf("%w: md5 %s, expected %s", errVerification, sum, want.MD5)
	}

	return nil
}

// previousCopy is the current local file of an entry about to get a newer
// version, and the versioned path it moves to.
type previousCopy struct {
	path       string
	superseded string
	size       int64
}

// commit moves the staged file into place. When prev is set, the previous
// current file is first renamed to its versioned path; if the final rename
// fails it is moved back.
func (s *stagedFile) commit(prev *previousCopy, logger *slog.Logger) error {
	moved := false

	if prev != nil {
		var err error

		moved, err = keepPrevious(prev, logger)
		if err != nil {
			return err
		}
	}

	if err := os.Rename(s.path, s.target); err != nil {
		if moved {
			if undoErr := os.Rename(prev.superseded, prev.path); undoErr != nil {
				logger.Error("failed to restore previous version",
					slog.String("from", prev.superseded),
					slog.String("to", prev.path),
					slog.String("error", undoErr.Error()),
				)
			}
		}

		return &EntryError{Kind: KindLocal, Op: "rename", Err: err}
	}

	return nil
}

// keepPrevious renames the previous current file to its versioned name and
// reports whether it moved anything. A file already at the versioned path
// is accepted as this entry's kept copy only when its size matches the
// recorded previous version; anything else is left untouched and the entry
// fails.
func keepPrevious(prev *previousCopy, logger *slog.Logger) (bool, error) {
	info, err := os.Lstat(prev.superseded)

	switch {
	case err == nil:
		if !info.Mode().IsRegular() || info.Size() != prev.size {
			return false, &EntryError{
				Kind: KindLocal,
				Op:   "keep previous version",
				Err: fmt.Errorf("%w: %s is %d bytes, previous version was %d",
					errForeignFile, prev.superseded, info.Size(), prev.size),
			}
		}

		// An interrupted earlier run already kept the old version; the file
		// at prev.path is its newer copy and gets replaced.
		logger.Warn("superseded version already on disk",
			slog.String("superseded", prev.superseded),
			slog.String("current", prev.path),
		)

		return false, nil
	case !errors.Is(err, os.ErrNotExist):
		return false, &EntryError{Kind: KindLocal, Op: "stat", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(prev.superseded), dirPerms); err != nil {
		return false, &EntryError{Kind: KindLocal, Op: "mkdir", Err: err}
	}

	err = os.Rename(prev.path, prev.superseded)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("previous version missing on disk",
			slog.String("path", prev.path),
		)

		return false, nil
	}

	if err != nil {
		return false, &EntryError{Kind: KindLocal, Op: "keep previous version", Err: err}
	}

	return true, nil
}

// discard removes the staged file.
func (s *stagedFile) discard() {
	os.Remove(s.path)
}
