package backup

import (
	"context"
	"crypto/md5" //nolint:gosec // matches Drive's md5Checksum
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tonimelisma/gdrive-backup/internal/store"
)

// Verify status values.
const (
	VerifyOK               = "ok"
	VerifyMissing          = "missing"
	VerifySizeMismatch     = "size_mismatch"
	VerifyChecksumMismatch = "checksum_mismatch"
)

// VerifyResult is the outcome for one recorded version.
type VerifyResult struct {
	RemoteID string `json:"remote_id"`
	Version  int    `json:"version"`
	Path     string `json:"path"`
	Status   string `json:"status"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// VerifyReport summarizes a verification pass.
type VerifyReport struct {
	Verified   int            `json:"verified"`
	Mismatches []VerifyResult `json:"mismatches"`
}

// Verify checks every record against the file under root: it must exist,
// have the recorded size and, when a checksum was recorded, the same MD5.
// Read-only; untracked local files are ignored.
func Verify(ctx context.Context, records []store.Record, root string, logger *slog.Logger) (*VerifyReport, error) {
	report := &VerifyReport{}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backup: verify canceled: %w", err)
		}

		result := verifyRecord(root, &records[i], logger)

		if result.Status == VerifyOK {
			report.Verified++
			continue
		}

		report.Mismatches = append(report.Mismatches, result)
	}

	return report, nil
}

func verifyRecord(root string, rec *store.Record, logger *slog.Logger) VerifyResult {
	result := VerifyResult{RemoteID: rec.RemoteID, Version: rec.Version, Path: rec.Path, Status: VerifyOK}
	absPath := filepath.Join(root, filepath.FromSlash(rec.Path))

	info, err := os.Stat(absPath)
	if err != nil {
		result.Status = VerifyMissing

		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("verify: stat failed", slog.String("path", rec.Path), slog.String("error", err.Error()))
			result.Actual = err.Error()
		}

		return result
	}

	if info.Size() != rec.Size {
		result.Status = VerifySizeMismatch
		result.Expected = strconv.FormatInt(rec.Size, 10)
		result.Actual = strconv.FormatInt(info.Size(), 10)

		return result
	}

	if rec.Checksum == "" {
		return result
	}

	sum, err := fileMD5(absPath)
	if err != nil {
		logger.Warn("verify: hashing failed", slog.String("path", rec.Path), slog.String("error", err.Error()))
	}

	if err != nil || !strings.EqualFold(sum, rec.Checksum) {
		result.Status = VerifyChecksumMismatch
		result.Expected = rec.Checksum
		result.Actual = sum

		if err != nil {
			result.Actual = err.Error()
		}
	}

	return result
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New() //nolint:gosec // integrity check only
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
