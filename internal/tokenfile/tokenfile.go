// Package tokenfile persists the Google OAuth token together with a small
// map of account metadata (email, display name) cached from the Drive
// about endpoint. It is a leaf package shared by config and gdrive.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

const (
	FilePerms = 0o600
	DirPerms  = 0o700
)

// Metadata keys cached alongside the token.
const (
	MetaEmail       = "email"
	MetaDisplayName = "display_name"
)

// ErrNoToken reports a token file that decodes but carries no token, such
// as one written by an older release. The user has to log in again.
var ErrNoToken = errors.New("tokenfile: no token stored (re-login required)")

type document struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Load returns the saved token and its metadata. A missing file yields
// (nil, nil, nil) so callers can start the login flow.
func Load(path string) (*oauth2.Token, map[string]string, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil, nil
	case err != nil:
		return nil, nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if doc.Token == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoToken, path)
	}

	return doc.Token, doc.Meta, nil
}

// Save replaces the token file in one rename, so a reader sees either the
// old document or the new one. The file is owner-only.
func Save(path string, tok *oauth2.Token, meta map[string]string) error {
	data, err := json.MarshalIndent(document{Token: tok, Meta: meta}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	if err := replaceFile(path, data); err != nil {
		return fmt.Errorf("tokenfile: saving %s: %w", path, err)
	}

	return nil
}

func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return err
	}

	err = writeSynced(tmp, data)
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}

	if err != nil {
		_ = os.Remove(tmp.Name())
	}

	return err
}

// writeSynced fills f, flushes it to disk and closes it.
func writeSynced(f *os.File, data []byte) error {
	err := f.Chmod(FilePerms)
	if err == nil {
		_, err = f.Write(data)
	}

	if err == nil {
		err = f.Sync()
	}

	return errors.Join(err, f.Close())
}

// MergeMeta overlays meta onto the metadata cached with the stored token.
// It fails when no token is stored at path.
func MergeMeta(path string, meta map[string]string) error {
	tok, cached, err := Load(path)
	if err != nil {
		return err
	}

	if tok == nil {
		return fmt.Errorf("tokenfile: no token file at %s", path)
	}

	merged := maps.Clone(cached)
	if merged == nil {
		merged = make(map[string]string, len(meta))
	}

	maps.Copy(merged, meta)

	return Save(path, tok, merged)
}

// Remove deletes the token file and reports whether one existed.
func Remove(path string) (bool, error) {
	switch err := os.Remove(path); {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return true, nil
}
