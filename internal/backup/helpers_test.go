package backup

import (
	"context"
	"crypto/md5" //nolint:gosec // matches Drive's md5Checksum
	"encoding/hex"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"maps"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdrive-backup/internal/gdrive"
	"github.com/tonimelisma/gdrive-backup/internal/store"
)

// testLogger returns a debug-level logger that writes to t.Log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// newTestStore opens a metadata store under dir/.gdrive-backup.
func newTestStore(t *testing.T, dir string) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), filepath.Join(dir, stateDirName, "state.db"), testLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})

	return s
}

const stateDirName = ".gdrive-backup"

// fakeRemote is an in-memory Drive. It ignores the listing filter so the
// driver's own window check is exercised.
type fakeRemote struct {
	mu       sync.Mutex
	children map[string][]gdrive.Entry
	content  map[string][]byte
	listErr  map[string]error
	fetchErr map[string]error
	fetched  []string

	// malformed marks file ids the listing reports as unreadable.
	malformed map[string]bool

	// corruptOnce makes the first download of a file id return different
	// bytes than advertised.
	corruptOnce map[string]bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		children:    make(map[string][]gdrive.Entry),
		content:     make(map[string][]byte),
		listErr:     make(map[string]error),
		fetchErr:    make(map[string]error),
		malformed:   make(map[string]bool),
		corruptOnce: make(map[string]bool),
	}
}

func (f *fakeRemote) addFolder(parentID, id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.children[parentID] = append(f.children[parentID], gdrive.Entry{
		ID: id, Name: name, ParentID: parentID, IsFolder: true, MimeType: gdrive.MimeFolder,
	})
}

// putFile adds a blob file or replaces an existing one with the same id.
func (f *fakeRemote) putFile(parentID, id, name string, modified time.Time, data string) {
	sum := md5.Sum([]byte(data)) //nolint:gosec // test fixture

	f.put(parentID, gdrive.Entry{
		ID:          id,
		Name:        name,
		ParentID:    parentID,
		MimeType:    "application/octet-stream",
		ModifiedAt:  modified,
		Size:        int64(len(data)),
		MD5Checksum: hex.EncodeToString(sum[:]),
	}, data)
}

// putNative adds a Google-native document whose export yields data.
func (f *fakeRemote) putNative(parentID, id, name, mimeType string, modified time.Time, data string) {
	f.put(parentID, gdrive.Entry{
		ID:         id,
		Name:       name,
		ParentID:   parentID,
		MimeType:   mimeType,
		ModifiedAt: modified,
	}, data)
}

func (f *fakeRemote) put(parentID string, e gdrive.Entry, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.content[e.ID] = []byte(data)

	for i, existing := range f.children[parentID] {
		if existing.ID == e.ID {
			f.children[parentID][i] = e
			return
		}
	}

	f.children[parentID] = append(f.children[parentID], e)
}

func (f *fakeRemote) Children(_ context.Context, folderID string, _ gdrive.ListFilter) iter.Seq2[gdrive.Entry, error] {
	f.mu.Lock()
	entries := append([]gdrive.Entry(nil), f.children[folderID]...)
	listErr := f.listErr[folderID]
	malformed := maps.Clone(f.malformed)
	f.mu.Unlock()

	return func(yield func(gdrive.Entry, error) bool) {
		for _, e := range entries {
			var err error
			if malformed[e.ID] {
				err = fmt.Errorf("%w: bad modifiedTime", gdrive.ErrMalformedEntry)
			}

			if !yield(e, err) {
				return
			}
		}

		if listErr != nil {
			yield(gdrive.Entry{}, listErr)
		}
	}
}

func (f *fakeRemote) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	return f.write(ctx, fileID, w)
}

func (f *fakeRemote) Export(ctx context.Context, fileID, _ string, w io.Writer) (int64, error) {
	return f.write(ctx, fileID, w)
}

func (f *fakeRemote) write(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	f.fetched = append(f.fetched, fileID)
	data := f.content[fileID]
	err := f.fetchErr[fileID]

	if f.corruptOnce[fileID] {
		delete(f.corruptOnce, fileID)
		data = []byte("garbage!" + string(data))
	}
	f.mu.Unlock()

	if err != nil {
		return 0, err
	}

	n, werr := w.Write(data)

	return int64(n), werr
}

func (f *fakeRemote) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.fetched)
}
