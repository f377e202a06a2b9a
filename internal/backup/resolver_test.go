package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdrive-backup/internal/gdrive"
	"github.com/tonimelisma/gdrive-backup/internal/store"
)

const convertedDir = "Converted Files"

func newTestResolver(t *testing.T) (*Resolver, *store.Store) {
	t.Helper()

	s := newTestStore(t, t.TempDir())
	r := NewResolver(s, DateWindow(day(2023, 1, 1), day(2023, 6, 30)), convertedDir)

	return r, s
}

func spreadsheet(id string) gdrive.Entry {
	return gdrive.Entry{
		ID:         id,
		Name:       "Report",
		MimeType:   gdrive.MimeSpreadsheet,
		ModifiedAt: day(2023, 3, 1),
	}
}

func TestResolve_FirstVersionOfNativeDocument(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t)

	dec, err := r.Resolve(context.Background(), spreadsheet("file-report"), "Work")
	require.NoError(t, err)

	assert.Equal(t, ActionFetch, dec.Action)
	assert.Equal(t, "Converted Files/Report.xlsx", dec.Path)
	assert.Equal(t, 1, dec.Version)
	require.NotNil(t, dec.Export)
	assert.Equal(t, ".xlsx", dec.Export.Extension)
	assert.Nil(t, dec.Previous)
	assert.Empty(t, dec.SupersededPath)
}

func TestResolve_BlobKeepsNameAndFolder(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t)

	entry := gdrive.Entry{ID: "file-cat", Name: "cat?.jpg", MimeType: "image/jpeg", ModifiedAt: day(2023, 2, 1)}

	dec, err := r.Resolve(context.Background(), entry, "Photos/2023")
	require.NoError(t, err)
	assert.Equal(t, "Photos/2023/cat_.jpg", dec.Path)
	assert.Nil(t, dec.Export)
}

func TestResolve_OutsideWindowCheckedFirst(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t)

	for _, modified := range []time.Time{day(2022, 12, 31), day(2023, 7, 1)} {
		entry := spreadsheet("file-report")
		entry.ModifiedAt = modified

		dec, err := r.Resolve(context.Background(), entry, "")
		require.NoError(t, err)
		assert.Equal(t, ActionSkip, dec.Action)
		assert.Equal(t, ReasonOutsideWindow, dec.Reason)
	}
}

func TestResolve_UnsupportedNativeType(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t)

	entry := gdrive.Entry{
		ID: "file-form", Name: "Survey", MimeType: "application/vnd.google-apps.form", ModifiedAt: day(2023, 2, 1),
	}

	dec, err := r.Resolve(context.Background(), entry, "")
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, dec.Action)
	assert.Equal(t, ReasonUnsupported, dec.Reason)
}

func TestResolve_UnchangedAndOlderTimestampsSkip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, s := newTestResolver(t)

	_, err := s.RecordVersion(ctx, store.NewVersion{
		RemoteID: "file-report", Path: "Converted Files/Report.xlsx", Name: "Report",
		MimeType: gdrive.MimeSpreadsheet, ModifiedAt: day(2023, 3, 1),
	})
	require.NoError(t, err)

	same := spreadsheet("file-report")

	dec, err := r.Resolve(ctx, same, "")
	require.NoError(t, err)
	assert.Equal(t, ReasonUnchanged, dec.Reason)
	assert.Equal(t, "Converted Files/Report.xlsx", dec.Path)
	assert.Equal(t, 1, dec.Version)

	older := spreadsheet("file-report")
	older.ModifiedAt = day(2023, 2, 1)

	dec, err = r.Resolve(ctx, older, "")
	require.NoError(t, err)
	assert.Equal(t, ReasonUnchanged, dec.Reason)
}

func TestResolve_NewerTimestampSupersedes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, s := newTestResolver(t)

	_, err := s.RecordVersion(ctx, store.NewVersion{
		RemoteID: "file-report", Path: "Converted Files/Report.xlsx", Name: "Report",
		MimeType: gdrive.MimeSpreadsheet, ModifiedAt: day(2023, 3, 1),
	})
	require.NoError(t, err)

	entry := spreadsheet("file-report")
	entry.ModifiedAt = day(2023, 4, 1)

	dec, err := r.Resolve(ctx, entry, "")
	require.NoError(t, err)
	assert.Equal(t, ActionFetch, dec.Action)
	assert.Equal(t, "Converted Files/Report.xlsx", dec.Path)
	assert.Equal(t, 2, dec.Version)
	assert.Equal(t, "Converted Files/Report.v01.xlsx", dec.SupersededPath)
	require.NotNil(t, dec.Previous)
	assert.Equal(t, 1, dec.Previous.Version)
}

func TestResolve_DisambiguatesAgainstOtherFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, s := newTestResolver(t)

	_, err := s.RecordVersion(ctx, store.NewVersion{
		RemoteID: "file-a", Path: "Docs/notes.txt", Name: "notes.txt", ModifiedAt: day(2023, 3, 1),
	})
	require.NoError(t, err)

	entry := gdrive.Entry{ID: "file-b", Name: "notes.txt", MimeType: "text/plain", ModifiedAt: day(2023, 3, 2)}

	dec, err := r.Resolve(ctx, entry, "Docs")
	require.NoError(t, err)
	assert.Equal(t, "Docs/notes (2).txt", dec.Path)
}

func TestResolve_SupersededVersionsStayOccupied(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, s := newTestResolver(t)

	// file-a moved away from a.txt, leaving its first version at a.v01.txt.
	_, err := s.RecordVersion(ctx, store.NewVersion{RemoteID: "file-a", Path: "a.txt", ModifiedAt: day(2023, 1, 5)})
	require.NoError(t, err)
	_, err = s.RecordVersion(ctx, store.NewVersion{
		RemoteID: "file-a", Path: "b.txt", ModifiedAt: day(2023, 1, 6), SupersededPath: "a.v01.txt",
	})
	require.NoError(t, err)

	// file-c takes over a.txt and then changes: its first version must not
	// land on file-a's kept copy.
	_, err = s.RecordVersion(ctx, store.NewVersion{RemoteID: "file-c", Path: "a.txt", ModifiedAt: day(2023, 2, 1)})
	require.NoError(t, err)

	entry := gdrive.Entry{ID: "file-c", Name: "a.txt", MimeType: "text/plain", ModifiedAt: day(2023, 2, 2)}

	dec, err := r.Resolve(ctx, entry, "")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", dec.Path)
	assert.Equal(t, "a.v01 (2).txt", dec.SupersededPath)
}

func TestResolveFolder_ReservesAndDisambiguates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, _ := newTestResolver(t)
	r.ReserveDir(convertedDir)

	first, err := r.ResolveFolder(ctx, gdrive.Entry{ID: "folder-1", Name: "Docs"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Docs", first)

	second, err := r.ResolveFolder(ctx, gdrive.Entry{ID: "folder-2", Name: "Docs"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Docs (2)", second)

	converted, err := r.ResolveFolder(ctx, gdrive.Entry{ID: "folder-3", Name: convertedDir}, "")
	require.NoError(t, err)
	assert.Equal(t, "Converted Files (2)", converted)

	// A file named like a sibling folder does not land on the directory.
	dec, err := r.Resolve(ctx, gdrive.Entry{ID: "file-docs", Name: "Docs", ModifiedAt: day(2023, 2, 1)}, "")
	require.NoError(t, err)
	assert.Equal(t, "Docs (3)", dec.Path)
}

// failingIndex returns err from every call.
type failingIndex struct{ err error }

func (f failingIndex) LookupCurrent(context.Context, string) (*store.Record, error) {
	return nil, f.err
}

func (f failingIndex) PathInUse(context.Context, string, string) (bool, error) { return false, f.err }

func TestResolve_StoreFailureIsFatal(t *testing.T) {
	t.Parallel()

	r := NewResolver(failingIndex{err: errors.New("disk I/O error")}, Window{}, convertedDir)

	_, err := r.Resolve(context.Background(), spreadsheet("file-report"), "")
	require.ErrorIs(t, err, ErrStore)

	_, err = r.ResolveFolder(context.Background(), gdrive.Entry{ID: "folder-1", Name: "Docs"}, "")
	require.ErrorIs(t, err, ErrStore)
}
