// Package backup walks a Google Drive account breadth-first and materializes
// every file modified inside a date window under a local backup root. Files
// are never deleted or overwritten: when a file changes remotely the previous
// local copy is kept under a ".vNN" name and a new version is recorded.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/gdrive-backup/internal/gdrive"
	"github.com/tonimelisma/gdrive-backup/internal/store"
)

// Remote is the read-only slice of the Drive client the driver uses.
type Remote interface {
	Children(ctx context.Context, folderID string, filter gdrive.ListFilter) iter.Seq2[gdrive.Entry, error]
	Download(ctx context.Context, fileID string, w io.Writer) (int64, error)
	Export(ctx context.Context, fileID, mimeType string, w io.Writer) (int64, error)
}

// MetadataStore is everything the driver needs from the metadata index.
type MetadataStore interface {
	Index
	RecordVersion(ctx context.Context, v store.NewVersion) (int, error)
	UpsertFolder(ctx context.Context, f store.Folder) error
	BeginRun(ctx context.Context, id string, windowStart, windowEnd time.Time) error
	FinishRun(ctx context.Context, id string, counts store.RunCounts, status store.RunStatus) error
}

// Options configures a Driver.
type Options struct {
	// Root is the local backup directory.
	Root string

	Window Window

	// ConvertedDir is the root-level directory for exported native documents.
	ConvertedDir string

	// StateDir is the root-level directory holding the metadata database.
	// Its name is reserved so no remote folder maps onto it.
	StateDir string

	// VerifyRetries is the number of extra downloads after a size or
	// checksum mismatch. Negative means the default.
	VerifyRetries int
}

// Driver runs one backup pass at a time. It is not safe for concurrent use.
type Driver struct {
	remote   Remote
	store    MetadataStore
	opts     Options
	logger   *slog.Logger
	newRunID func() string
	nowFunc  func() time.Time
}

// folderItem is a queued remote folder and the local directory it maps to.
type folderItem struct {
	id   string
	name string
	path string // slash-separated, relative to the root; "" is the root
}

// NewDriver returns a Driver backing up remote into opts.Root.
func NewDriver(remote Remote, st MetadataStore, opts Options, logger *slog.Logger) *Driver {
	if opts.VerifyRetries < 0 {
		opts.VerifyRetries = defaultMaxVerifyRetries
	}

	return &Driver{
		remote:   remote,
		store:    st,
		opts:     opts,
		logger:   logger,
		newRunID: uuid.NewString,
		nowFunc:  time.Now,
	}
}

// Run performs one full pass over the remote tree. Per-entry failures are
// counted in the summary; the returned error is non-nil only for fatal
// conditions (ErrAuthentication, ErrStore, ErrResolution or cancellation),
// in which case the summary covers the work done before the abort.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	started := d.nowFunc()
	sum := &Summary{RunID: d.newRunID(), Window: d.opts.Window}

	// Run bookkeeping ignores cancellation so an interrupted run is still
	// on record.
	if err := d.store.BeginRun(context.WithoutCancel(ctx), sum.RunID, d.opts.Window.Start, d.opts.Window.End); err != nil {
		return sum, fmt.Errorf("%w: %w", ErrStore, err)
	}

	d.logger.Info("backup run started",
		slog.String("run_id", sum.RunID),
		slog.String("root", d.opts.Root),
		slog.Time("window_start", d.opts.Window.Start),
		slog.Time("window_end", d.opts.Window.End),
	)

	err := d.walk(ctx, sum)
	sum.Duration = d.nowFunc().Sub(started)
	status := runStatus(ctx, err)

	if finishErr := d.store.FinishRun(context.WithoutCancel(ctx), sum.RunID, sum.counts(), status); finishErr != nil {
		d.logger.Error("failed to record run outcome",
			slog.String("run_id", sum.RunID),
			slog.String("error", finishErr.Error()),
		)

		if err == nil {
			err = fmt.Errorf("%w: %w", ErrStore, finishErr)
		}
	}

	if err != nil {
		d.logger.Error("backup run aborted",
			slog.String("status", string(status)),
			slog.Any("summary", sum),
			slog.String("error", err.Error()),
		)

		return sum, err
	}

	d.logger.Info("backup run finished", slog.Any("summary", sum))

	return sum, nil
}

// walk processes the folder tree breadth-first from the Drive root.
func (d *Driver) walk(ctx context.Context, sum *Summary) error {
	if err := os.MkdirAll(d.opts.Root, dirPerms); err != nil {
		return fmt.Errorf("backup: creating backup root %s: %w", d.opts.Root, err)
	}

	resolver := NewResolver(d.store, d.opts.Window, d.opts.ConvertedDir)
	resolver.ReserveDir(d.opts.ConvertedDir)

	if d.opts.StateDir != "" {
		resolver.ReserveDir(d.opts.StateDir)
	}

	queue := []folderItem{{id: gdrive.RootID}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		item := queue[0]
		queue = queue[1:]

		subfolders, err := d.processFolder(ctx, resolver, item, sum)
		if err != nil {
			return err
		}

		queue = append(queue, subfolders...)
	}

	return nil
}

// processFolder handles every child of one folder and returns the
// subfolders to visit next.
func (d *Driver) processFolder(
	ctx context.Context, resolver *Resolver, item folderItem, sum *Summary,
) ([]folderItem, error) {
	d.logger.Debug("listing folder",
		slog.String("folder_id", item.id),
		slog.String("path", item.path),
	)

	var subfolders []folderItem

	for entry, err := range d.remote.Children(ctx, item.id, d.opts.Window.ListFilter()) {
		if errors.Is(err, gdrive.ErrMalformedEntry) {
			d.recordFailure(sum, &EntryError{
				Kind: KindRemote, RemoteID: entry.ID, Name: entry.Name, Path: item.path, Op: "list", Err: err,
			})

			continue
		}

		if err != nil {
			if fatal := d.fatal(ctx, err); fatal != nil {
				return nil, fatal
			}

			d.recordFailure(sum, &EntryError{
				Kind: KindRemote, RemoteID: item.id, Name: item.name, Path: item.path, Op: "list", Err: err,
			})

			break
		}

		if entry.IsFolder {
			sub, err := d.processSubfolder(ctx, resolver, entry, item, sum)
			if err != nil {
				return nil, err
			}

			if sub != nil {
				subfolders = append(subfolders, *sub)
			}

			continue
		}

		if err := d.processFile(ctx, resolver, entry, item.path, sum); err != nil {
			return nil, err
		}
	}

	return subfolders, nil
}

// processSubfolder maps a remote folder to a local directory, creates it
// and returns it for queueing. A directory that cannot be created is
// counted as a failure and its subtree is not visited.
func (d *Driver) processSubfolder(
	ctx context.Context, resolver *Resolver, entry gdrive.Entry, parent folderItem, sum *Summary,
) (*folderItem, error) {
	dir, err := resolver.ResolveFolder(ctx, entry, parent.path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(d.abs(dir), dirPerms); err != nil {
		d.recordFailure(sum, &EntryError{
			Kind: KindLocal, RemoteID: entry.ID, Name: entry.Name, Path: dir, Op: "mkdir", Err: err,
		})

		return nil, nil //nolint:nilnil // failure already counted
	}

	folder := store.Folder{RemoteID: entry.ID, Name: entry.Name, ParentID: parent.id, Path: dir}
	if err := d.store.UpsertFolder(ctx, folder); err != nil {
		return nil, d.storeError(ctx, err)
	}

	sum.Folders++

	return &folderItem{id: entry.ID, name: entry.Name, path: dir}, nil
}

// processFile resolves one file entry and fetches it when needed.
func (d *Driver) processFile(
	ctx context.Context, resolver *Resolver, entry gdrive.Entry, dir string, sum *Summary,
) error {
	dec, err := resolver.Resolve(ctx, entry, dir)
	if err != nil {
		return err
	}

	if dec.Action == ActionFetch {
		return d.fetch(ctx, entry, dec, sum)
	}

	switch dec.Reason {
	case ReasonOutsideWindow:
		sum.Filtered++

		d.logger.Debug("outside window",
			slog.String("remote_id", entry.ID),
			slog.String("name", entry.Name),
			slog.Time("modified", entry.ModifiedAt),
		)
	case ReasonUnchanged:
		sum.Skipped++

		d.logger.Info("skipping unchanged file",
			slog.String("remote_id", entry.ID),
			slog.String("path", dec.Path),
			slog.Int("version", dec.Version),
		)
	case ReasonUnsupported:
		sum.Skipped++

		d.logger.Info("skipping unsupported native type",
			slog.String("remote_id", entry.ID),
			slog.String("name", entry.Name),
			slog.String("mime_type", entry.MimeType),
		)
	}

	return nil
}

// fetch downloads or exports entry, puts it in place and records the version.
func (d *Driver) fetch(ctx context.Context, entry gdrive.Entry, dec Decision, sum *Summary) error {
	fetchContent := func(ctx context.Context, w io.Writer) (int64, error) {
		if dec.Export != nil {
			return d.remote.Export(ctx, entry.ID, dec.Export.MimeType, w)
		}

		return d.remote.Download(ctx, entry.ID, w)
	}

	want := expectation{Mtime: entry.ModifiedAt}
	if dec.Export == nil {
		want.Size = entry.Size
		want.MD5 = entry.MD5Checksum
	}

	staged, err := stage(ctx, d.abs(dec.Path), fetchContent, want, d.opts.VerifyRetries, d.logger)
	if err != nil {
		return d.entryFailed(ctx, entry, dec, err, sum)
	}

	var prev *previousCopy
	if dec.SupersededPath != "" {
		prev = &previousCopy{
			path:       d.abs(dec.Previous.Path),
			superseded: d.abs(dec.SupersededPath),
			size:       dec.Previous.Size,
		}
	}

	if err := staged.commit(prev, d.logger); err != nil {
		staged.discard()
		return d.entryFailed(ctx, entry, dec, err, sum)
	}

	// The file is in place; the index must catch up even if ctx is canceled.
	version, err := d.store.RecordVersion(context.WithoutCancel(ctx), store.NewVersion{
		RemoteID:       entry.ID,
		Path:           dec.Path,
		Name:           entry.Name,
		MimeType:       entry.MimeType,
		ParentID:       entry.ParentID,
		ModifiedAt:     entry.ModifiedAt,
		Size:           staged.size,
		Checksum:       entry.MD5Checksum,
		SupersededPath: dec.SupersededPath,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	if version != dec.Version {
		return fmt.Errorf("%w: %s recorded as version %d, resolved as %d",
			ErrResolution, entry.ID, version, dec.Version)
	}

	sum.Fetched++
	sum.Bytes += staged.size

	attrs := []any{
		slog.String("remote_id", entry.ID),
		slog.String("path", dec.Path),
		slog.Int("version", version),
		slog.Int64("size", staged.size),
	}
	if dec.SupersededPath != "" {
		attrs = append(attrs, slog.String("previous", dec.SupersededPath))
	}

	d.logger.Info("saved file", attrs...)

	return nil
}

// entryFailed returns a fatal error for auth failures and cancellation;
// anything else is counted against the entry and the run continues.
func (d *Driver) entryFailed(ctx context.Context, entry gdrive.Entry, dec Decision, err error, sum *Summary) error {
	if fatal := d.fatal(ctx, err); fatal != nil {
		return fatal
	}

	var ee *EntryError
	if !errors.As(err, &ee) {
		ee = &EntryError{Kind: KindRemote, Op: "fetch", Err: err}
	}

	ee.RemoteID, ee.Name, ee.Path = entry.ID, entry.Name, dec.Path
	d.recordFailure(sum, ee)

	return nil
}

func (d *Driver) recordFailure(sum *Summary, ee *EntryError) {
	sum.fail(ee)

	d.logger.Error("entry failed",
		slog.String("remote_id", ee.RemoteID),
		slog.String("name", ee.Name),
		slog.String("path", ee.Path),
		slog.String("kind", string(ee.Kind)),
		slog.String("op", ee.Op),
		slog.String("error", ee.Err.Error()),
	)
}

// fatal maps err to a run-aborting error, or nil if the entry alone failed.
func (d *Driver) fatal(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if gdrive.IsAuthError(err) {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	return nil
}

func (d *Driver) storeError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	return fmt.Errorf("%w: %w", ErrStore, err)
}

func (d *Driver) abs(rel string) string {
	return filepath.Join(d.opts.Root, filepath.FromSlash(rel))
}

func runStatus(ctx context.Context, err error) store.RunStatus {
	switch {
	case err == nil:
		return store.RunCompleted
	case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return store.RunInterrupted
	default:
		return store.RunFailed
	}
}
