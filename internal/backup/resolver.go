package backup

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/tonimelisma/gdrive-backup/internal/gdrive"
	"github.com/tonimelisma/gdrive-backup/internal/store"
)

// Action is what the driver should do with a file entry.
type Action int

const (
	ActionSkip Action = iota
	ActionFetch
)

func (a Action) String() string {
	if a == ActionFetch {
		return "fetch"
	}

	return "skip"
}

// SkipReason explains an ActionSkip decision.
type SkipReason string

const (
	ReasonOutsideWindow SkipReason = "outside-window"
	ReasonUnchanged     SkipReason = "unchanged"
	ReasonUnsupported   SkipReason = "unsupported"
)

// Index is the read side of the metadata store the resolver needs.
type Index interface {
	LookupCurrent(ctx context.Context, remoteID string) (*store.Record, error)
	PathInUse(ctx context.Context, path, exceptID string) (bool, error)
}

// Decision is the resolver's verdict for one file entry.
type Decision struct {
	Action Action
	Reason SkipReason // set for ActionSkip

	// Path is the slash-separated target path relative to the backup root.
	Path    string
	Version int

	// Export is set for native documents, which are exported rather than
	// downloaded.
	Export *gdrive.ExportFormat

	// Previous is the current record before this run, if any.
	Previous *store.Record

	// SupersededPath is where Previous's file moves when a new version
	// takes over; empty for first versions.
	SupersededPath string
}

// Resolver decides, per file entry, whether to fetch it and where it goes.
// It also hands out folder paths so files and directories never collide.
// A Resolver lives for one run.
type Resolver struct {
	index        Index
	window       Window
	convertedDir string

	// dirs holds every directory path claimed during this run.
	dirs map[string]struct{}
}

// NewResolver returns a resolver for one run. convertedDir is the root-level
// directory receiving exported native documents.
func NewResolver(index Index, window Window, convertedDir string) *Resolver {
	return &Resolver{
		index:        index,
		window:       window,
		convertedDir: convertedDir,
		dirs:         make(map[string]struct{}),
	}
}

// ReserveDir claims path as a directory so no file or other folder is
// placed there.
func (r *Resolver) ReserveDir(p string) {
	r.dirs[p] = struct{}{}
}

// ResolveFolder picks the local directory for a remote folder under
// parentDir and reserves it. Sibling folders with the same sanitized name
// get "name (N)" suffixes in listing order.
func (r *Resolver) ResolveFolder(ctx context.Context, entry gdrive.Entry, parentDir string) (string, error) {
	p, err := r.freePath(ctx, parentDir, sanitizeName(entry.Name), "")
	if err != nil {
		return "", err
	}

	r.ReserveDir(p)

	return p, nil
}

// Resolve decides what to do with a file entry whose parent folder maps to
// parentDir.
func (r *Resolver) Resolve(ctx context.Context, entry gdrive.Entry, parentDir string) (Decision, error) {
	if !r.window.Contains(entry.ModifiedAt) {
		return Decision{Action: ActionSkip, Reason: ReasonOutsideWindow}, nil
	}

	dir, name := parentDir, sanitizeName(entry.Name)

	var export *gdrive.ExportFormat

	if gdrive.IsNative(entry.MimeType) {
		format, ok := gdrive.ExportFormatFor(entry.MimeType)
		if !ok {
			return Decision{Action: ActionSkip, Reason: ReasonUnsupported}, nil
		}

		export = &format
		dir, name = r.convertedDir, withExtension(name, format.Extension)
	}

	prev, err := r.index.LookupCurrent(ctx, entry.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %w", ErrStore, err)
	}

	if prev == nil {
		target, err := r.freePath(ctx, dir, name, entry.ID)
		if err != nil {
			return Decision{}, err
		}

		return Decision{Action: ActionFetch, Path: target, Version: 1, Export: export}, nil
	}

	if !entry.ModifiedAt.After(prev.ModifiedAt) {
		return Decision{
			Action:   ActionSkip,
			Reason:   ReasonUnchanged,
			Path:     prev.Path,
			Version:  prev.Version,
			Export:   export,
			Previous: prev,
		}, nil
	}

	prevDir, prevName := path.Split(prev.Path)

	superseded, err := r.freePath(ctx, strings.TrimSuffix(prevDir, "/"), versionedName(prevName, prev.Version), entry.ID)
	if err != nil {
		return Decision{}, err
	}

	// The current path is freed by the rename, so an unchanged name keeps it.
	target, err := r.freePath(ctx, dir, name, entry.ID)
	if err != nil {
		return Decision{}, err
	}

	if target == superseded {
		return Decision{}, fmt.Errorf("%w: %s: new and superseded version both resolve to %s",
			ErrResolution, entry.ID, target)
	}

	return Decision{
		Action:         ActionFetch,
		Path:           target,
		Version:        prev.Version + 1,
		Export:         export,
		Previous:       prev,
		SupersededPath: superseded,
	}, nil
}

// freePath returns the first of name, "name (2)", "name (3)"... under dir
// that is neither a reserved directory nor occupied by a recorded version
// other than exceptID's current one.
func (r *Resolver) freePath(ctx context.Context, dir, name, exceptID string) (string, error) {
	for n := 1; n <= maxDisambiguation; n++ {
		candidate := joinRel(dir, numberedName(name, n))

		if _, reserved := r.dirs[candidate]; reserved {
			continue
		}

		inUse, err := r.index.PathInUse(ctx, candidate, exceptID)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrStore, err)
		}

		if !inUse {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: no free name for %s in %q", ErrResolution, name, dir)
}
