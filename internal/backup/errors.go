package backup

import (
	"errors"
	"fmt"
)

// Fatal run errors. Everything else is an *EntryError and only fails the
// entry it belongs to.
var (
	// ErrAuthentication means the remote service rejected our credentials.
	ErrAuthentication = errors.New("backup: authentication failed")

	// ErrStore wraps any metadata store failure.
	ErrStore = errors.New("backup: metadata store failure")

	// ErrResolution means the resolver and the store disagree about a
	// version number or no free path could be found.
	ErrResolution = errors.New("backup: path resolution failed")
)

// ErrorKind tells which side of the transfer an entry failed on.
type ErrorKind string

const (
	KindRemote ErrorKind = "remote"
	KindLocal  ErrorKind = "local"
)

// EntryError is a per-entry failure: logged, counted, and skipped.
type EntryError struct {
	Kind     ErrorKind
	RemoteID string
	Name     string
	Path     string // target path, when one was resolved
	Op       string
	Err      error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s %s (%s): %s error: %v", e.Op, e.Name, e.RemoteID, e.Kind, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
