package backup

import (
	"time"

	"github.com/tonimelisma/gdrive-backup/internal/gdrive"
)

// Window is the half-open modification-time range [Start, End) a run
// backs up. A zero bound leaves that side open.
type Window struct {
	Start time.Time
	End   time.Time
}

// DateWindow builds the window covering the calendar days first through
// last, both inclusive, in the location of the given dates.
func DateWindow(first, last time.Time) Window {
	y, m, d := first.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, first.Location())

	y, m, d = last.Date()
	end := time.Date(y, m, d+1, 0, 0, 0, 0, last.Location())

	return Window{Start: start.UTC(), End: end.UTC()}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}

	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}

	return true
}

// ListFilter converts the window into a remote listing filter.
func (w Window) ListFilter() gdrive.ListFilter {
	return gdrive.ListFilter{ModifiedFrom: w.Start, ModifiedBefore: w.End}
}
