package backup

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tonimelisma/gdrive-backup/internal/store"
)

// Summary reports what one run did.
type Summary struct {
	RunID    string
	Window   Window
	Folders  int
	Fetched  int
	Skipped  int // unchanged or unsupported
	Filtered int // outside the window
	Failed   int
	Bytes    int64
	Duration time.Duration

	// Errors holds every per-entry failure, in the order they happened.
	Errors []*EntryError
}

func (s *Summary) counts() store.RunCounts {
	return store.RunCounts{
		Fetched:  s.Fetched,
		Skipped:  s.Skipped,
		Filtered: s.Filtered,
		Failed:   s.Failed,
		Bytes:    s.Bytes,
	}
}

func (s *Summary) fail(ee *EntryError) {
	s.Failed++
	s.Errors = append(s.Errors, ee)
}

// String renders a one-line human summary.
func (s *Summary) String() string {
	return fmt.Sprintf("%d fetched (%s), %d unchanged, %d outside window, %d failed, %d folders in %s",
		s.Fetched, humanize.Bytes(uint64(s.Bytes)), s.Skipped, s.Filtered, s.Failed, s.Folders,
		s.Duration.Round(time.Millisecond))
}

// LogValue implements slog.LogValuer.
func (s *Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("run_id", s.RunID),
		slog.Int("folders", s.Folders),
		slog.Int("fetched", s.Fetched),
		slog.Int("skipped", s.Skipped),
		slog.Int("filtered", s.Filtered),
		slog.Int("failed", s.Failed),
		slog.Int64("bytes", s.Bytes),
		slog.Duration("duration", s.Duration),
	)
}
