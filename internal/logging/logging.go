// Package logging builds the process logger: an optional colourised console
// sink and an optional size-rotated log file, fanned out through a single
// slog handler. With both sinks disabled every record is discarded.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// LevelCritical sits above slog.LevelError for failures that end a run.
const LevelCritical = slog.Level(12)

// consoleTimeFormat keeps console lines short; the file carries full timestamps.
const consoleTimeFormat = time.TimeOnly

// Options selects the sinks and their settings.
type Options struct {
	Console    bool
	ConsoleOut *os.File // defaults to os.Stderr
	File       bool
	FilePath   string
	Format     string // "text" or "json" for the file sink
	MaxSize    int64  // rotate the file once it would exceed this many bytes
	MaxBackups int
	Level      slog.Level
}

// New builds a logger from opts. The returned closer flushes and closes the
// log file and must be called before exit; it is a no-op without a file sink.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var (
		handlers []slog.Handler
		closer   io.Closer = nopCloser{}
	)

	if opts.Console {
		out := opts.ConsoleOut
		if out == nil {
			out = os.Stderr
		}

		handlers = append(handlers, tint.NewHandler(out, &tint.Options{
			Level:       opts.Level,
			TimeFormat:  consoleTimeFormat,
			NoColor:     !isatty.IsTerminal(out.Fd()),
			ReplaceAttr: replaceLevel,
		}))
	}

	if opts.File {
		w, err := newRotatingWriter(opts.FilePath, opts.MaxSize, opts.MaxBackups)
		if err != nil {
			return nil, nil, err
		}

		closer = w

		hopts := &slog.HandlerOptions{
			Level:       opts.Level,
			AddSource:   true,
			ReplaceAttr: replaceLevel,
		}

		if opts.Format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(w, hopts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(w, hopts))
		}
	}

	switch len(handlers) {
	case 0:
		return slog.New(slog.DiscardHandler), closer, nil
	case 1:
		return slog.New(handlers[0]), closer, nil
	default:
		return slog.New(newMultiHandler(handlers...)), closer, nil
	}
}

// replaceLevel renders LevelCritical by name instead of "ERROR+4".
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) > 0 {
		return a
	}

	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}

	return a
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// multiHandler forwards each record to every handler enabled for its level.
type multiHandler struct {
	handlers []slog.Handler
}

func newMultiHandler(handlers ...slog.Handler) *multiHandler {
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error

	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}

		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}

	return newMultiHandler(handlers...)
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}

	return newMultiHandler(handlers...)
}
