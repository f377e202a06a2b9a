package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tonimelisma/gdrive-backup/internal/logging"
)

// exitInterrupted is the conventional status for a process ended by SIGINT.
const exitInterrupted = 130

// errInterrupted is the cancellation cause after SIGINT or SIGTERM.
var errInterrupted = errors.New("interrupted by signal")

// interruptWatcher turns operator signals into cancellation. The first
// signal cancels the run, which drops the download in flight and records
// the run as interrupted. A second signal exits at once.
type interruptWatcher struct {
	signals <-chan os.Signal
	exit    func(code int)
	notice  func(format string, args ...any)
	logger  *slog.Logger
}

// watchInterrupts installs SIGINT/SIGTERM handling for one command. The
// returned stop must be called when the command returns; it releases the
// handlers and cancels ctx.
func watchInterrupts(parent context.Context, cc *CLIContext) (context.Context, func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	w := &interruptWatcher{signals: sigCh, exit: os.Exit, notice: cc.Statusf, logger: cc.Logger}
	ctx, stop := w.watch(parent)

	return ctx, func() {
		signal.Stop(sigCh)
		stop()
	}
}

func (w *interruptWatcher) watch(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-w.signals:
			w.logger.Warn("interrupt received, stopping run", slog.String("signal", sig.String()))
			w.notice("\nStopping; the file in progress will be fetched next run. Press Ctrl-C again to quit now.\n")
			cancel(errInterrupted)
		case <-done:
			return
		}

		select {
		case sig := <-w.signals:
			w.logger.Log(context.Background(), logging.LevelCritical, "second interrupt, exiting immediately",
				slog.String("signal", sig.String()),
			)
			w.exit(exitInterrupted)
		case <-done:
		}
	}()

	return ctx, sync.OnceFunc(func() {
		close(done)
		cancel(context.Canceled)
	})
}

// interrupted reports whether ctx was canceled by an operator signal.
func interrupted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), errInterrupted)
}
