package watchdog

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/nivora/mailsync/internal/database"
	"github.com/nivora/mailsync/internal/notify"
)

// Watchdog reaps zombie sync work: a liveness marker whose process has been
// running past the ceiling is assumed stuck, the process is killed, and the
// marker cleared so the next dispatch can claim the work.
type Watchdog struct {
	db       *database.DB
	notifier notify.Notifier
	logger   *slog.Logger

	interval time.Duration
	ceiling  time.Duration

	// overridable for tests
	probe func(pid int) bool
	kill  func(pid int) error
}

// New creates a watchdog
func New(db *database.DB, notifier notify.Notifier, interval, ceiling time.Duration, logger *slog.Logger) *Watchdog {
	return &Watchdog{
		db:       db,
		notifier: notifier,
		logger:   logger.With("component", "watchdog"),
		interval: interval,
		ceiling:  ceiling,
		probe:    processAlive,
		kill: func(pid int) error {
			return syscall.Kill(pid, syscall.SIGKILL)
		},
	}
}

// Run checks markers on the configured interval until the context is canceled
func (w *Watchdog) Run(ctx context.Context, markers ...string) error {
	w.logger.Info("watchdog started", "interval", w.interval, "ceiling", w.ceiling)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watchdog stopping")
			return nil
		case <-ticker.C:
			for _, name := range markers {
				if err := w.CheckAndReap(ctx, name); err != nil {
					w.logger.Error("watchdog check failed", "marker", name, "error", err)
				}
			}
		}
	}
}

// CheckAndReap inspects one liveness marker. Markers within the ceiling are
// left alone; overdue ones get their process killed (when still alive) and
// the marker is cleared either way.
func (w *Watchdog) CheckAndReap(ctx context.Context, name string) error {
	marker, err := w.db.GetMarker(ctx, name)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	age := time.Since(marker.StartedAt)
	if age < w.ceiling {
		return nil
	}

	// The marker may name this very process when the watchdog was started
	// inside the worker by mistake. Killing it would end the alert and the
	// cleanup with it, so only report and clear.
	if marker.PID == os.Getpid() {
		w.logger.Error("stuck marker names the watchdog's own process, refusing to kill",
			"marker", name, "pid", marker.PID, "age", age.Round(time.Second))
		w.notifier.ZombieKilled(ctx, name, marker.PID, age, notify.ReapKillFailed)
		return w.db.ClearMarker(ctx, name)
	}

	outcome := notify.ReapAlreadyGone
	if w.probe(marker.PID) {
		w.logger.Warn("killing stuck sync worker",
			"marker", name, "pid", marker.PID, "age", age.Round(time.Second))
		if err := w.kill(marker.PID); err != nil {
			w.logger.Error("failed to kill stuck worker",
				"marker", name, "pid", marker.PID, "error", err)
			outcome = notify.ReapKillFailed
		} else {
			outcome = notify.ReapKilled
		}
	} else {
		w.logger.Warn("stuck marker with no live process, clearing",
			"marker", name, "pid", marker.PID, "age", age.Round(time.Second))
	}

	w.notifier.ZombieKilled(ctx, name, marker.PID, age, outcome)

	// Clear even when the kill failed so the next dispatch is not blocked
	return w.db.ClearMarker(ctx, name)
}

// processAlive probes a pid with signal 0
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else
	return errors.Is(err, syscall.EPERM)
}
