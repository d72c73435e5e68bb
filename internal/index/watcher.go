package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, id int)

// Watch runs an fsnotify watcher over the vault's md/ directory until ctx
// is cancelled. Bursts of file events are debounced into a single
// reconciliation pass, executed via the reconcile callback so the owner
// of the index controls locking and persistence. cb (if non-nil) is
// invoked per change after each pass.
//
// This is an eager trigger on top of the same pull-based reconciliation
// the CLI uses; correctness never depends on catching an event.
func Watch(ctx context.Context, vaultRoot string, logger *slog.Logger,
	reconcile func() (ChangeReport, error), cb EventCallback) error {

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	mdDir := filepath.Join(vaultRoot, "md")
	if err := w.Add(mdDir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("dir", mdDir))

	const debounce = 200 * time.Millisecond
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			report, err := reconcile()
			if err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
				continue
			}
			for _, issue := range report.Issues {
				logger.Warn("watcher: skipped malformed note",
					slog.Int("id", issue.ID), slog.String("reason", issue.Reason))
			}
			if cb != nil {
				for _, id := range report.Added {
					cb("created", id)
				}
				for _, id := range report.Modified {
					cb("updated", id)
				}
				for _, id := range report.Deleted {
					cb("deleted", id)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
