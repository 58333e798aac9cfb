package fsys

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher drives HotReload.Update from filesystem notifications, with a
// periodic tick as a fallback for filesystems that do not deliver events.
type Watcher struct {
	source   *HotReload
	interval time.Duration
	onChange func(paths []string)
	logger   *slog.Logger
}

// NewWatcher creates a watcher for source. onChange receives the paths each
// Update reloaded or dropped. An interval of zero disables the fallback
// tick.
func NewWatcher(source *HotReload, interval time.Duration, onChange func(paths []string)) *Watcher {
	return &Watcher{
		source:   source,
		interval: interval,
		onChange: onChange,
		logger:   source.fs.policy.Log(),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	defer notify.Close()

	if err := w.watchTree(notify, w.source.Dir()); err != nil {
		return err
	}

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.logger.Info("Watching assets", "root", w.source.Dir(), "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-notify.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				// New subdirectories need their own watch.
				if info, err := w.source.fs.root.Stat(w.relative(ev.Name)); err == nil && info.IsDir() {
					if err := w.watchTree(notify, ev.Name); err != nil {
						w.logger.Warn("Failed to watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.update()
			}

		case err, ok := <-notify.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Filesystem watcher error", "error", err)

		case <-tick:
			w.update()
		}
	}
}

func (w *Watcher) update() {
	changed, err := w.source.Update()
	if err != nil {
		w.logger.Warn("Hot reload update failed", "error", err)
	}
	if len(changed) > 0 && w.onChange != nil {
		w.onChange(changed)
	}
}

func (w *Watcher) watchTree(notify *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := notify.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) relative(name string) string {
	rel, err := filepath.Rel(w.source.Dir(), name)
	if err != nil {
		return name
	}
	return rel
}
