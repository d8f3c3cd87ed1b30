package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"srtpanel/internal/events"
)

const watchDebounce = 500 * time.Millisecond

// Watcher reloads the JSON datastore when the backing file is modified by
// another process (for example an operator editing profiles by hand). After a
// successful reload it publishes ServerChanged so dependent views refresh.
type Watcher struct {
	store  *Storage
	bus    *events.Bus
	logger *slog.Logger
	fsw    *fsnotify.Watcher
	done   chan struct{}
}

// NewWatcher constructs a Watcher for the provided JSON store. The bus and
// logger are optional.
func NewWatcher(store *Storage, bus *events.Bus, logger *slog.Logger) *Watcher {
	return &Watcher{store: store, bus: bus, logger: logger}
}

// Start begins watching the datastore's directory and returns immediately.
// The watcher stops when ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	// Watch the directory rather than the file: atomic rename-replace writes
	// swap the inode, which would silently detach a file watch.
	dir := filepath.Dir(w.store.FilePath())
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch dir %s: %w", dir, err)
	}
	w.fsw = fsw
	w.done = make(chan struct{})
	go w.loop(ctx)
	return nil
}

// Wait blocks until the watch loop has exited.
func (w *Watcher) Wait() {
	if w.done != nil {
		<-w.done
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.fsw.Close()

	target := filepath.Clean(w.store.FilePath())
	var pendingSince time.Time
	ticker := time.NewTicker(watchDebounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			pendingSince = time.Now()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Error("datastore watch error", "error", err)
			}
		case now := <-ticker.C:
			if pendingSince.IsZero() || now.Sub(pendingSince) < watchDebounce {
				continue
			}
			pendingSince = time.Time{}
			if w.store.persistedWithin(2 * watchDebounce) {
				continue
			}
			if err := w.store.Reload(); err != nil {
				if w.logger != nil {
					w.logger.Error("datastore reload failed", "error", err)
				}
				continue
			}
			if w.logger != nil {
				w.logger.Info("datastore reloaded after external change", "path", target)
			}
			if w.bus != nil {
				w.bus.Publish(events.Event{Kind: events.ServerChanged})
			}
		}
	}
}
