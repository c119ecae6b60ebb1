package clientenv

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last change.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a Store when a .env file in the loader's directory changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	store    *Store
	logger   *slog.Logger
	debounce time.Duration

	// reloaded is signalled after every reload attempt. Tests use it.
	reloaded chan error
}

// NewWatcher starts watching the loader's directory. The directory itself is
// watched rather than single files so that editors which replace files on
// save, and files created later, are both seen.
func NewWatcher(store *Store, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	dir := store.loader.Dir
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching %q: %w", dir, err)
	}
	return &Watcher{
		watcher:  fw,
		store:    store,
		logger:   logger,
		debounce: DefaultDebounce,
	}, nil
}

// Run processes file events until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !isEnvFile(event.Name) || (event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write)) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			err := w.store.Reload()
			if err != nil {
				w.logger.Warn("client env reload failed", "error", err)
			} else {
				w.logger.Info("client env reloaded", "vars", len(w.store.Snapshot()))
			}
			if w.reloaded != nil {
				select {
				case w.reloaded <- err:
				default:
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("client env watcher error", "error", err)
		}
	}
}

func isEnvFile(path string) bool {
	base := filepath.Base(path)
	return base == ".env" || strings.HasPrefix(base, ".env.")
}
