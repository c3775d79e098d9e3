package pricing

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the price table when the pricing file changes on disk.
// Reload events are debounced to prevent reload storms from editors that
// write files in multiple operations. A failed reload keeps the previous
// table in place.
type Watcher struct {
	table    *Table
	path     string
	debounce time.Duration
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherConfig configures the pricing file watcher.
type WatcherConfig struct {
	// Path is the pricing YAML file to watch.
	Path string

	// Debounce is how long to wait after the last change before reloading.
	// Default: 250ms.
	Debounce time.Duration
}

// NewWatcher creates a watcher that reloads table from cfg.Path on change.
func NewWatcher(table *Table, cfg WatcherConfig) *Watcher {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	return &Watcher{
		table:    table,
		path:     cfg.Path,
		debounce: debounce,
		logger:   slog.Default().With("component", "pricing.watcher"),
	}
}

// Start loads the file once, then watches its directory for changes.
// Watching the directory rather than the file survives atomic-rename saves.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("pricing watcher already running")
	}

	if err := w.table.LoadFile(w.path); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch pricing directory: %w", err)
	}

	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	go w.loop()

	w.logger.Info("pricing watcher started", "path", w.path)
	return nil
}

// Stop halts the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
	w.running = false
	w.logger.Info("pricing watcher stopped")
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			if err := w.table.LoadFile(w.path); err != nil {
				w.logger.Error("pricing reload failed, keeping previous table", "error", err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("pricing watcher error", "error", err)
		}
	}
}
