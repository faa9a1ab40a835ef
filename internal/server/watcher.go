package server

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher calls onChange once Python sources below root stop changing for
// the debounce interval. A change that arrives while a build is running is
// retried when onChange returns ErrIndexInProgress.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger
	onChange func(context.Context) error
	watcher  *fsnotify.Watcher

	mu    sync.Mutex
	dirty bool
	last  time.Time
}

// NewWatcher watches every directory below root.
func NewWatcher(root string, debounce time.Duration, logger *slog.Logger, onChange func(context.Context) error) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		debounce: debounce,
		logger:   logger,
		onChange: onChange,
		watcher:  fsw,
	}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	w.logger.Info("file watcher started", "root", w.root, "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-ticker.C:
			if w.settled() {
				w.rebuild(ctx)
			}
		}
	}
}

func (w *Watcher) rebuild(ctx context.Context) {
	err := w.onChange(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, ErrIndexInProgress):
		w.logger.Debug("build in progress, rebuild deferred")
		w.markDirty()
	default:
		w.logger.Warn("rebuild failed", "error", err)
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name
	if skipDir(filepath.Base(path)) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addRecursive(path); err != nil {
				w.logger.Warn("failed to watch new directory", "path", path, "error", err)
			}
			w.markDirty()
			return
		}
	}

	// Removing or renaming a directory only reports the directory itself.
	if strings.HasSuffix(path, ".py") || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.logger.Debug("source change detected", "path", path, "op", event.Op.String())
		w.markDirty()
	}
}

func (w *Watcher) markDirty() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dirty = true
	w.last = time.Now()
}

// settled reports and clears a pending change that is older than the
// debounce interval.
func (w *Watcher) settled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirty || time.Since(w.last) < w.debounce {
		return false
	}
	w.dirty = false
	return true
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__pycache__"
}
