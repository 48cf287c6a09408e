package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"stubindex/internal/shared/observability"
	"stubindex/internal/shared/util"
)

type Options struct {
	Debounce     time.Duration
	ExcludeDirs  []string
	ExcludeFiles []string
	Extensions   []string
	// Rate caps change batches per second; zero leaves them unthrottled.
	Rate float64
}

// Watcher reports debounced, sorted batches of changed files. A file whose
// content hash equals the last reported one is left out of the batch.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	matcher    *Matcher
	limiter    *util.Limiter
	onChange   func([]string)
	callbackMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	pendingMu sync.Mutex
	debounce  time.Duration
	pending   map[string]struct{}
	hashes    map[string]string
	timer     *time.Timer
}

func NewWatcher(opts Options, onChange func([]string)) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}
	matcher, err := NewMatcher(opts.ExcludeDirs, opts.ExcludeFiles, opts.Extensions)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		fsWatcher: fsw,
		matcher:   matcher,
		limiter:   util.NewLimiter(opts.Rate, 1),
		onChange:  onChange,
		ctx:       ctx,
		cancel:    cancel,
		debounce:  opts.Debounce,
		pending:   make(map[string]struct{}),
		hashes:    make(map[string]string),
	}, nil
}

func (w *Watcher) SetDebounce(debounce time.Duration) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.debounce = debounce
}

func (w *Watcher) Watch(paths []string) error {
	for _, path := range paths {
		if err := w.watchRecursive(path); err != nil {
			return err
		}
	}

	go w.run()
	return nil
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.matcher.SkipDir(path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()

			if event.Has(fsnotify.Create) {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					if !w.matcher.SkipDir(event.Name) {
						if err := w.watchRecursive(event.Name); err != nil {
							slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
						} else {
							w.enqueueExistingFiles(event.Name)
						}
					}
					continue
				}
			}

			if !w.matcher.Accept(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.scheduleChange(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flushChanges)
}

func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	candidates := util.SortedStringKeys(w.pending)
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	paths := make([]string, 0, len(candidates))
	for _, path := range candidates {
		if w.changed(path) {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return
	}

	if err := w.limiter.Wait(w.ctx, 1); err != nil {
		return
	}
	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.onChange(paths)
}

// changed compares path's content hash with the last reported one. Removed
// or unreadable files always count as changed.
func (w *Watcher) changed(path string) bool {
	data, err := os.ReadFile(path)

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if err != nil {
		delete(w.hashes, path)
		return true
	}
	hash := util.ContentHash(data)
	if w.hashes[path] == hash {
		return false
	}
	w.hashes[path] = hash
	return true
}

func (w *Watcher) Close() error {
	w.cancel()
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return w.fsWatcher.Close()
}

func (w *Watcher) enqueueExistingFiles(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if w.matcher.Accept(path) {
			w.scheduleChange(path)
		}
		return nil
	})
}
