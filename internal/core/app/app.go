package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"stubindex/internal/core/config"
	"stubindex/internal/core/ports"
	"stubindex/internal/core/watcher"
	"stubindex/internal/data/history"
	"stubindex/internal/data/store"
	"stubindex/internal/engine/extension"
	"stubindex/internal/engine/index"
)

// App ties configuration, the occurrence store, stub loaders, the emitter and
// the write pipeline together.
type App struct {
	Config *config.Config
	Paths  config.ResolvedPaths

	store   ports.OccurrenceStore
	loaders map[string]ports.StubLoader
	emitter *index.Emitter
	matcher *watcher.Matcher
	history *history.Store

	writeQueue   ports.WriteQueuePort
	writeSpool   ports.WriteSpoolPort
	writeMu      sync.Mutex
	workerCancel context.CancelFunc
	workerDone   chan struct{}
	wake         chan struct{}

	watchMu  sync.Mutex
	watcher  *watcher.Watcher
	onChange func(ports.ScanResult)
}

// New resolves the configured paths relative to the working directory and
// opens the configured store.
func New(cfg *config.Config) (*App, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.Options{
		Driver:      cfg.DB.Driver,
		Path:        paths.DBPath,
		DSN:         cfg.DB.DSN,
		BusyTimeout: cfg.DB.BusyTimeout,
		ProjectKey:  cfg.DB.ProjectKey,
		CacheSize:   cfg.Caches.Lookups,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a, err := NewWithStore(cfg, paths, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if cfg.History.IsEnabled() {
		h, err := history.Open(paths.HistoryPath)
		if err != nil {
			_ = a.Close(context.Background())
			return nil, fmt.Errorf("open run history: %w", err)
		}
		a.history = h
	}
	return a, nil
}

// NewWithStore builds an App over an already opened store. The App owns st
// afterwards and closes it in Close.
func NewWithStore(cfg *config.Config, paths config.ResolvedPaths, st ports.OccurrenceStore) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}

	matcher, err := watcher.NewMatcher(cfg.Exclude.Dirs, cfg.Exclude.Files, cfg.Index.Extensions)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Paths:   paths,
		store:   st,
		loaders: make(map[string]ports.StubLoader),
		emitter: index.NewEmitter(extension.Indexer{}),
		matcher: matcher,
	}
	for _, l := range defaultLoaders() {
		a.RegisterLoader(l)
	}

	if err := a.initWriteQueue(); err != nil {
		return nil, err
	}
	return a, nil
}

// RegisterLoader routes every extension of l to it, replacing earlier loaders.
func (a *App) RegisterLoader(l ports.StubLoader) {
	for _, ext := range l.Extensions() {
		a.loaders[ext] = l
	}
}

func (a *App) loaderFor(path string) (ports.StubLoader, bool) {
	ext, ok := a.matcher.Extension(path)
	if !ok {
		return nil, false
	}
	l, ok := a.loaders[ext]
	return l, ok
}

// Store exposes the underlying occurrence store.
func (a *App) Store() ports.OccurrenceStore {
	return a.store
}

// Close stops the watcher, drains pending writes and closes the store.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.StopWatcher()

	drainTimeout := 10 * time.Second
	if a.Config != nil && a.Config.WriteQueue.ShutdownDrainTimeout > 0 {
		drainTimeout = a.Config.WriteQueue.ShutdownDrainTimeout
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, drainTimeout)
		defer cancel()
	}
	if err := a.stopWriteWorker(ctx); err != nil {
		return err
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			return err
		}
		a.history = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			return err
		}
		a.store = nil
	}
	return nil
}
