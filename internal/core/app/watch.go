package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"stubindex/internal/core/app/helpers"
	"stubindex/internal/core/config"
	"stubindex/internal/core/ports"
	"stubindex/internal/core/watcher"
	"stubindex/internal/shared/observability"
)

// StartWatcher re-indexes files under the watch paths as they change until
// StopWatcher or Close is called.
func (a *App) StartWatcher() error {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if a.watcher != nil {
		return nil
	}

	w, err := watcher.NewWatcher(watcher.Options{
		Debounce:     a.Config.Watch.Debounce,
		ExcludeDirs:  a.Config.Exclude.Dirs,
		ExcludeFiles: a.Config.Exclude.Files,
		Extensions:   a.Config.Index.Extensions,
		Rate:         a.Config.Watch.Rate,
	}, func(paths []string) {
		if err := a.HandleChanges(context.Background(), paths); err != nil {
			slog.Warn("failed to handle file changes", "count", len(paths), "error", err)
		}
	})
	if err != nil {
		return err
	}
	if err := w.Watch(helpers.UniqueScanRoots(a.Config.WatchPaths)); err != nil {
		_ = w.Close()
		return err
	}
	a.watcher = w
	slog.Info("watching for changes", "paths", a.Config.WatchPaths, "debounce", a.Config.Watch.Debounce)
	return nil
}

func (a *App) StopWatcher() {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if a.watcher == nil {
		return
	}
	if err := a.watcher.Close(); err != nil {
		slog.Warn("failed to close watcher", "error", err)
	}
	a.watcher = nil
}

// ApplyConfig takes the settings of a reloaded configuration that can change
// at runtime.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if a.watcher != nil && cfg.Watch.Debounce > 0 {
		a.watcher.SetDebounce(cfg.Watch.Debounce)
	}
	slog.Info("configuration reloaded", "debounce", cfg.Watch.Debounce)
}

// SetChangeHandler registers fn to receive the result of every change batch.
func (a *App) SetChangeHandler(fn func(ports.ScanResult)) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	a.onChange = fn
}

func (a *App) notifyChange(result ports.ScanResult) {
	a.watchMu.Lock()
	fn := a.onChange
	a.watchMu.Unlock()
	if fn != nil {
		fn(result)
	}
}

// HandleChanges re-indexes the given files and deletes the rows of files that
// no longer exist.
func (a *App) HandleChanges(ctx context.Context, paths []string) error {
	ctx, span := observability.Tracer.Start(ctx, "app.HandleChanges")
	defer span.End()

	existing := make([]string, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		switch {
		case err == nil && info.Mode().IsRegular():
			if _, ok := a.loaderFor(path); ok && a.matcher.Accept(path) {
				existing = append(existing, path)
			}
		case os.IsNotExist(err):
			key := helpers.FileKey(a.Paths.ProjectRoot, path)
			if err := a.enqueueWrite(ports.WriteRequest{Operation: ports.WriteOperationDeleteFile, FilePath: key}); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			slog.Info("file removed from index", "path", key)
		}
	}

	result, err := a.indexFiles(ctx, uuid.NewString(), existing, false)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		slog.Warn("change not indexed", "run_id", result.RunID, "detail", w)
	}
	slog.Info("changes indexed",
		"run_id", result.RunID,
		"files", result.Files,
		"skipped", result.Skipped,
		"malformed", result.Malformed,
	)
	a.notifyChange(result)
	return nil
}
