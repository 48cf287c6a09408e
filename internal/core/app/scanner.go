package app

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stubindex/internal/core/app/helpers"
	"stubindex/internal/core/errors"
	"stubindex/internal/core/ports"
	"stubindex/internal/engine/index"
	"stubindex/internal/engine/stub"
	"stubindex/internal/shared/observability"
	"stubindex/internal/shared/util"
)

// fileOutcome is the result of indexing one file.
type fileOutcome struct {
	key       string
	record    *ports.FileRecord
	skipped   bool
	malformed bool
	discard   bool
	err       error
}

// IndexPaths indexes every accepted file under req.Paths, or under the
// configured watch paths when none are given. A run over the watch paths also
// prunes rows of files that no longer exist.
func (a *App) IndexPaths(ctx context.Context, req ports.ScanRequest) (ports.ScanResult, error) {
	runID := uuid.NewString()
	ctx, span := observability.Tracer.Start(ctx, "app.IndexPaths", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	started := time.Now()
	defer func() { observability.IndexRunDuration.Observe(time.Since(started).Seconds()) }()

	full := len(req.Paths) == 0
	roots := req.Paths
	if full {
		roots = a.Config.WatchPaths
	}
	roots = helpers.UniqueScanRoots(roots)

	files, err := a.ScanDirectories(roots)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ports.ScanResult{RunID: runID}, errors.AddContext(err, errors.CtxOperation, "scan_directories")
	}
	slog.Info("index run started", "run_id", runID, "roots", len(roots), "files", len(files))

	result, err := a.indexFiles(ctx, runID, files, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	if full {
		keys := make([]string, 0, len(files))
		for _, f := range files {
			keys = append(keys, helpers.FileKey(a.Paths.ProjectRoot, f))
		}
		if err := a.enqueueWrite(ports.WriteRequest{Operation: ports.WriteOperationPruneToPaths, Paths: keys}); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("prune: %v", err))
		}
	}

	span.SetAttributes(
		attribute.Int("files", result.Files),
		attribute.Int("skipped", result.Skipped),
		attribute.Int("malformed", result.Malformed),
		attribute.Int("occurrences", result.Occurrences),
	)
	slog.Info("index run finished",
		"run_id", runID,
		"files", result.Files,
		"skipped", result.Skipped,
		"malformed", result.Malformed,
		"occurrences", result.Occurrences,
		"warnings", len(result.Warnings),
		"duration", time.Since(started),
	)
	a.recordRun(result, started)
	return result, nil
}

// ScanDirectories lists the accepted files under roots in sorted order. Roots
// that are files are returned as is when accepted.
func (a *App) ScanDirectories(roots []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && a.matcher.SkipDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !a.matcher.Accept(path) {
				return nil
			}
			if _, ok := a.loaderFor(path); !ok {
				return nil
			}
			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.AddContext(err, errors.CtxPath, root)
		}
	}
	sort.Strings(files)
	return files, nil
}

// indexFiles runs the per-file pipeline over a bounded worker pool and
// routes the resulting writes through the write queue.
func (a *App) indexFiles(ctx context.Context, runID string, files []string, force bool) (ports.ScanResult, error) {
	result := ports.ScanResult{RunID: runID}
	if len(files) == 0 {
		return result, nil
	}

	workers := a.Config.Index.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(files) {
		workers = len(files)
	}

	jobs := make(chan string)
	outcomes := make(chan fileOutcome)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				outcomes <- a.indexFile(ctx, path, force)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, path := range files {
			select {
			case jobs <- path:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for out := range outcomes {
		a.collectOutcome(&result, out)
	}
	sort.Strings(result.Warnings)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (a *App) collectOutcome(result *ports.ScanResult, out fileOutcome) {
	if out.malformed {
		result.Malformed++
	}
	if out.err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", out.key, out.err))
	}

	switch {
	case out.skipped:
		result.Skipped++
		observability.FilesSkippedTotal.Inc()
	case out.discard:
		if err := a.enqueueWrite(ports.WriteRequest{Operation: ports.WriteOperationDeleteFile, FilePath: out.key}); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: delete: %v", out.key, err))
		}
	case out.record != nil:
		if err := a.enqueueWrite(ports.WriteRequest{
			Operation: ports.WriteOperationReplaceFile,
			FilePath:  out.key,
			File:      out.record,
		}); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: write: %v", out.key, err))
			return
		}
		result.Files++
		result.Occurrences += len(out.record.Occurrences)
		observability.FilesIndexedTotal.Inc()
		countOccurrences(out.record.Occurrences)
	}
}

// indexFile reads, builds and emits one file. Unless force is set, a file
// whose content hash matches the stored one is skipped.
func (a *App) indexFile(ctx context.Context, path string, force bool) fileOutcome {
	key := helpers.FileKey(a.Paths.ProjectRoot, path)
	out := fileOutcome{key: key}
	if err := ctx.Err(); err != nil {
		out.err = err
		return out
	}

	content, err := os.ReadFile(path)
	if err != nil {
		out.err = err
		return out
	}
	hash := util.ContentHash(content)

	if !force && a.Config.Index.SkipsUnchanged() {
		prev, ok, err := a.store.ContentHash(ctx, key)
		if err != nil {
			slog.Warn("failed to read stored content hash", "path", key, "error", err)
		} else if ok && prev == hash {
			out.skipped = true
			return out
		}
	}

	occurrences, header, err := a.build(path, content)
	if err != nil {
		if !errors.IsCode(err, errors.CodeMalformedStub) {
			out.err = err
			out.discard = true
			return out
		}
		out.malformed = true
		out.err = err
		observability.MalformedStubsTotal.Inc()
		slog.Warn("malformed stub subtree", "path", key, "error", err)
		if a.Config.Index.DiscardMalformed() {
			out.discard = true
			return out
		}
	}

	out.record = &ports.FileRecord{
		Path:        key,
		ContentHash: hash,
		Header:      header,
		Occurrences: occurrences,
	}
	return out
}

// build loads path into a stub tree and emits its occurrences. A
// MALFORMED_STUB error is returned alongside the well-formed output.
func (a *App) build(path string, content []byte) ([]index.Occurrence, stub.FileHeader, error) {
	loader, ok := a.loaderFor(path)
	if !ok {
		return nil, stub.FileHeader{}, errors.AddContext(errors.New(errors.CodeNotSupported, "no stub loader for file"), errors.CtxPath, path)
	}
	tree, err := loader.Load(path, content)
	if err != nil {
		return nil, stub.FileHeader{}, err
	}

	collector := index.NewCollector()
	emitErr := a.emitter.Emit(tree, collector)
	if emitErr != nil {
		emitErr = errors.AddContext(emitErr, errors.CtxPath, path)
	}
	return collector.Sorted(), tree.Header(), emitErr
}

func countOccurrences(occs []index.Occurrence) {
	counts := make(map[index.ID]int)
	for _, occ := range occs {
		counts[occ.Index]++
	}
	for id, n := range counts {
		observability.OccurrencesEmittedTotal.WithLabelValues(id.String()).Add(float64(n))
	}
}
