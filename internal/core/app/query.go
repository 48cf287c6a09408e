package app

import (
	"context"
	"log/slog"
	"os"

	"stubindex/internal/core/app/helpers"
	"stubindex/internal/core/errors"
	"stubindex/internal/engine/index"
	"stubindex/internal/engine/stub"
)

// Lookup returns the sorted files holding key in index id.
func (a *App) Lookup(ctx context.Context, id index.ID, key string) ([]string, error) {
	if !id.Valid() {
		return nil, errors.Newf(errors.CodeValidationError, "invalid index id %d", uint8(id))
	}
	return a.store.Lookup(ctx, id, key)
}

// Keys lists the distinct keys of index id starting with prefix.
func (a *App) Keys(ctx context.Context, id index.ID, prefix string, limit int) ([]string, error) {
	if !id.Valid() {
		return nil, errors.Newf(errors.CodeValidationError, "invalid index id %d", uint8(id))
	}
	return a.store.Keys(ctx, id, prefix, limit)
}

// Summary returns the stored header of path. A record that fails to decode
// yields DECODE_ERROR and the file is re-indexed so the next call succeeds.
func (a *App) Summary(ctx context.Context, path string) (stub.FileHeader, error) {
	key := helpers.FileKey(a.Paths.ProjectRoot, path)
	header, err := a.store.LoadSummary(ctx, key)
	if err == nil {
		return header, nil
	}
	if errors.IsCode(err, errors.CodeDecode) {
		slog.Warn("stored file summary is corrupt, re-indexing", "path", key, "error", err)
		abs := helpers.FilePath(a.Paths.ProjectRoot, key)
		if _, statErr := os.Stat(abs); statErr == nil {
			if _, reindexErr := a.indexFiles(ctx, "", []string{abs}, true); reindexErr != nil {
				slog.Warn("re-index after decode failure failed", "path", key, "error", reindexErr)
			}
		}
	}
	return stub.FileHeader{}, err
}

// Dump builds and emits path without touching the store. Occurrences of the
// well-formed part of a malformed file are returned with the MALFORMED_STUB
// error.
func (a *App) Dump(path string) ([]index.Occurrence, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read file"), errors.CtxPath, path)
	}
	occurrences, _, err := a.build(path, content)
	return occurrences, err
}
