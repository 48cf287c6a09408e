package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"unicode/utf8"

	domainerrors "stubindex/internal/core/errors"
	"stubindex/internal/core/ports"
	"stubindex/internal/engine/index"
	"stubindex/internal/engine/stub"
	"stubindex/internal/engine/summary"
	"stubindex/internal/shared/observability"
)

// Lookup returns the sorted paths of files that emitted (id, key).
func (s *Store) Lookup(ctx context.Context, id index.ID, key string) ([]string, error) {
	if !id.Valid() {
		return nil, domainerrors.Newf(domainerrors.CodeValidationError, "invalid index id %d", id)
	}
	cacheKey := id.String() + "\x00" + key
	if files, ok := s.lookups.Get(cacheKey); ok {
		observability.LookupCacheTotal.WithLabelValues("hit").Inc()
		return slices.Clone(files), nil
	}
	observability.LookupCacheTotal.WithLabelValues("miss").Inc()

	gen := s.lookupGeneration()
	rows, err := s.query(ctx, s.db, `
SELECT file_path FROM occurrences
WHERE project_key = ? AND index_id = ? AND key = ?
ORDER BY file_path
`, s.projectKey, id.String(), key)
	if err != nil {
		return nil, fmt.Errorf("lookup %s(%q): %w", id, key, err)
	}
	files, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("lookup %s(%q): %w", id, key, err)
	}
	s.cacheLookup(gen, cacheKey, files)
	return slices.Clone(files), nil
}

func (s *Store) lookupGeneration() uint64 {
	s.lookupMu.Lock()
	defer s.lookupMu.Unlock()
	return s.lookupGen
}

// cacheLookup stores files unless the cache was purged since gen was read.
func (s *Store) cacheLookup(gen uint64, cacheKey string, files []string) {
	s.lookupMu.Lock()
	defer s.lookupMu.Unlock()
	if gen != s.lookupGen {
		return
	}
	s.lookups.Add(cacheKey, files)
}

func (s *Store) purgeLookups() {
	s.lookupMu.Lock()
	defer s.lookupMu.Unlock()
	s.lookupGen++
	s.lookups.Purge()
}

// Keys lists the distinct keys of an index that start with prefix, in order.
// A non-positive limit returns every match.
func (s *Store) Keys(ctx context.Context, id index.ID, prefix string, limit int) ([]string, error) {
	if !id.Valid() {
		return nil, domainerrors.Newf(domainerrors.CodeValidationError, "invalid index id %d", id)
	}
	q := `SELECT DISTINCT key FROM occurrences WHERE project_key = ? AND index_id = ?`
	args := []any{s.projectKey, id.String()}
	if prefix != "" {
		q += ` AND substr(key, 1, ?) = ?`
		args = append(args, utf8.RuneCountInString(prefix), prefix)
	}
	q += ` ORDER BY key`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", id, err)
	}
	keys, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", id, err)
	}
	return keys, nil
}

// LoadSummary decodes the stored header of path. A record that cannot be
// decoded is DECODE_ERROR; callers fall back to reparsing the file.
func (s *Store) LoadSummary(ctx context.Context, path string) (stub.FileHeader, error) {
	var blob []byte
	err := s.queryRow(ctx, s.db, `SELECT summary FROM file_summaries WHERE project_key = ? AND file_path = ?`, s.projectKey, path).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return stub.FileHeader{}, domainerrors.AddContext(
			domainerrors.New(domainerrors.CodeNotFound, "no summary stored for file"), domainerrors.CtxPath, path)
	}
	if err != nil {
		return stub.FileHeader{}, fmt.Errorf("load summary for %q: %w", path, err)
	}

	h, err := summary.Decode(blob, s)
	if err != nil {
		observability.SummaryDecodeErrorsTotal.Inc()
		return stub.FileHeader{}, domainerrors.AddContext(err, domainerrors.CtxPath, path)
	}
	return h, nil
}

// ContentHash returns the hash recorded when path was last indexed.
func (s *Store) ContentHash(ctx context.Context, path string) (string, bool, error) {
	var hash string
	err := s.queryRow(ctx, s.db, `SELECT content_hash FROM file_summaries WHERE project_key = ? AND file_path = ?`, s.projectKey, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load content hash for %q: %w", path, err)
	}
	return hash, true, nil
}

// IndexedPaths lists every file with a stored summary, sorted.
func (s *Store) IndexedPaths(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, s.db, `SELECT file_path FROM file_summaries WHERE project_key = ? ORDER BY file_path`, s.projectKey)
	if err != nil {
		return nil, fmt.Errorf("list indexed paths: %w", err)
	}
	return scanStrings(rows)
}

func (s *Store) Stats(ctx context.Context) (ports.StoreStats, error) {
	var st ports.StoreStats
	if err := s.queryRow(ctx, s.db, `SELECT COUNT(1) FROM file_summaries WHERE project_key = ?`, s.projectKey).Scan(&st.Files); err != nil {
		return st, fmt.Errorf("count files: %w", err)
	}
	if err := s.queryRow(ctx, s.db, `SELECT COUNT(1) FROM occurrences WHERE project_key = ?`, s.projectKey).Scan(&st.Occurrences); err != nil {
		return st, fmt.Errorf("count occurrences: %w", err)
	}
	if err := s.queryRow(ctx, s.db, `SELECT COUNT(1) FROM names`).Scan(&st.Names); err != nil {
		return st, fmt.Errorf("count names: %w", err)
	}
	return st, nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
