package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stubindex/internal/core/ports"
	"stubindex/internal/engine/summary"
	"stubindex/internal/shared/util"
)

var _ ports.OccurrenceBatch = (*Batch)(nil)

// Batch applies writes in one transaction. Lookup caches are invalidated on
// commit.
type Batch struct {
	ctx   context.Context
	tx    *sql.Tx
	store *Store
	names *txNames
	dirty bool
}

func (s *Store) BeginBatch(ctx context.Context) (ports.OccurrenceBatch, error) {
	return s.beginBatch(ctx)
}

func (s *Store) beginBatch(ctx context.Context) (*Batch, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	return &Batch{ctx: ctx, tx: tx, store: s, names: newTxNames(ctx, tx, s)}, nil
}

// ReplaceFile swaps every occurrence and the summary of rec.Path.
func (b *Batch) ReplaceFile(rec ports.FileRecord) error {
	if rec.Path == "" {
		return fmt.Errorf("replace file: empty path")
	}
	if err := b.deleteOccurrences(rec.Path); err != nil {
		return err
	}
	if err := b.insertOccurrences(rec); err != nil {
		return err
	}

	blob, err := summary.Encode(rec.Header, b.names)
	if err != nil {
		return fmt.Errorf("encode summary for %q: %w", rec.Path, err)
	}
	_, err = b.store.exec(b.ctx, b.tx, `
INSERT INTO file_summaries (project_key, file_path, content_hash, summary, indexed_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (project_key, file_path) DO UPDATE SET
  content_hash = excluded.content_hash,
  summary = excluded.summary,
  indexed_at = excluded.indexed_at
`, b.store.projectKey, rec.Path, rec.ContentHash, blob, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert summary for %q: %w", rec.Path, err)
	}
	b.dirty = true
	return nil
}

func (b *Batch) DeleteFile(path string) error {
	if err := b.deleteOccurrences(path); err != nil {
		return err
	}
	if _, err := b.store.exec(b.ctx, b.tx, `DELETE FROM file_summaries WHERE project_key = ? AND file_path = ?`, b.store.projectKey, path); err != nil {
		return fmt.Errorf("delete summary for %q: %w", path, err)
	}
	b.dirty = true
	return nil
}

// PruneToPaths deletes every file not listed in paths.
func (b *Batch) PruneToPaths(paths []string) error {
	keep := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		keep[p] = struct{}{}
	}

	rows, err := b.store.query(b.ctx, b.tx, `
SELECT file_path FROM file_summaries WHERE project_key = ?
UNION
SELECT file_path FROM occurrences WHERE project_key = ?
`, b.store.projectKey, b.store.projectKey)
	if err != nil {
		return fmt.Errorf("list indexed paths: %w", err)
	}
	var stale []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return fmt.Errorf("scan indexed path: %w", err)
		}
		if _, ok := keep[p]; !ok {
			stale = append(stale, p)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate indexed paths: %w", err)
	}
	rows.Close()

	for _, p := range stale {
		if err := b.DeleteFile(p); err != nil {
			return err
		}
	}
	return nil
}

func (b *Batch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	b.names.publish()
	if b.dirty {
		b.store.purgeLookups()
	}
	return nil
}

func (b *Batch) Rollback() error {
	return b.tx.Rollback()
}

func (b *Batch) deleteOccurrences(path string) error {
	if _, err := b.store.exec(b.ctx, b.tx, `DELETE FROM occurrences WHERE project_key = ? AND file_path = ?`, b.store.projectKey, path); err != nil {
		return fmt.Errorf("delete occurrences for %q: %w", path, err)
	}
	return nil
}

func (b *Batch) insertOccurrences(rec ports.FileRecord) error {
	if len(rec.Occurrences) == 0 {
		return nil
	}
	stmt, err := b.tx.PrepareContext(b.ctx, b.store.dialect.rebind(`
INSERT INTO occurrences (project_key, index_id, key, file_path)
VALUES (?, ?, ?, ?)
ON CONFLICT DO NOTHING
`))
	if err != nil {
		return fmt.Errorf("prepare occurrence insert: %w", err)
	}
	defer stmt.Close()

	for _, occ := range rec.Occurrences {
		if !occ.Index.Valid() {
			return fmt.Errorf("occurrence for %q has invalid index %d", rec.Path, occ.Index)
		}
		if _, err := stmt.ExecContext(b.ctx, b.store.projectKey, occ.Index.String(), occ.Key, rec.Path); err != nil {
			return fmt.Errorf("insert occurrence %s(%q): %w", occ.Index, occ.Key, err)
		}
	}
	return nil
}

// inBatch runs fn in its own transaction, retrying on lock contention.
func (s *Store) inBatch(ctx context.Context, op string, fn func(*Batch) error) error {
	return util.WithRetry(op, func() error {
		b, err := s.beginBatch(ctx)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			_ = b.Rollback()
			return err
		}
		return b.Commit()
	})
}

func (s *Store) ReplaceFile(ctx context.Context, rec ports.FileRecord) error {
	return s.inBatch(ctx, "replace file", func(b *Batch) error { return b.ReplaceFile(rec) })
}

func (s *Store) DeleteFile(ctx context.Context, path string) error {
	return s.inBatch(ctx, "delete file", func(b *Batch) error { return b.DeleteFile(path) })
}

func (s *Store) PruneToPaths(ctx context.Context, paths []string) error {
	return s.inBatch(ctx, "prune paths", func(b *Batch) error { return b.PruneToPaths(paths) })
}
