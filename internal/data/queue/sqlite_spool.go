package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"stubindex/internal/core/ports"
	"stubindex/internal/shared/util"
)

var _ ports.WriteSpoolPort = (*SQLiteSpool)(nil)

// spoolPayloadVersion is the newest payload layout this spool reads.
const spoolPayloadVersion = 1

// SQLiteSpool persists write requests that overflowed the memory queue or
// failed to apply, so they survive a restart.
type SQLiteSpool struct {
	db         *sql.DB
	projectKey string
}

type spoolPayload struct {
	Version int                `json:"version"`
	Request ports.WriteRequest `json:"request"`
}

func OpenSQLiteSpool(path string, projectKey string, busyTimeout time.Duration) (*SQLiteSpool, error) {
	db, err := util.OpenSQLite(path, busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}
	if err := migrateSpoolSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	key := strings.TrimSpace(projectKey)
	if key == "" {
		key = "default"
	}
	return &SQLiteSpool{db: db, projectKey: key}, nil
}

// Enqueue persists req. A file write replaces any older spooled write for
// the same file so a retry never reapplies stale content.
func (s *SQLiteSpool) Enqueue(req ports.WriteRequest) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("spool not initialized")
	}
	now := time.Now().UTC().UnixMilli()
	if req.ProjectKey == "" {
		req.ProjectKey = s.projectKey
	}
	raw, err := json.Marshal(spoolPayload{Version: spoolPayloadVersion, Request: req})
	if err != nil {
		return fmt.Errorf("marshal spool payload: %w", err)
	}
	return util.WithRetry("enqueue spool write", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		if isFileWrite(req) {
			if _, err := tx.Exec(`DELETE FROM write_spool WHERE project_key = ? AND file_path = ?`, s.projectKey, req.FilePath); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		if _, err := tx.Exec(`
INSERT INTO write_spool (project_key, operation, file_path, payload, attempts, next_attempt_at, created_at, last_error)
VALUES (?, ?, ?, ?, 0, ?, ?, '')
`, s.projectKey, string(req.Operation), req.FilePath, raw, now, now); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func isFileWrite(req ports.WriteRequest) bool {
	if req.FilePath == "" {
		return false
	}
	return req.Operation == ports.WriteOperationReplaceFile || req.Operation == ports.WriteOperationDeleteFile
}

func (s *SQLiteSpool) DequeueBatch(ctx context.Context, maxItems int) ([]ports.SpoolRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("spool not initialized")
	}
	if maxItems <= 0 {
		maxItems = 1
	}
	now := time.Now().UTC().UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
SELECT id, payload, attempts
FROM write_spool
WHERE project_key = ? AND next_attempt_at <= ?
ORDER BY id ASC
LIMIT ?
`, s.projectKey, now, maxItems)
	if err != nil {
		return nil, fmt.Errorf("dequeue spool batch: %w", err)
	}
	defer rows.Close()

	out := make([]ports.SpoolRow, 0, maxItems)
	for rows.Next() {
		var (
			id       int64
			raw      []byte
			attempts int
		)
		if err := rows.Scan(&id, &raw, &attempts); err != nil {
			return nil, fmt.Errorf("scan spool row: %w", err)
		}
		var payload spoolPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode spool payload id=%d: %w", id, err)
		}
		if payload.Version > spoolPayloadVersion {
			return nil, fmt.Errorf("spool payload id=%d has unsupported version %d", id, payload.Version)
		}
		out = append(out, ports.SpoolRow{
			ID:       id,
			Request:  payload.Request,
			Attempts: attempts,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spool rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteSpool) Ack(ids []int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("spool not initialized")
	}
	if len(ids) == 0 {
		return nil
	}
	return s.inTx("ack spool rows", `DELETE FROM write_spool WHERE project_key = ? AND id = ?`, func(stmt *sql.Stmt) error {
		for _, id := range ids {
			if _, err := stmt.Exec(s.projectKey, id); err != nil {
				return fmt.Errorf("row %d: %w", id, err)
			}
		}
		return nil
	})
}

// Nack records a failed attempt and defers the rows until nextAttemptAt.
func (s *SQLiteSpool) Nack(rows []ports.SpoolRow, nextAttemptAt time.Time, lastErr string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("spool not initialized")
	}
	if len(rows) == 0 {
		return nil
	}
	nextMS := nextAttemptAt.UTC().UnixMilli()
	return s.inTx("nack spool rows", `
UPDATE write_spool
SET attempts = ?, next_attempt_at = ?, last_error = ?
WHERE project_key = ? AND id = ?
`, func(stmt *sql.Stmt) error {
		for _, row := range rows {
			if _, err := stmt.Exec(row.Attempts+1, nextMS, lastErr, s.projectKey, row.ID); err != nil {
				return fmt.Errorf("row %d: %w", row.ID, err)
			}
		}
		return nil
	})
}

// DropExhausted deletes rows that failed at least maxAttempts times and
// returns how many were removed.
func (s *SQLiteSpool) DropExhausted(ctx context.Context, maxAttempts int) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("spool not initialized")
	}
	if maxAttempts <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM write_spool WHERE project_key = ? AND attempts >= ?`, s.projectKey, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("drop exhausted spool rows: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteSpool) inTx(op, query string, fn func(*sql.Stmt) error) error {
	return util.WithRetry(op, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		stmt, err := tx.Prepare(query)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("prepare: %w", err)
		}
		if err := fn(stmt); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return err
		}
		_ = stmt.Close()
		return tx.Commit()
	})
}

func (s *SQLiteSpool) PendingCount(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("spool not initialized")
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM write_spool WHERE project_key = ?`, s.projectKey).Scan(&count); err != nil {
		return 0, fmt.Errorf("count spool rows: %w", err)
	}
	return count, nil
}

func (s *SQLiteSpool) HighWater(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("spool not initialized")
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM write_spool WHERE project_key = ?`, s.projectKey).Scan(&id); err != nil {
		return 0, fmt.Errorf("read spool high water: %w", err)
	}
	return id, nil
}

// DiscardSuperseded deletes spooled file writes for paths whose id is at most
// upTo. Rows spooled later are newer than the caller's writes and survive.
func (s *SQLiteSpool) DiscardSuperseded(ctx context.Context, paths []string, upTo int64) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("spool not initialized")
	}
	if len(paths) == 0 || upTo <= 0 {
		return 0, nil
	}
	removed := 0
	err := s.inTx("discard superseded spool rows", `
DELETE FROM write_spool
WHERE project_key = ? AND file_path = ? AND file_path <> '' AND id <= ?
`, func(stmt *sql.Stmt) error {
		removed = 0
		for _, path := range paths {
			res, err := stmt.ExecContext(ctx, s.projectKey, path, upTo)
			if err != nil {
				return fmt.Errorf("path %s: %w", path, err)
			}
			n, _ := res.RowsAffected()
			removed += int(n)
		}
		return nil
	})
	return removed, err
}

func (s *SQLiteSpool) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
