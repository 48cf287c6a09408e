package util

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDriverName is the database/sql name registered by modernc.org/sqlite.
const SQLiteDriverName = "sqlite"

const retryAttempts = 5

// SQLiteDSN builds a WAL-mode DSN with the given busy timeout.
func SQLiteDSN(path string, busyTimeout time.Duration) string {
	ms := busyTimeout.Milliseconds()
	if ms <= 0 {
		ms = 5000
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path, ms)
}

// OpenSQLite opens a single-writer SQLite database at path, creating its
// directory first.
func OpenSQLite(path string, busyTimeout time.Duration) (*sql.DB, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("sqlite path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("sqlite path %q is a directory, expected file", cleanPath)
	}
	if err := EnsureParentDir(cleanPath); err != nil {
		return nil, fmt.Errorf("create sqlite directory for %q: %w", cleanPath, err)
	}

	db, err := sql.Open(SQLiteDriverName, SQLiteDSN(cleanPath, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", cleanPath, err)
	}
	return db, nil
}

// WithRetry runs fn until it succeeds, fails with a non-lock error, or the
// attempts run out.
func WithRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsLockError(err) || attempt == retryAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func IsLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
