package store

import (
	"database/sql"
	"fmt"
)

func migrate(db *sql.DB, d dialect) error {
	if d.driver == DriverPostgres {
		return migratePostgres(db)
	}
	return migrateSQLite(db)
}

// migrateSQLite moves the schema forward using PRAGMA user_version.
func migrateSQLite(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version < 1 {
		_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS names (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  value TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS occurrences (
  project_key TEXT NOT NULL,
  index_id TEXT NOT NULL,
  key TEXT NOT NULL,
  file_path TEXT NOT NULL,
  PRIMARY KEY (project_key, index_id, key, file_path)
);
CREATE INDEX IF NOT EXISTS idx_occurrences_project_file ON occurrences(project_key, file_path);

CREATE TABLE IF NOT EXISTS file_summaries (
  project_key TEXT NOT NULL,
  file_path TEXT NOT NULL,
  summary BLOB NOT NULL,
  indexed_at INTEGER NOT NULL,
  PRIMARY KEY (project_key, file_path)
);

PRAGMA user_version = 1;
`)
		if err != nil {
			return fmt.Errorf("create v1 schema: %w", err)
		}
		version = 1
	}

	if version < 2 {
		stmts := []string{
			`ALTER TABLE file_summaries ADD COLUMN content_hash TEXT NOT NULL DEFAULT '';`,
			`PRAGMA user_version = 2;`,
		}
		for _, stmt := range stmts {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("schema v2 migration: %w", err)
			}
		}
	}

	return nil
}

func migratePostgres(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS names (
  id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
  value TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS occurrences (
  project_key TEXT NOT NULL,
  index_id TEXT NOT NULL,
  key TEXT NOT NULL,
  file_path TEXT NOT NULL,
  PRIMARY KEY (project_key, index_id, key, file_path)
);
CREATE INDEX IF NOT EXISTS idx_occurrences_project_file ON occurrences(project_key, file_path);

CREATE TABLE IF NOT EXISTS file_summaries (
  project_key TEXT NOT NULL,
  file_path TEXT NOT NULL,
  content_hash TEXT NOT NULL DEFAULT '',
  summary BYTEA NOT NULL,
  indexed_at BIGINT NOT NULL,
  PRIMARY KEY (project_key, file_path)
);
`)
	if err != nil {
		return fmt.Errorf("create postgres schema: %w", err)
	}
	return nil
}
