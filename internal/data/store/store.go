// Package store persists occurrences, file summaries and the name intern
// table in SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"stubindex/internal/core/ports"
	"stubindex/internal/shared/util"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

const defaultCacheSize = 4096

var _ ports.OccurrenceStore = (*Store)(nil)

type Options struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration
	ProjectKey  string
	CacheSize   int
}

// Store implements ports.OccurrenceStore and summary.NameTable.
type Store struct {
	db         *sql.DB
	dialect    dialect
	projectKey string

	lookups *lru.Cache[string, []string]
	names   *lru.Cache[uint32, string]
	handles *lru.Cache[string, uint32]

	// lookupGen counts lookup cache purges; lookupMu orders them against
	// cache fills so a result read before a commit is never cached after it.
	lookupMu  sync.Mutex
	lookupGen uint64
}

type dialect struct {
	driver string
}

// rebind rewrites '?' placeholders to Postgres' positional form.
func (d dialect) rebind(q string) string {
	if d.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func Open(opts Options) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" {
		driver = DriverSQLite
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = util.OpenSQLite(opts.Path, opts.BusyTimeout)
		if err != nil {
			return nil, err
		}
	case DriverPostgres:
		db, err = openPostgres(opts.DSN)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported store driver %q", opts.Driver)
	}

	s, err := newStore(db, dialect{driver: driver}, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens a SQLite-backed store at path.
func OpenSQLite(path, projectKey string) (*Store, error) {
	return Open(Options{Driver: DriverSQLite, Path: path, ProjectKey: projectKey})
}

func openPostgres(dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn must not be empty")
	}
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres store: %w", err)
	}
	return db, nil
}

func newStore(db *sql.DB, d dialect, opts Options) (*Store, error) {
	if err := migrate(db, d); err != nil {
		return nil, err
	}

	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	lookups, err := lru.New[string, []string](size)
	if err != nil {
		return nil, fmt.Errorf("create lookup cache: %w", err)
	}
	names, err := lru.New[uint32, string](size)
	if err != nil {
		return nil, fmt.Errorf("create name cache: %w", err)
	}
	handles, err := lru.New[string, uint32](size)
	if err != nil {
		return nil, fmt.Errorf("create handle cache: %w", err)
	}

	key := strings.TrimSpace(opts.ProjectKey)
	if key == "" {
		key = "default"
	}
	return &Store{
		db:         db,
		dialect:    d,
		projectKey: key,
		lookups:    lookups,
		names:      names,
		handles:    handles,
	}, nil
}

func (s *Store) Driver() string {
	return s.dialect.driver
}

func (s *Store) ProjectKey() string {
	return s.projectKey
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, q queryer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, q queryer, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, q queryer, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}
