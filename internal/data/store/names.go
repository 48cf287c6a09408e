package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	domainerrors "stubindex/internal/core/errors"
	"stubindex/internal/engine/summary"
	"stubindex/internal/shared/util"
)

var (
	_ summary.NameTable = (*Store)(nil)
	_ summary.NameTable = (*txNames)(nil)
)

// Intern returns the handle of name, inserting it when new.
func (s *Store) Intern(name string) (uint32, error) {
	if h, ok := s.handles.Get(name); ok {
		return h, nil
	}
	var h uint32
	err := util.WithRetry("intern name", func() error {
		var err error
		h, err = s.internName(context.Background(), s.db, name)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.cacheName(name, h)
	return h, nil
}

// Name resolves a handle; unknown handles are NOT_FOUND.
func (s *Store) Name(handle uint32) (string, error) {
	if name, ok := s.names.Get(handle); ok {
		return name, nil
	}
	name, err := s.lookupName(context.Background(), s.db, handle)
	if err != nil {
		return "", err
	}
	s.cacheName(name, handle)
	return name, nil
}

func (s *Store) cacheName(name string, h uint32) {
	s.names.Add(h, name)
	s.handles.Add(name, h)
}

func (s *Store) internName(ctx context.Context, q queryer, name string) (uint32, error) {
	var id int64
	err := s.queryRow(ctx, q, `SELECT id FROM names WHERE value = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.exec(ctx, q, `INSERT INTO names (value) VALUES (?) ON CONFLICT (value) DO NOTHING`, name); err != nil {
			return 0, fmt.Errorf("insert name: %w", err)
		}
		err = s.queryRow(ctx, q, `SELECT id FROM names WHERE value = ?`, name).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve name handle: %w", err)
	}
	if id <= 0 || id > math.MaxUint32 {
		return 0, domainerrors.Newf(domainerrors.CodeInternal, "name id %d out of handle range", id)
	}
	return uint32(id), nil
}

func (s *Store) lookupName(ctx context.Context, q queryer, handle uint32) (string, error) {
	if handle == summary.NullHandle {
		return "", domainerrors.New(domainerrors.CodeNotFound, "null name handle")
	}
	var name string
	err := s.queryRow(ctx, q, `SELECT value FROM names WHERE id = ?`, int64(handle)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domainerrors.Newf(domainerrors.CodeNotFound, "unknown name handle %d", handle)
	}
	if err != nil {
		return "", fmt.Errorf("lookup name %d: %w", handle, err)
	}
	return name, nil
}

// txNames interns through an open transaction. New handles become visible
// to the store's caches only after the transaction commits.
type txNames struct {
	ctx     context.Context
	tx      *sql.Tx
	store   *Store
	pending map[string]uint32
	byID    map[uint32]string
}

func newTxNames(ctx context.Context, tx *sql.Tx, s *Store) *txNames {
	return &txNames{
		ctx:     ctx,
		tx:      tx,
		store:   s,
		pending: make(map[string]uint32),
		byID:    make(map[uint32]string),
	}
}

func (t *txNames) Intern(name string) (uint32, error) {
	if h, ok := t.store.handles.Get(name); ok {
		return h, nil
	}
	if h, ok := t.pending[name]; ok {
		return h, nil
	}
	h, err := t.store.internName(t.ctx, t.tx, name)
	if err != nil {
		return 0, err
	}
	t.pending[name] = h
	t.byID[h] = name
	return h, nil
}

func (t *txNames) Name(handle uint32) (string, error) {
	if name, ok := t.store.names.Get(handle); ok {
		return name, nil
	}
	if name, ok := t.byID[handle]; ok {
		return name, nil
	}
	return t.store.lookupName(t.ctx, t.tx, handle)
}

func (t *txNames) publish() {
	for name, h := range t.pending {
		t.store.cacheName(name, h)
	}
}
