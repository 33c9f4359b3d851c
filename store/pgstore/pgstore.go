// Package pgstore persists store snapshots in PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/yitech/klinechart/store"
)

const schema = `CREATE TABLE IF NOT EXISTS chart_snapshots (
	key        TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	selectSnapshot = `SELECT data FROM chart_snapshots WHERE key = $1`
	upsertSnapshot = `INSERT INTO chart_snapshots (key, data, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
)

type Storage struct {
	db *sqlx.DB
}

// Open connects to dsn and creates the snapshot table if needed.
func Open(ctx context.Context, dsn string) (*Storage, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("pgstore: create schema: %w", err)
	}
	return nil
}

func (s *Storage) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, selectSnapshot, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: select %s: %w", key, err)
	}
	return data, nil
}

// Save upserts the snapshot. The payload is sent as text; lib/pq would
// encode []byte as bytea, which JSONB rejects.
func (s *Storage) Save(ctx context.Context, key string, data []byte) error {
	if _, err := s.db.ExecContext(ctx, upsertSnapshot, key, string(data)); err != nil {
		return fmt.Errorf("pgstore: upsert %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

var _ store.Persister = (*Storage)(nil)
