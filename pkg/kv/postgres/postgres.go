// Package postgres provides a PostgreSQL implementation of kv.Store.
// It uses pgx/v5 for connection pooling; batches run in one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/dolmetsch/pkg/debug"
	"github.com/rhuss/dolmetsch/pkg/kv"
)

// Store is a PostgreSQL-backed key-value store.
type Store struct {
	pool      *pgxpool.Pool
	namespace string
}

var (
	_ kv.Store   = (*Store)(nil)
	_ kv.Batcher = (*Store)(nil)
)

// New connects to the database described by cfg. If MigrateOnStart is
// true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, namespace: cfg.Namespace}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		"SELECT value FROM kv_entries WHERE namespace = $1 AND key = $2",
		s.namespace, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.pool.Exec(ctx, upsertSQL, s.namespace, key, nonNil(value)); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, deleteSQL, s.namespace, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Apply runs every op in one transaction.
func (s *Store) Apply(ctx context.Context, ops []kv.Op) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, op := range ops {
			var err error
			if op.Delete {
				_, err = tx.Exec(ctx, deleteSQL, s.namespace, op.Key)
			} else {
				_, err = tx.Exec(ctx, upsertSQL, s.namespace, op.Key, nonNil(op.Value))
			}
			if err != nil {
				return fmt.Errorf("batch op %s: %w", op.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		debug.Log("storage", "postgres batch rolled back", "ops", len(ops), "error", err.Error())
		return err
	}
	return nil
}

// HealthCheck pings the pool. cmd/mcp-server reports it on /healthz.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const (
	upsertSQL = `
		INSERT INTO kv_entries (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`
	deleteSQL = "DELETE FROM kv_entries WHERE namespace = $1 AND key = $2"
)

// nonNil keeps the NOT NULL constraint satisfied for empty values.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
