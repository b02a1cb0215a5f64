package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on a single table. Expiry is evaluated at query
// time against the application clock; Purge removes dead rows.
type Postgres struct {
	pool  *pgxpool.Pool
	owned bool
	now   func() time.Time
}

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	type_tag   TEXT NOT NULL,
	value      BYTEA NOT NULL,
	ttl_ns     BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ
)`

// NewPostgres opens a pool for dsn and creates the entries table if needed.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: postgres pool: %w", err)
	}
	s := NewPostgresFromPool(pool)
	s.owned = true
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func NewPostgresFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

// Migrate creates the entries table.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createEntriesTable); err != nil {
		return fmt.Errorf("store: postgres migrate: %w", err)
	}
	return nil
}

func (s *Postgres) Put(ctx context.Context, key, typeTag string, value []byte, ttl time.Duration) (bool, error) {
	if err := CheckPut(key, typeTag, ttl); err != nil {
		return false, err
	}
	if value == nil {
		value = []byte{}
	}

	created := s.now()
	var expires *time.Time
	if ttl > 0 {
		t := created.Add(ttl)
		expires = &t
	}

	_, err := s.pool.Exec(ctx, `
INSERT INTO cache_entries (key, type_tag, value, ttl_ns, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (key) DO UPDATE SET
	type_tag = EXCLUDED.type_tag,
	value = EXCLUDED.value,
	ttl_ns = EXCLUDED.ttl_ns,
	created_at = EXCLUDED.created_at,
	expires_at = EXCLUDED.expires_at`,
		key, typeTag, value, int64(ttl), created, expires)
	if err != nil {
		return false, fmt.Errorf("store: postgres put %s: %w", key, err)
	}
	return true, nil
}

func (s *Postgres) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := CheckKey(key); err != nil {
		return Entry{}, false, err
	}

	var (
		e     = Entry{Key: key}
		ttlNs int64
	)
	err := s.pool.QueryRow(ctx, `
SELECT type_tag, value, ttl_ns, created_at FROM cache_entries
WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, s.now()).Scan(&e.TypeTag, &e.Value, &ttlNs, &e.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("store: postgres get %s: %w", key, err)
	}
	e.TTL = time.Duration(ttlNs)
	return e, true, nil
}

func (s *Postgres) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
SELECT key FROM cache_entries
WHERE key LIKE $1 ESCAPE '\' AND (expires_at IS NULL OR expires_at > $2)
ORDER BY key`,
		escapeLike(prefix)+"%", s.now())
	if err != nil {
		return nil, fmt.Errorf("store: postgres list %s: %w", prefix, err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("store: postgres list %s: %w", prefix, err)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

func (s *Postgres) Remove(ctx context.Context, key string) (bool, error) {
	if err := CheckKey(key); err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `
DELETE FROM cache_entries
WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, s.now())
	if err != nil {
		return false, fmt.Errorf("store: postgres delete %s: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Purge deletes expired rows.
func (s *Postgres) Purge(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("store: postgres purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
