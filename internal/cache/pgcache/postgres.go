// Package pgcache is a Postgres-backed cache.Cache.
package pgcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/grounder/internal/cache"
)

var _ cache.Cache = (*Cache)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS validation_cache (
	cache_key TEXT PRIMARY KEY,
	entry JSONB NOT NULL,
	stored_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ
);
`

// Cache stores entries as JSONB rows in a shared pool.
type Cache struct {
	pool *pgxpool.Pool
}

// New connects to dsn and ensures the schema.
func New(ctx context.Context, dsn string) (*Cache, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres cache: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres cache: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &Cache{pool: pool}, nil
}

func (c *Cache) Get(ctx context.Context, query, rawURL string) (*cache.Entry, error) {
	var data []byte
	err := c.pool.QueryRow(ctx,
		`SELECT entry FROM validation_cache
		 WHERE cache_key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		cache.Key(query, rawURL),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cache entry: %w", err)
	}
	return cache.Unmarshal(data)
}

// Put upserts e. A non-positive ttl never expires.
func (c *Cache) Put(ctx context.Context, query, rawURL string, e *cache.Entry, ttl time.Duration) error {
	if e == nil {
		return nil
	}
	if e.StoredAt.IsZero() {
		cp := *e
		cp.StoredAt = time.Now().UTC()
		e = &cp
	}
	data, err := cache.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	_, err = c.pool.Exec(ctx, `
	INSERT INTO validation_cache (cache_key, entry, stored_at, expires_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (cache_key) DO UPDATE SET
		entry = EXCLUDED.entry,
		stored_at = EXCLUDED.stored_at,
		expires_at = EXCLUDED.expires_at
	`, cache.Key(query, rawURL), data, e.StoredAt, expiresAt)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	c.pool.Close()
	return nil
}
