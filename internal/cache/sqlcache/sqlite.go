// Package sqlcache is a SQLite-backed cache.Cache.
package sqlcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/FranksOps/grounder/internal/cache"
)

var _ cache.Cache = (*Cache)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS validation_cache (
	cache_key TEXT PRIMARY KEY,
	entry TEXT NOT NULL,
	stored_at INTEGER NOT NULL,
	expires_at INTEGER
);
`

// Cache stores entries as JSON rows. Expiry is enforced on read.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// New opens dsn with the modernc sqlite driver and ensures the schema.
func New(dsn string) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &Cache{db: db, now: time.Now}, nil
}

func (c *Cache) Get(ctx context.Context, query, rawURL string) (*cache.Entry, error) {
	var (
		data      string
		expiresAt sql.NullInt64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT entry, expires_at FROM validation_cache WHERE cache_key = ?`,
		cache.Key(query, rawURL),
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cache entry: %w", err)
	}
	if expiresAt.Valid && c.now().UnixNano() >= expiresAt.Int64 {
		return nil, nil
	}
	return cache.Unmarshal([]byte(data))
}

// Put upserts e. A non-positive ttl never expires.
func (c *Cache) Put(ctx context.Context, query, rawURL string, e *cache.Entry, ttl time.Duration) error {
	if e == nil {
		return nil
	}
	now := c.now()
	if e.StoredAt.IsZero() {
		cp := *e
		cp.StoredAt = now.UTC()
		e = &cp
	}
	data, err := cache.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: now.Add(ttl).UnixNano(), Valid: true}
	}

	_, err = c.db.ExecContext(ctx, `
	INSERT INTO validation_cache (cache_key, entry, stored_at, expires_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(cache_key) DO UPDATE SET
		entry = excluded.entry,
		stored_at = excluded.stored_at,
		expires_at = excluded.expires_at
	`, cache.Key(query, rawURL), string(data), e.StoredAt.UnixNano(), expiresAt)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// Purge deletes expired rows and reports how many were removed.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM validation_cache WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		c.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return res.RowsAffected()
}

func (c *Cache) Close() error {
	return c.db.Close()
}
