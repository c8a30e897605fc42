package pgcache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/grounder/internal/cache/cachetest"
)

func TestPostgresCache(t *testing.T) {
	// Only run this test if GROUNDER_TEST_PG_DSN is set
	dsn := os.Getenv("GROUNDER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres cache test: GROUNDER_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	c, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres cache: %v", err)
	}
	defer c.Close()

	_, _ = c.pool.Exec(ctx, `DELETE FROM validation_cache`)
	cachetest.Run(t, c)

	if err := c.Put(ctx, "q", "https://example.com/expired", cachetest.SampleEntry(), time.Millisecond); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if e, err := c.Get(ctx, "q", "https://example.com/expired"); err != nil || e != nil {
		t.Errorf("expected expired miss, got %v %v", e, err)
	}
}
