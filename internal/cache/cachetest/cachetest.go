// Package cachetest holds the behaviour checks every cache.Cache backend
// must pass.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/FranksOps/grounder/internal/cache"
	"github.com/FranksOps/grounder/internal/model"
)

// SampleEntry returns a fully passed entry.
func SampleEntry() *cache.Entry {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pass := func() *model.ValidationOutcome {
		return &model.ValidationOutcome{Passed: true, CheckedAt: now, Attempt: 1}
	}
	web := pass()
	web.FinalURL = "https://example.com/a"
	web.StatusCode = 200
	web.ContentType = "text/html"
	return &cache.Entry{
		Link:    pass(),
		Web:     web,
		Content: pass(),
		Snapshot: &cache.Snapshot{
			FinalURL: "https://example.com/a",
			Title:    "Example",
			Content:  "example body text",
			Metadata: model.Metadata{Language: "en", WordCount: 3, ReadingTime: 1},
			Retries:  1,
		},
		StoredAt: now,
	}
}

// Run exercises round trip, key normalization, overwrite and miss.
// Expiry is backend-specific and tested separately.
func Run(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()

	got, err := c.Get(ctx, "rust ownership", "https://example.com/a")
	if err != nil || got != nil {
		t.Fatalf("expected miss on empty cache, got %+v %v", got, err)
	}

	want := SampleEntry()
	if err := c.Put(ctx, "rust ownership", "https://example.com/a", want, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err = c.Get(ctx, "  Rust   OWNERSHIP ", "HTTPS://Example.com:443/a#intro")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected hit for normalized query and url")
	}
	if !got.Passed() {
		t.Errorf("expected passed entry, got %+v", got)
	}
	if got.Snapshot.Title != "Example" || got.Snapshot.Retries != 1 || got.Web.StatusCode != 200 {
		t.Errorf("entry did not round trip: %+v", got.Snapshot)
	}
	if !got.StoredAt.Equal(want.StoredAt) {
		t.Errorf("stored_at = %v, want %v", got.StoredAt, want.StoredAt)
	}

	if got, _ := c.Get(ctx, "other query", "https://example.com/a"); got != nil {
		t.Errorf("different query must miss")
	}

	rejected := &cache.Entry{
		Link: &model.ValidationOutcome{Passed: true},
		Web:  &model.ValidationOutcome{Passed: false, Code: model.CodeHTTPStatus, Reason: "http status 404"},
	}
	if err := c.Put(ctx, "rust ownership", "https://example.com/a", rejected, 0); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = c.Get(ctx, "rust ownership", "https://example.com/a")
	if err != nil || got == nil {
		t.Fatalf("expected hit after overwrite, got %v", err)
	}
	if got.Passed() || got.Snapshot != nil || got.Web.Code != model.CodeHTTPStatus {
		t.Errorf("overwrite did not replace the whole entry: %+v", got)
	}
	if got.StoredAt.IsZero() {
		t.Errorf("expected StoredAt to be filled on put")
	}
}
