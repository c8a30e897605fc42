package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/grounder/internal/fetch"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := Default()
	if cfg.Pipeline != def.Pipeline {
		t.Errorf("pipeline options = %+v, want %+v", cfg.Pipeline, def.Pipeline)
	}
	if cfg.Cache.Backend != BackendMemory || cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("unexpected cache config %+v", cfg.Cache)
	}
	if len(cfg.Link.AllowedSchemes) != 2 {
		t.Errorf("expected default schemes, got %v", cfg.Link.AllowedSchemes)
	}
	if cfg.Score.Weights != def.Score.Weights {
		t.Errorf("weights = %+v, want %+v", cfg.Score.Weights, def.Score.Weights)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grounder.yaml")
	data := `
pipeline:
  max_concurrent_requests: 3
  timeout: 12s
  sort_results: false
link:
  blacklist_hosts:
    - spam.example
content:
  min_words: 120
  allowed_languages: [en, de]
score:
  weights:
    relevance: 0.8
    recency: 0.1
    confidence: 0.1
cache:
  backend: sqlite
  path: /tmp/grounder.db
search:
  urls:
    - https://example.com/a
fetch:
  fingerprint: chrome
  rate_limit: 2.5
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.MaxConcurrentRequests != 3 || cfg.Pipeline.Timeout != 12*time.Second {
		t.Errorf("pipeline overrides not applied: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.SortResults {
		t.Errorf("expected sort_results false")
	}
	if !cfg.Pipeline.FilterDuplicates {
		t.Errorf("unset keys should keep their defaults")
	}
	if len(cfg.Link.BlacklistHosts) != 1 || cfg.Link.BlacklistHosts[0] != "spam.example" {
		t.Errorf("unexpected blacklist %v", cfg.Link.BlacklistHosts)
	}
	if cfg.Content.MinWords != 120 || len(cfg.Content.AllowedLanguages) != 2 {
		t.Errorf("unexpected content config %+v", cfg.Content)
	}
	if cfg.Score.Weights.Relevance != 0.8 {
		t.Errorf("unexpected weights %+v", cfg.Score.Weights)
	}
	if cfg.Cache.Backend != BackendSQLite || cfg.Cache.Path != "/tmp/grounder.db" {
		t.Errorf("unexpected cache config %+v", cfg.Cache)
	}
	if len(cfg.Search.URLs) != 1 {
		t.Errorf("unexpected search urls %v", cfg.Search.URLs)
	}

	fc, err := cfg.Fetcher(nil)
	if err != nil {
		t.Fatalf("fetch config: %v", err)
	}
	if fc.Fingerprint != fetch.ProfileChrome {
		t.Errorf("fingerprint = %s, want chrome", fc.Fingerprint)
	}
	if fc.Limiter == nil || !fc.Limiter.Limited() {
		t.Errorf("expected an active rate limiter")
	}
	if fc.Proxies != nil {
		t.Errorf("no proxies configured, expected nil pool")
	}
	if got := cfg.ContentValidator().MinWords; got != 120 {
		t.Errorf("content validator min words = %d", got)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("GROUNDER_PIPELINE_MAX_CONCURRENT_REQUESTS", "9")
	t.Setenv("GROUNDER_PIPELINE_TIMEOUT", "45s")
	t.Setenv("GROUNDER_CACHE_BACKEND", "badger")
	t.Setenv("GROUNDER_SEARCH_URLS", "https://a.example,https://b.example")
	t.Setenv("GROUNDER_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.MaxConcurrentRequests != 9 {
		t.Errorf("max concurrent = %d, want 9", cfg.Pipeline.MaxConcurrentRequests)
	}
	if cfg.Pipeline.Timeout != 45*time.Second {
		t.Errorf("timeout = %v, want 45s", cfg.Pipeline.Timeout)
	}
	if cfg.Cache.Backend != BackendBadger {
		t.Errorf("backend = %s, want badger", cfg.Cache.Backend)
	}
	if len(cfg.Search.URLs) != 2 || cfg.Search.URLs[1] != "https://b.example" {
		t.Errorf("unexpected urls %v", cfg.Search.URLs)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s", cfg.Log.Level)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}

	t.Setenv("GROUNDER_CACHE_BACKEND", "redis")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "redis") {
		t.Errorf("expected unknown backend error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"postgres without dsn", func(c *Config) { c.Cache.Backend = BackendPostgres }, true},
		{"postgres with dsn", func(c *Config) { c.Cache.Backend, c.Cache.DSN = BackendPostgres, "postgres://x" }, false},
		{"cache off", func(c *Config) { c.Cache.Backend = BackendNone }, false},
		{"bad fingerprint", func(c *Config) { c.Fetch.Fingerprint = "netscape" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSERP(t *testing.T) {
	cfg := Default()
	if _, ok := cfg.SERP(); ok {
		t.Errorf("SERP should be off without an endpoint")
	}
	cfg.Search.SERPEndpoint = "https://search.example/?q=%s"
	sc, ok := cfg.SERP()
	if !ok || sc.Endpoint != cfg.Search.SERPEndpoint || sc.ResultSelector == "" {
		t.Errorf("unexpected serp config %+v", sc)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected JSON record, got %s", out)
	}

	if _, err := NewLogger(LogConfig{Format: "xml"}, &buf); err == nil {
		t.Errorf("expected error for unknown format")
	}
}

func TestFetcher_Proxies(t *testing.T) {
	list := filepath.Join(t.TempDir(), "proxies.txt")
	if err := os.WriteFile(list, []byte("10.0.0.2:3128\n"), 0o600); err != nil {
		t.Fatalf("write proxy list: %v", err)
	}
	cfg := Default()
	cfg.Fetch.Proxies = []string{"http://10.0.0.1:3128"}
	cfg.Fetch.ProxyFile = list

	fc, err := cfg.Fetcher(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.Proxies.Len() != 2 {
		t.Errorf("expected 2 proxies, got %d", fc.Proxies.Len())
	}

	cfg.Fetch.ProxyFile = filepath.Join(t.TempDir(), "missing.txt")
	if _, err := cfg.Fetcher(nil); err == nil {
		t.Errorf("expected error for missing proxy file")
	}
}
