// Package config loads grounder settings from an optional config file and
// GROUNDER_* environment variables, and converts them into component configs.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/FranksOps/grounder/internal/fetch"
	"github.com/FranksOps/grounder/internal/pipeline"
	"github.com/FranksOps/grounder/internal/score"
	"github.com/FranksOps/grounder/internal/search"
	"github.com/FranksOps/grounder/internal/validate"
	"github.com/FranksOps/grounder/pkg/proxy"
	"github.com/FranksOps/grounder/pkg/ratelimit"
)

// EnvPrefix prefixes every environment override, e.g.
// GROUNDER_PIPELINE_TIMEOUT=10s.
const EnvPrefix = "GROUNDER"

// Cache backends.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	Pipeline pipeline.Options `mapstructure:"pipeline"`
	Link     LinkConfig       `mapstructure:"link"`
	Web      WebConfig        `mapstructure:"web"`
	Content  ContentConfig    `mapstructure:"content"`
	Score    ScoreConfig      `mapstructure:"score"`
	Cache    CacheConfig      `mapstructure:"cache"`
	Search   SearchConfig     `mapstructure:"search"`
	Fetch    FetchConfig      `mapstructure:"fetch"`
	Metrics  MetricsConfig    `mapstructure:"metrics"`
	Log      LogConfig        `mapstructure:"log"`
}

type LinkConfig struct {
	AllowedSchemes    []string      `mapstructure:"allowed_schemes"`
	BlacklistHosts    []string      `mapstructure:"blacklist_hosts"`
	BlacklistPatterns []string      `mapstructure:"blacklist_patterns"`
	Probe             bool          `mapstructure:"probe"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout"`
}

type WebConfig struct {
	AllowedContentTypes []string `mapstructure:"allowed_content_types"`
	RespectRobots       bool     `mapstructure:"respect_robots"`
	DetectChallenges    bool     `mapstructure:"detect_challenges"`
}

type ContentConfig struct {
	MinWords            int      `mapstructure:"min_words"`
	MaxBoilerplateRatio float64  `mapstructure:"max_boilerplate_ratio"`
	AllowedLanguages    []string `mapstructure:"allowed_languages"`
	WordsPerMinute      int      `mapstructure:"words_per_minute"`
}

type ScoreConfig struct {
	Weights         score.Weights `mapstructure:"weights"`
	RecencyHalfLife time.Duration `mapstructure:"recency_half_life"`
	UndatedRecency  float64       `mapstructure:"undated_recency"`
	RetryPenalty    float64       `mapstructure:"retry_penalty"`
}

// CacheConfig selects the validation cache backend. Path is the badger
// directory or the sqlite file; DSN is the Postgres connection string.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Path    string        `mapstructure:"path"`
	DSN     string        `mapstructure:"dsn"`
}

// SearchConfig lists the discovery providers. Every non-empty source is
// queried and the results merged.
type SearchConfig struct {
	URLs           []string `mapstructure:"urls"`
	Feeds          []string `mapstructure:"feeds"`
	Sitemaps       []string `mapstructure:"sitemaps"`
	FilterSitemaps bool     `mapstructure:"filter_sitemaps"`
	// SERPEndpoint enables HTML search-results scraping; it holds one %s.
	SERPEndpoint string `mapstructure:"serp_endpoint"`
	Limit        int    `mapstructure:"limit"`
}

type FetchConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRedirects       int           `mapstructure:"max_redirects"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
	UseCookieJar       bool          `mapstructure:"use_cookie_jar"`
	UserAgents         []string      `mapstructure:"user_agents"`
	Fingerprint        string        `mapstructure:"fingerprint"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	RateLimit          float64       `mapstructure:"rate_limit"`
	Burst              int           `mapstructure:"burst"`
	Jitter             float64       `mapstructure:"jitter"`
	// Proxies and ProxyFile (one URL per line) feed the proxy rotation.
	Proxies   []string `mapstructure:"proxies"`
	ProxyFile string   `mapstructure:"proxy_file"`
}

// MetricsConfig exposes Prometheus metrics on Port when it is positive.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	link := validate.DefaultLinkConfig()
	web := validate.DefaultWebConfig()
	content := validate.DefaultContentConfig()
	sc := score.DefaultConfig()
	return Config{
		Pipeline: pipeline.DefaultOptions(),
		Link: LinkConfig{
			AllowedSchemes: link.AllowedSchemes,
			ProbeTimeout:   link.ProbeTimeout,
		},
		Web: WebConfig{
			AllowedContentTypes: web.AllowedContentTypes,
			RespectRobots:       web.RespectRobots,
			DetectChallenges:    web.DetectChallenges,
		},
		Content: ContentConfig{
			MinWords:            content.MinWords,
			MaxBoilerplateRatio: content.MaxBoilerplateRatio,
			WordsPerMinute:      content.WordsPerMinute,
		},
		Score: ScoreConfig{
			Weights:         sc.Weights,
			RecencyHalfLife: sc.RecencyHalfLife,
			UndatedRecency:  sc.UndatedRecency,
			RetryPenalty:    sc.RetryPenalty,
		},
		Cache: CacheConfig{
			Backend: BackendMemory,
			TTL:     24 * time.Hour,
			Path:    "grounder-cache",
		},
		Search: SearchConfig{
			FilterSitemaps: true,
			Limit:          20,
		},
		Fetch: FetchConfig{
			Timeout:      15 * time.Second,
			MaxRedirects: 5,
			MaxBodyBytes: 5 << 20,
			Fingerprint:  string(fetch.ProfileGo),
			Burst:        1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (YAML, TOML or JSON; optional) over the defaults, then
// applies GROUNDER_* environment overrides. Nested keys use underscores:
// GROUNDER_CACHE_BACKEND, GROUNDER_SEARCH_URLS="https://a,https://b".
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	defaults := map[string]any{
		"pipeline.max_concurrent_requests": d.Pipeline.MaxConcurrentRequests,
		"pipeline.timeout":                 d.Pipeline.Timeout,
		"pipeline.operation_timeout":       d.Pipeline.OperationTimeout,
		"pipeline.retry_count":             d.Pipeline.RetryCount,
		"pipeline.retry_delay":             d.Pipeline.RetryDelay,
		"pipeline.max_retry_delay":         d.Pipeline.MaxRetryDelay,
		"pipeline.cache_results":           d.Pipeline.CacheResults,
		"pipeline.similarity_threshold":    d.Pipeline.SimilarityThreshold,
		"pipeline.max_results":             d.Pipeline.MaxResults,
		"pipeline.sort_results":            d.Pipeline.SortResults,
		"pipeline.filter_duplicates":       d.Pipeline.FilterDuplicates,
		"pipeline.include_metadata":        d.Pipeline.IncludeMetadata,
		"pipeline.log_progress":            d.Pipeline.LogProgress,

		"link.allowed_schemes":    orEmpty(d.Link.AllowedSchemes),
		"link.blacklist_hosts":    orEmpty(d.Link.BlacklistHosts),
		"link.blacklist_patterns": orEmpty(d.Link.BlacklistPatterns),
		"link.probe":              d.Link.Probe,
		"link.probe_timeout":      d.Link.ProbeTimeout,

		"web.allowed_content_types": orEmpty(d.Web.AllowedContentTypes),
		"web.respect_robots":        d.Web.RespectRobots,
		"web.detect_challenges":     d.Web.DetectChallenges,

		"content.min_words":             d.Content.MinWords,
		"content.max_boilerplate_ratio": d.Content.MaxBoilerplateRatio,
		"content.allowed_languages":     orEmpty(d.Content.AllowedLanguages),
		"content.words_per_minute":      d.Content.WordsPerMinute,

		"score.weights.relevance":  d.Score.Weights.Relevance,
		"score.weights.recency":    d.Score.Weights.Recency,
		"score.weights.confidence": d.Score.Weights.Confidence,
		"score.recency_half_life":  d.Score.RecencyHalfLife,
		"score.undated_recency":    d.Score.UndatedRecency,
		"score.retry_penalty":      d.Score.RetryPenalty,

		"cache.backend": d.Cache.Backend,
		"cache.ttl":     d.Cache.TTL,
		"cache.path":    d.Cache.Path,
		"cache.dsn":     d.Cache.DSN,

		"search.urls":            orEmpty(d.Search.URLs),
		"search.feeds":           orEmpty(d.Search.Feeds),
		"search.sitemaps":        orEmpty(d.Search.Sitemaps),
		"search.filter_sitemaps": d.Search.FilterSitemaps,
		"search.serp_endpoint":   d.Search.SERPEndpoint,
		"search.limit":           d.Search.Limit,

		"fetch.timeout":              d.Fetch.Timeout,
		"fetch.max_redirects":        d.Fetch.MaxRedirects,
		"fetch.max_body_bytes":       d.Fetch.MaxBodyBytes,
		"fetch.use_cookie_jar":       d.Fetch.UseCookieJar,
		"fetch.user_agents":          orEmpty(d.Fetch.UserAgents),
		"fetch.fingerprint":          d.Fetch.Fingerprint,
		"fetch.insecure_skip_verify": d.Fetch.InsecureSkipVerify,
		"fetch.rate_limit":           d.Fetch.RateLimit,
		"fetch.burst":                d.Fetch.Burst,
		"fetch.jitter":               d.Fetch.Jitter,
		"fetch.proxies":              orEmpty(d.Fetch.Proxies),
		"fetch.proxy_file":           d.Fetch.ProxyFile,

		"metrics.port": d.Metrics.Port,

		"log.level":  d.Log.Level,
		"log.format": d.Log.Format,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Validate rejects settings no component could honour.
func (c Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case BackendNone, BackendMemory, BackendBadger, BackendSQLite:
	case BackendPostgres:
		if c.Cache.DSN == "" {
			errs = append(errs, errors.New("cache.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	switch fetch.Profile(c.Fetch.Fingerprint) {
	case "", fetch.ProfileGo, fetch.ProfileChrome, fetch.ProfileFirefox, fetch.ProfileSafari, fetch.ProfileRandom:
	default:
		errs = append(errs, fmt.Errorf("unknown fingerprint profile %q", c.Fetch.Fingerprint))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) LinkValidator() validate.LinkConfig {
	return validate.LinkConfig{
		AllowedSchemes:    c.Link.AllowedSchemes,
		BlacklistHosts:    c.Link.BlacklistHosts,
		BlacklistPatterns: c.Link.BlacklistPatterns,
		Probe:             c.Link.Probe,
		ProbeTimeout:      c.Link.ProbeTimeout,
	}
}

func (c Config) WebValidator(logger *slog.Logger) validate.WebConfig {
	return validate.WebConfig{
		AllowedContentTypes: c.Web.AllowedContentTypes,
		RespectRobots:       c.Web.RespectRobots,
		DetectChallenges:    c.Web.DetectChallenges,
		Logger:              logger,
	}
}

func (c Config) ContentValidator() validate.ContentConfig {
	return validate.ContentConfig{
		MinWords:            c.Content.MinWords,
		MaxBoilerplateRatio: c.Content.MaxBoilerplateRatio,
		AllowedLanguages:    c.Content.AllowedLanguages,
		WordsPerMinute:      c.Content.WordsPerMinute,
	}
}

func (c Config) Scorer() score.Config {
	return score.Config{
		Weights:         c.Score.Weights,
		RecencyHalfLife: c.Score.RecencyHalfLife,
		UndatedRecency:  c.Score.UndatedRecency,
		RetryPenalty:    c.Score.RetryPenalty,
	}
}

// Fetcher builds the fetch config, including its shared rate limiter and
// proxy pool.
func (c Config) Fetcher(logger *slog.Logger) (fetch.Config, error) {
	fc := fetch.Config{
		Timeout:            c.Fetch.Timeout,
		MaxRedirects:       c.Fetch.MaxRedirects,
		MaxBodyBytes:       c.Fetch.MaxBodyBytes,
		UseCookieJar:       c.Fetch.UseCookieJar,
		UserAgents:         c.Fetch.UserAgents,
		Fingerprint:        fetch.Profile(c.Fetch.Fingerprint),
		InsecureSkipVerify: c.Fetch.InsecureSkipVerify,
		Limiter:            ratelimit.NewLimiter(c.Fetch.RateLimit, c.Fetch.Burst, c.Fetch.Jitter),
		Logger:             logger,
	}
	if len(c.Fetch.Proxies) == 0 && c.Fetch.ProxyFile == "" {
		return fc, nil
	}

	pool, err := proxy.NewPool(proxy.Config{}, c.Fetch.Proxies...)
	if err != nil {
		return fetch.Config{}, err
	}
	if c.Fetch.ProxyFile != "" {
		if err := pool.LoadFile(c.Fetch.ProxyFile); err != nil {
			return fetch.Config{}, err
		}
	}
	fc.Proxies = pool
	return fc, nil
}

// SERP returns the SERP provider config, or false when SERP search is off.
func (c Config) SERP() (search.SERPConfig, bool) {
	if c.Search.SERPEndpoint == "" {
		return search.SERPConfig{}, false
	}
	cfg := search.DefaultSERPConfig()
	cfg.Endpoint = c.Search.SERPEndpoint
	cfg.Limit = c.Search.Limit
	return cfg, true
}

// NewLogger builds the slog logger described by lc, writing to w.
func NewLogger(lc LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(lc.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", lc.Format)
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
