package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FranksOps/grounder/internal/cache"
	"github.com/FranksOps/grounder/internal/cache/badgercache"
	"github.com/FranksOps/grounder/internal/cache/pgcache"
	"github.com/FranksOps/grounder/internal/cache/sqlcache"
	"github.com/FranksOps/grounder/internal/config"
	"github.com/FranksOps/grounder/internal/fetch"
	"github.com/FranksOps/grounder/internal/pipeline"
	"github.com/FranksOps/grounder/internal/search"
	"github.com/FranksOps/grounder/internal/validate"
)

// openCache opens the configured backend. A nil cache with a nil error
// means caching is off.
func openCache(ctx context.Context, cc config.CacheConfig, logger *slog.Logger) (cache.Cache, error) {
	switch cc.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory, "":
		return cache.NewMemory(), nil
	case config.BackendBadger:
		return badgercache.Open(badgercache.Config{Path: cc.Path, Logger: logger})
	case config.BackendSQLite:
		c, err := sqlcache.New(cc.Path)
		if err != nil {
			return nil, err
		}
		if n, err := c.Purge(ctx); err != nil {
			logger.Warn("failed to purge expired cache rows", "err", err)
		} else if n > 0 {
			logger.Debug("purged expired cache rows", "rows", n)
		}
		return c, nil
	case config.BackendPostgres:
		return pgcache.New(ctx, cc.DSN)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cc.Backend)
	}
}

// buildProvider combines every configured discovery source.
func buildProvider(sc config.SearchConfig, serp func() (search.SERPConfig, bool), fetcher *fetch.Fetcher, logger *slog.Logger) (search.Provider, error) {
	var providers []search.Provider
	if len(sc.URLs) > 0 {
		providers = append(providers, search.NewStatic(sc.URLs...))
	}
	if len(sc.Feeds) > 0 {
		providers = append(providers, search.NewFeed(sc.Feeds, sc.Limit, fetcher, logger))
	}
	if len(sc.Sitemaps) > 0 {
		providers = append(providers, search.NewSitemap(sc.Sitemaps, sc.FilterSitemaps, sc.Limit, fetcher, logger))
	}
	if cfg, ok := serp(); ok {
		p, err := search.NewSERP(cfg, fetcher)
		if err != nil {
			return nil, fmt.Errorf("serp provider: %w", err)
		}
		providers = append(providers, p)
	}

	switch len(providers) {
	case 0:
		return nil, search.ErrNoProviders
	case 1:
		return providers[0], nil
	default:
		return search.NewMulti(0, logger, providers...), nil
	}
}

// app is a fully wired orchestrator plus the resources it holds.
type app struct {
	orchestrator *pipeline.Orchestrator
	cache        cache.Cache
}

func (a *app) Close() error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Close()
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	fc, err := cfg.Fetcher(logger)
	if err != nil {
		return nil, err
	}
	fetcher, err := fetch.NewFetcher(fc)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	provider, err := buildProvider(cfg.Search, cfg.SERP, fetcher, logger)
	if err != nil {
		return nil, err
	}

	link, err := validate.NewLinkValidator(cfg.LinkValidator(), fetcher)
	if err != nil {
		return nil, fmt.Errorf("link validator: %w", err)
	}
	var robots validate.RobotsChecker
	if cfg.Web.RespectRobots {
		robots = fetch.NewRobotsTxtAuditor(fetcher, logger)
	}
	web, err := validate.NewWebValidator(cfg.WebValidator(logger), fetcher, robots)
	if err != nil {
		return nil, fmt.Errorf("web validator: %w", err)
	}
	content := validate.NewContentValidator(cfg.ContentValidator(), nil)

	c, err := openCache(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Cache.Backend, err)
	}

	o, err := pipeline.New(pipeline.Config{
		Search:   provider,
		Link:     link,
		Web:      web,
		Content:  content,
		Cache:    c,
		CacheTTL: cfg.Cache.TTL,
		Score:    cfg.Scorer(),
		Logger:   logger,
	})
	if err != nil {
		if c != nil {
			_ = c.Close()
		}
		return nil, err
	}
	return &app{orchestrator: o, cache: c}, nil
}
