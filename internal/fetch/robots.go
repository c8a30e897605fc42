package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// robotsFetchTimeout bounds the shared robots.txt fetch, which runs
// detached from any single caller's context.
const robotsFetchTimeout = 10 * time.Second

// RobotsTxtAuditor fetches, caches and evaluates robots.txt per host.
// Concurrent lookups for the same host share one fetch.
type RobotsTxtAuditor struct {
	fetcher *Fetcher
	logger  *slog.Logger
	group   singleflight.Group

	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor creates a new instance.
func NewRobotsTxtAuditor(fetcher *Fetcher, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether userAgent may fetch targetURL. Missing or
// unreadable robots.txt files allow everything.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	data := r.lookup(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, userAgent), nil
}

func (r *RobotsTxtAuditor) lookup(ctx context.Context, host string) *robotstxt.RobotsData {
	r.mu.RLock()
	data, ok := r.cache[host]
	r.mu.RUnlock()
	if ok {
		return data
	}

	ch := r.group.DoChan(host, func() (any, error) {
		r.mu.RLock()
		data, ok := r.cache[host]
		r.mu.RUnlock()
		if ok {
			return data, nil
		}

		// Waiters must not inherit the first caller's cancellation.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), robotsFetchTimeout)
		defer cancel()
		data, err := r.fetch(fetchCtx, host)
		if err != nil {
			// Transient failures are not cached so a later candidate retries.
			r.logger.Debug("robots.txt fetch failed, defaulting to allow", "host", host, "err", err)
			return (*robotstxt.RobotsData)(nil), nil
		}
		r.mu.Lock()
		r.cache[host] = data
		r.mu.Unlock()
		return data, nil
	})

	select {
	case res := <-ch:
		return res.Val.(*robotstxt.RobotsData)
	case <-ctx.Done():
		return nil
	}
}

func (r *RobotsTxtAuditor) fetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	page, err := r.fetcher.Fetch(ctx, host+"/robots.txt")
	if err != nil {
		return nil, err
	}
	if page.StatusCode >= http.StatusBadRequest || page.TooLarge {
		return nil, nil
	}
	parsed, err := robotstxt.FromStatusAndBytes(page.StatusCode, page.Body)
	if err != nil {
		return nil, nil
	}
	return parsed, nil
}
