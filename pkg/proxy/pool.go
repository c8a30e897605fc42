// Package proxy rotates outbound requests over a set of HTTP proxies and
// benches the ones that keep failing.
package proxy

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

type entry struct {
	url      *url.URL
	failures int
	benched  time.Time
}

// Pool is safe for concurrent use. A nil *Pool hands out no proxies.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config defines settings for the Pool.
type Config struct {
	// MaxFailures consecutive failures bench a proxy for Cooldown.
	MaxFailures int
	Cooldown    time.Duration
}

// NewPool parses rawURLs; a missing scheme defaults to http.
func NewPool(cfg Config, rawURLs ...string) (*Pool, error) {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	p := &Pool{maxFailures: cfg.MaxFailures, cooldown: cfg.Cooldown, now: time.Now}
	if err := p.Add(rawURLs...); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadFile adds one proxy per line of path, skipping blanks and # comments.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read proxy list: %w", err)
	}
	return p.Add(urls...)
}

func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*entry, 0, len(rawURLs))
	for _, raw := range rawURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid proxy url %q", raw)
		}
		parsed = append(parsed, &entry{url: u})
	}

	p.mu.Lock()
	p.entries = append(p.entries, parsed...)
	p.mu.Unlock()
	return nil
}

// Len is the number of proxies, benched or not.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next usable proxy round-robin, or nil when the pool is
// empty or every proxy is benched.
func (p *Pool) Next() *url.URL {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)
		if !e.benched.IsZero() {
			if now.Before(e.benched) {
				continue
			}
			e.benched, e.failures = time.Time{}, 0
		}
		return e.url
	}
	return nil
}

// Report records the outcome of a request sent through u. Unknown proxies
// are ignored.
func (p *Pool) Report(u *url.URL, ok bool) {
	if p == nil || u == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	target := u.String()
	for _, e := range p.entries {
		if e.url.String() != target {
			continue
		}
		if ok {
			e.failures = 0
			return
		}
		e.failures++
		if e.failures >= p.maxFailures {
			e.benched = p.now().Add(p.cooldown)
		}
		return
	}
}
