// Package search discovers candidate URLs for a query. Every provider is a
// single call per run; the pipeline treats a provider error as fatal.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/FranksOps/grounder/internal/fetch"
	"github.com/FranksOps/grounder/internal/model"
)

// ErrNoProviders is returned by Multi when it has nothing to query.
var ErrNoProviders = errors.New("no search providers configured")

// Provider returns candidates for a query.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]model.Candidate, error)
}

// PageFetcher retrieves discovery documents (result pages, feeds, sitemaps).
// *fetch.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, target string) (*fetch.Page, error)
}

// Static returns a fixed URL list regardless of query.
type Static struct {
	URLs []string
}

// NewStatic builds a Static provider, dropping blank entries.
func NewStatic(urls ...string) *Static {
	s := &Static{}
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			s.URLs = append(s.URLs, u)
		}
	}
	return s
}

func (s *Static) Name() string { return "static" }

func (s *Static) Search(ctx context.Context, query string) ([]model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Candidate, 0, len(s.URLs))
	for i, u := range s.URLs {
		out = append(out, model.Candidate{URL: u, Provider: s.Name(), Index: i})
	}
	return out, nil
}

// Func adapts a function to Provider.
type Func func(ctx context.Context, query string) ([]model.Candidate, error)

func (f Func) Name() string { return "func" }

func (f Func) Search(ctx context.Context, query string) ([]model.Candidate, error) {
	return f(ctx, query)
}

// keywords returns the query terms long enough to filter on.
func keywords(query string) []string {
	var out []string
	for _, k := range strings.Fields(strings.ToLower(query)) {
		if len(k) >= 3 {
			out = append(out, k)
		}
	}
	return out
}

func matchesAnyKeyword(text string, kws []string) bool {
	if len(kws) == 0 {
		return true
	}
	text = strings.ToLower(text)
	for _, k := range kws {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func fetchOK(ctx context.Context, f PageFetcher, target string) (*fetch.Page, error) {
	page, err := f.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	if page.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: bad status code: %d", target, page.StatusCode)
	}
	return page, nil
}
