package search

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/oxffaa/gopher-parse-sitemap"

	"github.com/FranksOps/grounder/internal/model"
)

const maxSitemapDepth = 3

// Sitemap discovers candidates from sitemap.xml files and sitemap indexes.
// With FilterByQuery set, only URLs mentioning a query keyword are kept.
type Sitemap struct {
	Sitemaps      []string
	FilterByQuery bool
	Limit         int
	fetcher       PageFetcher
	logger        *slog.Logger
}

// NewSitemap builds a Sitemap provider. logger may be nil.
func NewSitemap(sitemaps []string, filterByQuery bool, limit int, fetcher PageFetcher, logger *slog.Logger) *Sitemap {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sitemap{
		Sitemaps:      sitemaps,
		FilterByQuery: filterByQuery,
		Limit:         limit,
		fetcher:       fetcher,
		logger:        logger,
	}
}

func (s *Sitemap) Name() string { return "sitemap" }

func (s *Sitemap) Search(ctx context.Context, query string) ([]model.Candidate, error) {
	var kws []string
	if s.FilterByQuery {
		kws = keywords(query)
	}

	var (
		out     []model.Candidate
		lastErr error
		read    int
	)
	for _, sm := range s.Sitemaps {
		entries, err := s.fetchSitemap(ctx, sm, 0)
		if err != nil {
			s.logger.Warn("failed to fetch sitemap", "url", sm, "err", err)
			lastErr = err
			continue
		}
		read++
		for _, c := range entries {
			if s.Limit > 0 && len(out) >= s.Limit {
				return out, nil
			}
			if !matchesAnyKeyword(c.URL, kws) {
				continue
			}
			c.Index = len(out)
			out = append(out, c)
		}
	}

	if read == 0 && lastErr != nil {
		return nil, fmt.Errorf("no sitemap could be read: %w", lastErr)
	}
	return out, nil
}

// fetchSitemap fetches a sitemap or sitemap index and recursively extracts
// all URL entries.
func (s *Sitemap) fetchSitemap(ctx context.Context, sitemapURL string, depth int) ([]model.Candidate, error) {
	s.logger.Debug("fetching sitemap", "url", sitemapURL, "depth", depth)

	page, err := fetchOK(ctx, s.fetcher, sitemapURL)
	if err != nil {
		return nil, err
	}

	var out []model.Candidate
	err = sitemap.Parse(bytes.NewReader(page.Body), func(e sitemap.Entry) error {
		c := model.Candidate{URL: e.GetLocation(), Provider: s.Name()}
		if lm := e.GetLastModified(); lm != nil && !lm.IsZero() {
			t := lm.UTC()
			c.Published = &t
		}
		out = append(out, c)
		return nil
	})
	if err == nil && len(out) > 0 {
		return out, nil
	}

	// It might be a sitemap index.
	var nested []string
	indexErr := sitemap.ParseIndex(bytes.NewReader(page.Body), func(e sitemap.IndexEntry) error {
		nested = append(nested, e.GetLocation())
		return nil
	})
	if indexErr != nil {
		if err == nil {
			err = indexErr
		}
		return nil, fmt.Errorf("failed to parse as sitemap or index: %w", err)
	}
	if len(nested) == 0 {
		return nil, fmt.Errorf("sitemap %s has no entries", sitemapURL)
	}
	if depth >= maxSitemapDepth {
		return nil, fmt.Errorf("sitemap index nesting deeper than %d", maxSitemapDepth)
	}

	for _, nestedURL := range nested {
		entries, err := s.fetchSitemap(ctx, nestedURL, depth+1)
		if err != nil {
			s.logger.Warn("failed to fetch nested sitemap", "url", nestedURL, "err", err)
			continue
		}
		out = append(out, entries...)
	}
	return out, nil
}
