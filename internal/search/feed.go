package search

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/FranksOps/grounder/internal/model"
)

// Feed pulls RSS/Atom/JSON feeds and keeps items whose title or description
// mentions a query keyword. Feeds are not queryable, so filtering is local.
type Feed struct {
	Feeds   []string
	Limit   int
	fetcher PageFetcher
	logger  *slog.Logger
}

// NewFeed builds a Feed provider. logger may be nil.
func NewFeed(feeds []string, limit int, fetcher PageFetcher, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{Feeds: feeds, Limit: limit, fetcher: fetcher, logger: logger}
}

func (f *Feed) Name() string { return "feed" }

// Search fails only when no feed could be read at all.
func (f *Feed) Search(ctx context.Context, query string) ([]model.Candidate, error) {
	kws := keywords(query)
	parser := gofeed.NewParser()

	var (
		out     []model.Candidate
		lastErr error
		read    int
	)
	for _, feedURL := range f.Feeds {
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
		page, err := fetchOK(ctx, f.fetcher, feedURL)
		if err != nil {
			f.logger.Warn("failed to fetch feed", "url", feedURL, "err", err)
			lastErr = err
			continue
		}
		feed, err := parser.Parse(bytes.NewReader(page.Body))
		if err != nil {
			f.logger.Warn("failed to parse feed", "url", feedURL, "err", err)
			lastErr = err
			continue
		}
		read++

		for _, it := range feed.Items {
			if f.Limit > 0 && len(out) >= f.Limit {
				break
			}
			link := strings.TrimSpace(it.Link)
			if link == "" || !matchesAnyKeyword(it.Title+" "+it.Description, kws) {
				continue
			}
			c := model.Candidate{
				URL:      link,
				Title:    strings.TrimSpace(it.Title),
				Snippet:  strings.Join(strings.Fields(it.Description), " "),
				Provider: f.Name(),
				Index:    len(out),
			}
			if it.PublishedParsed != nil {
				t := it.PublishedParsed.UTC()
				c.Published = &t
			} else if it.UpdatedParsed != nil {
				t := it.UpdatedParsed.UTC()
				c.Published = &t
			}
			out = append(out, c)
		}
	}

	if read == 0 && lastErr != nil {
		return nil, fmt.Errorf("no feed could be read: %w", lastErr)
	}
	return out, nil
}
