package search

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/grounder/internal/model"
)

// SERPConfig describes an HTML search results page.
type SERPConfig struct {
	// Endpoint is a URL with a single %s for the escaped query.
	Endpoint        string
	ResultSelector  string
	LinkSelector    string
	SnippetSelector string
	// Limit caps the number of results returned. Zero means no cap.
	Limit int
}

// DefaultSERPConfig targets the DuckDuckGo HTML endpoint.
func DefaultSERPConfig() SERPConfig {
	return SERPConfig{
		Endpoint:        "https://html.duckduckgo.com/html/?q=%s",
		ResultSelector:  ".result",
		LinkSelector:    "a.result__a",
		SnippetSelector: ".result__snippet",
		Limit:           20,
	}
}

// SERP scrapes an HTML results page through the shared fetcher so the
// configured TLS fingerprint and User-Agent rotation apply.
type SERP struct {
	cfg     SERPConfig
	fetcher PageFetcher
}

// NewSERP fills empty selectors from DefaultSERPConfig.
func NewSERP(cfg SERPConfig, fetcher PageFetcher) (*SERP, error) {
	def := DefaultSERPConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if !strings.Contains(cfg.Endpoint, "%s") {
		return nil, fmt.Errorf("serp endpoint %q has no %%s query placeholder", cfg.Endpoint)
	}
	if cfg.ResultSelector == "" {
		cfg.ResultSelector = def.ResultSelector
	}
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = def.LinkSelector
	}
	if cfg.SnippetSelector == "" {
		cfg.SnippetSelector = def.SnippetSelector
	}
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("limit cannot be negative: %d", cfg.Limit)
	}
	if fetcher == nil {
		return nil, fmt.Errorf("serp provider requires a fetcher")
	}
	return &SERP{cfg: cfg, fetcher: fetcher}, nil
}

func (s *SERP) Name() string { return "serp" }

func (s *SERP) Search(ctx context.Context, query string) ([]model.Candidate, error) {
	endpoint := fmt.Sprintf(s.cfg.Endpoint, url.QueryEscape(query))
	page, err := fetchOK(ctx, s.fetcher, endpoint)
	if err != nil {
		return nil, fmt.Errorf("serp search: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse serp page: %w", err)
	}
	base, _ := url.Parse(page.FinalURL)

	var out []model.Candidate
	doc.Find(s.cfg.ResultSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find(s.cfg.LinkSelector).First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		target := resolveResultLink(base, href)
		if target == "" {
			return true
		}
		out = append(out, model.Candidate{
			URL:      target,
			Title:    strings.TrimSpace(link.Text()),
			Snippet:  strings.Join(strings.Fields(sel.Find(s.cfg.SnippetSelector).First().Text()), " "),
			Provider: s.Name(),
			Index:    len(out),
		})
		return s.cfg.Limit == 0 || len(out) < s.cfg.Limit
	})
	return out, nil
}

// resolveResultLink makes href absolute and unwraps redirect links that
// carry the destination in a uddg or q parameter.
func resolveResultLink(base *url.URL, href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	for _, param := range []string{"uddg", "q", "url"} {
		if v := u.Query().Get(param); strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
			return v
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
