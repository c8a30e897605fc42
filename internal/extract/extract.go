// Package extract turns fetched page bodies into main-body text plus the
// page metadata a grounded Source carries.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrNoContent is returned when a page yields no readable text.
var ErrNoContent = errors.New("no readable content")

// Document is the extracted form of a page.
type Document struct {
	Title       string
	Description string
	Author      string
	Published   *time.Time
	// Lang is the language declared by the page (primary subtag), if any.
	Lang string
	Text string
	// BoilerplateRatio is the fraction of page text found in navigation,
	// headers, footers, ads and similar chrome.
	BoilerplateRatio float64
}

// Extractor extracts main text from a raw page body.
type Extractor interface {
	Extract(raw []byte, contentType string) (*Document, error)
}

// MainText is the narrow extraction boundary: raw body in, plain text out.
func MainText(e Extractor, raw []byte, contentType string) (string, error) {
	doc, err := e.Extract(raw, contentType)
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

// boilerplateSelector matches page chrome that is not main-body content.
var boilerplateSelector = strings.Join([]string{
	"nav", "header", "footer", "aside", "form", "menu",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]", "[role=complementary]",
	"[aria-hidden=true]", ".nav", ".navbar", ".menu", ".sidebar", ".footer", ".header",
	".cookie", ".cookie-banner", ".advert", ".advertisement", ".ad", ".ads", ".social",
	".share", ".breadcrumb", ".breadcrumbs", ".comments", ".related",
}, ", ")

// HTMLExtractor is the default goquery-backed Extractor.
type HTMLExtractor struct{}

// NewHTMLExtractor returns the default extractor.
func NewHTMLExtractor() *HTMLExtractor { return &HTMLExtractor{} }

var _ Extractor = (*HTMLExtractor)(nil)

// Extract parses raw as HTML unless contentType says plain text.
func (e *HTMLExtractor) Extract(raw []byte, contentType string) (*Document, error) {
	if strings.HasPrefix(contentType, "text/plain") {
		text := normalizeSpace(string(raw))
		if text == "" {
			return nil, ErrNoContent
		}
		return &Document{Text: text}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	out := &Document{
		Title:       pageTitle(doc),
		Description: firstMeta(doc, `meta[name="description"]`, `meta[property="og:description"]`),
		Author:      firstMeta(doc, `meta[name="author"]`, `meta[property="article:author"]`),
		Published:   publishedAt(doc),
		Lang:        declaredLang(doc),
	}

	doc.Find("script, style, noscript, svg, iframe, template, head").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	total := len(textOf(body))
	if total == 0 {
		return nil, ErrNoContent
	}

	body.Find(boilerplateSelector).Remove()
	remaining := len(textOf(body))
	out.BoilerplateRatio = float64(total-remaining) / float64(total)

	root := mainRoot(body)
	out.Text = textOf(root)
	if out.Text == "" {
		return nil, ErrNoContent
	}
	return out, nil
}

// mainRoot prefers an explicit article/main container when it holds most of
// the remaining text.
func mainRoot(body *goquery.Selection) *goquery.Selection {
	bodyLen := len(textOf(body))
	for _, sel := range []string{"article", "main", "[role=main]"} {
		cand := body.Find(sel).First()
		if cand.Length() == 0 {
			continue
		}
		if n := len(textOf(cand)); n > 0 && n*2 >= bodyLen {
			return cand
		}
	}
	return body
}

func pageTitle(doc *goquery.Document) string {
	if t := firstMeta(doc, `meta[property="og:title"]`); t != "" {
		return t
	}
	if t := normalizeSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return normalizeSpace(doc.Find("h1").First().Text())
}

func firstMeta(doc *goquery.Document, selectors ...string) string {
	for _, s := range selectors {
		if v, ok := doc.Find(s).First().Attr("content"); ok {
			if v = normalizeSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

func publishedAt(doc *goquery.Document) *time.Time {
	raw := firstMeta(doc,
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`meta[name="pubdate"]`,
		`meta[itemprop="datePublished"]`,
	)
	if raw == "" {
		raw, _ = doc.Find("time[datetime]").First().Attr("datetime")
	}
	return ParseDate(raw)
}

// ParseDate accepts the date formats commonly found in page metadata.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func declaredLang(doc *goquery.Document) string {
	lang, _ := doc.Find("html").First().Attr("lang")
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

// textOf concatenates descendant text nodes with a space between each, so
// adjacent block elements do not run words together.
func textOf(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return normalizeSpace(b.String())
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
