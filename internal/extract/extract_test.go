package extract

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

const articlePage = `<!DOCTYPE html>
<html lang="en-GB">
<head>
  <title>Ownership in Rust</title>
  <meta name="description" content="How the borrow checker works.">
  <meta name="author" content="Jane Doe">
  <meta property="article:published_time" content="2024-03-01T10:00:00Z">
  <style>body { color: red }</style>
</head>
<body>
  <nav><a href="/">Home</a> <a href="/blog">Blog</a></nav>
  <article>
    <h1>Ownership</h1>
    <p>Every value in Rust has a single owner.</p>
    <p>When the owner goes out of scope the value is dropped.</p>
  </article>
  <footer>Copyright 2024</footer>
  <script>var tracking = true;</script>
</body>
</html>`

func TestHTMLExtractor_Article(t *testing.T) {
	doc, err := NewHTMLExtractor().Extract([]byte(articlePage), "text/html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Title != "Ownership in Rust" {
		t.Errorf("unexpected title %q", doc.Title)
	}
	if doc.Description != "How the borrow checker works." {
		t.Errorf("unexpected description %q", doc.Description)
	}
	if doc.Author != "Jane Doe" {
		t.Errorf("unexpected author %q", doc.Author)
	}
	if doc.Lang != "en" {
		t.Errorf("expected lang en, got %q", doc.Lang)
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if doc.Published == nil || !doc.Published.Equal(want) {
		t.Errorf("expected published %v, got %v", want, doc.Published)
	}

	if !strings.Contains(doc.Text, "single owner. When the owner") {
		t.Errorf("expected paragraphs separated by a space, got %q", doc.Text)
	}
	for _, junk := range []string{"Home", "Copyright", "tracking", "color"} {
		if strings.Contains(doc.Text, junk) {
			t.Errorf("main text should not contain %q: %q", junk, doc.Text)
		}
	}
	if doc.BoilerplateRatio <= 0 || doc.BoilerplateRatio >= 0.5 {
		t.Errorf("expected small positive boilerplate ratio, got %f", doc.BoilerplateRatio)
	}
}

func TestHTMLExtractor_MostlyBoilerplate(t *testing.T) {
	page := `<html><body>
<nav>Home About Contact Products Services Careers Blog Press Legal Privacy Terms</nav>
<p>Hi.</p>
<footer>Copyright Example Corporation All Rights Reserved Worldwide Forever</footer>
</body></html>`
	doc, err := NewHTMLExtractor().Extract([]byte(page), "text/html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.BoilerplateRatio < 0.8 {
		t.Errorf("expected boilerplate ratio above 0.8, got %f", doc.BoilerplateRatio)
	}
	if doc.Text != "Hi." {
		t.Errorf("unexpected text %q", doc.Text)
	}
}

func TestHTMLExtractor_Empty(t *testing.T) {
	_, err := NewHTMLExtractor().Extract([]byte(`<html><body><script>x()</script></body></html>`), "text/html")
	if !errors.Is(err, ErrNoContent) {
		t.Errorf("expected ErrNoContent, got %v", err)
	}
}

func TestHTMLExtractor_PlainText(t *testing.T) {
	text, err := MainText(NewHTMLExtractor(), []byte("  plain\n\ttext body "), "text/plain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "plain text body" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestParseDate(t *testing.T) {
	for _, raw := range []string{"2024-03-01", "2024-03-01T10:00:00Z", "Fri, 01 Mar 2024 10:00:00 GMT"} {
		if ParseDate(raw) == nil {
			t.Errorf("expected %q to parse", raw)
		}
	}
	if ParseDate("last tuesday") != nil {
		t.Errorf("expected unparseable date to return nil")
	}
}

func TestSnippet(t *testing.T) {
	text := "Memory safety matters. Rust ownership rules prevent data races. Version 1.0 shipped in 2015. Borrowing is checked at compile time."

	got := Snippet(text, []string{"ownership", "borrowing"}, 200)
	want := "Rust ownership rules prevent data races. Borrowing is checked at compile time."
	if got != want {
		t.Errorf("Snippet() = %q, want %q", got, want)
	}

	// Decimal points are not sentence boundaries.
	got = Snippet(text, []string{"shipped"}, 200)
	if got != "Version 1.0 shipped in 2015." {
		t.Errorf("unexpected snippet %q", got)
	}

	// Falls back to leading text, truncated at a word boundary.
	got = Snippet(text, []string{"zebra"}, 30)
	if !strings.HasPrefix(got, "Memory safety") || !strings.HasSuffix(got, "…") {
		t.Errorf("unexpected fallback snippet %q", got)
	}
	if Snippet("", []string{"x"}, 10) != "" {
		t.Errorf("expected empty snippet for empty text")
	}
}

func TestSnippet_MultiByteCut(t *testing.T) {
	for _, prefix := range []string{"", "a", "ab"} {
		text := prefix + strings.Repeat("所有权", 200)
		got := Snippet(text, nil, 240)
		if !utf8.ValidString(got) {
			t.Errorf("prefix %q: snippet is not valid UTF-8: %q", prefix, got)
		}
		body := strings.TrimSuffix(got, "…")
		if body == got {
			t.Errorf("prefix %q: expected truncation marker, got %q", prefix, got)
		}
		if len(body) > 240 || !strings.HasPrefix(text, body) {
			t.Errorf("prefix %q: unexpected cut %q", prefix, body)
		}
	}
}
