package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/grounder/internal/metrics"
	"github.com/FranksOps/grounder/internal/model"
	"github.com/FranksOps/grounder/pkg/httpclient"
	"github.com/FranksOps/grounder/pkg/proxy"
	"github.com/FranksOps/grounder/pkg/ratelimit"
)

// Config configures outbound fetches.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	// MaxBodyBytes caps how much of a response body is read. Larger bodies
	// are marked TooLarge and not read further.
	MaxBodyBytes int64
	UseCookieJar bool
	UserAgents   []string
	Fingerprint  Profile
	// InsecureSkipVerify disables TLS certificate checks (tests, intranets).
	InsecureSkipVerify bool
	Limiter            *ratelimit.Limiter
	// Proxies, when set, rotates requests across its proxies.
	Proxies *proxy.Pool
	Logger             *slog.Logger
}

// Page is a fetched HTTP response with its body read up to the size cap.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	Header      http.Header
	ContentType string // media type without parameters, lower-cased
	Body        []byte
	TooLarge    bool
	Duration    time.Duration
	FetchedAt   time.Time
}

// Fetcher performs single URL fetches with a shared client so connections
// and cookies persist for its lifetime.
type Fetcher struct {
	cfg    Config
	client *httpclient.Client
	agents *agents
	logger *slog.Logger
}

// NewFetcher initializes a Fetcher, filling zero-valued config with defaults.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 5
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 << 20
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = ProfileGo
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	transport, err := newTransport(cfg.Fingerprint, cfg.InsecureSkipVerify)
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{
		cfg:    cfg,
		client: client,
		agents: newAgents(cfg.UserAgents),
		logger: cfg.Logger,
	}, nil
}

// UserAgent is the primary User-Agent, used for robots.txt matching.
func (f *Fetcher) UserAgent() string { return f.agents.primary() }

// MaxBodyBytes reports the effective body size cap.
func (f *Fetcher) MaxBodyBytes() int64 { return f.cfg.MaxBodyBytes }

// Fetch executes a GET request. HTTP error statuses are not errors; the
// returned error is a classified *model.Error for failures before a response.
func (f *Fetcher) Fetch(ctx context.Context, target string) (*Page, error) {
	resp, start, err := f.do(ctx, http.MethodGet, target)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	page := &Page{
		URL:         target,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		ContentType: mediaType(resp.Header.Get("Content-Type")),
		FetchedAt:   start.UTC(),
	}

	if resp.ContentLength > f.cfg.MaxBodyBytes {
		page.TooLarge = true
	} else {
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
		if err != nil {
			page.Duration = time.Since(start)
			metrics.RecordFetch(http.MethodGet, 0, len(body), page.Duration)
			return nil, classify(ctx, err)
		}
		if int64(len(body)) > f.cfg.MaxBodyBytes {
			page.TooLarge = true
			body = body[:f.cfg.MaxBodyBytes]
		}
		page.Body = body
	}

	page.Duration = time.Since(start)
	metrics.RecordFetch(http.MethodGet, page.StatusCode, len(page.Body), page.Duration)
	f.logger.Debug("fetched", "url", target, "status", page.StatusCode, "bytes", len(page.Body), "duration", page.Duration)
	return page, nil
}

// Probe issues a HEAD request bounded by timeout and only reports whether a
// connection could be made. Any HTTP response counts as reachable.
func (f *Fetcher) Probe(ctx context.Context, target string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, start, err := f.do(ctx, http.MethodHead, target)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	metrics.RecordFetch(http.MethodHead, resp.StatusCode, 0, time.Since(start))
	return nil
}

func (f *Fetcher) do(ctx context.Context, method, target string) (*http.Response, time.Time, error) {
	if err := f.cfg.Limiter.Wait(ctx); err != nil {
		return nil, time.Now(), model.Timeout("rate limiter wait", err)
	}

	proxyURL := f.cfg.Proxies.Next()
	if proxyURL != nil {
		ctx = context.WithValue(ctx, proxyKey{}, proxyURL)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, start, &model.Error{Kind: model.KindRejection, Code: model.CodeMalformedURL, Reason: "invalid request url", Err: err}
	}
	req.Header.Set("User-Agent", f.agents.next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(ctx, req)
	if proxyURL != nil {
		f.cfg.Proxies.Report(proxyURL, err == nil)
	}
	if err != nil {
		metrics.RecordFetch(method, 0, 0, time.Since(start))
		return nil, start, classify(ctx, err)
	}
	return resp, start, nil
}

// classify maps a transport error onto the pipeline error taxonomy.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, httpclient.ErrTooManyRedirects) {
		return &model.Error{Kind: model.KindRejection, Code: model.CodeTooManyRedirects, Reason: "too many redirects", Err: err}
	}
	if ctx.Err() != nil {
		return model.Timeout("request cancelled", err)
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return model.Transient(model.CodeNetwork, "request timed out", err)
	}
	return model.Transient(model.CodeNetwork, "request failed", err)
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(header, ";", 2)[0]))
	}
	return mt
}
