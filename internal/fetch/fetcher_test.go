package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/grounder/internal/model"
	"github.com/FranksOps/grounder/pkg/proxy"
)

func TestFetcher_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TestBrowser/1.0" {
			t.Errorf("expected rotated User-Agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer ts.Close()

	fetcher, err := NewFetcher(Config{
		Timeout:    5 * time.Second,
		UserAgents: []string{"TestBrowser/1.0"},
	})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}

	page, err := fetcher.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", page.StatusCode)
	}
	if page.ContentType != "text/html" {
		t.Errorf("expected media type text/html, got %q", page.ContentType)
	}
	if string(page.Body) != "<html>ok</html>" {
		t.Errorf("unexpected body %q", page.Body)
	}
	if page.FinalURL != ts.URL {
		t.Errorf("expected final url %s, got %s", ts.URL, page.FinalURL)
	}
	if page.Duration == 0 || page.FetchedAt.IsZero() {
		t.Errorf("expected timing information")
	}
}

func TestFetcher_ErrorStatusIsNotError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{})
	page, err := fetcher.Fetch(context.Background(), ts.URL+"/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", page.StatusCode)
	}
}

func TestFetcher_TimeoutIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{Timeout: 10 * time.Millisecond})
	_, err := fetcher.Fetch(context.Background(), ts.URL)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if k := model.KindOf(err); k != model.KindTransient {
		t.Errorf("expected transient kind, got %v", k)
	}
}

func TestFetcher_CancelledContextIsTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := fetcher.Fetch(ctx, ts.URL)
	if k := model.KindOf(err); k != model.KindTimeout {
		t.Errorf("expected timeout kind, got %v (%v)", k, err)
	}
}

func TestFetcher_TooLarge(t *testing.T) {
	big := strings.Repeat("a", 2048)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		// Flush before writing so no Content-Length is sent and the cap is
		// enforced on the streamed body.
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte(big))
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{MaxBodyBytes: 1024})
	page, err := fetcher.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !page.TooLarge {
		t.Errorf("expected page to be marked too large")
	}
	if len(page.Body) != 1024 {
		t.Errorf("expected body truncated to 1024 bytes, got %d", len(page.Body))
	}
}

func TestFetcher_TooManyRedirects(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL+"/loop", http.StatusFound)
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{MaxRedirects: 2})
	_, err := fetcher.Fetch(context.Background(), ts.URL)
	var perr *model.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *model.Error, got %v", err)
	}
	if perr.Kind != model.KindRejection || perr.Code != model.CodeTooManyRedirects {
		t.Errorf("unexpected classification: %v %s", perr.Kind, perr.Code)
	}
}

func TestFetcher_Probe(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	fetcher, _ := NewFetcher(Config{})

	if err := fetcher.Probe(context.Background(), ts.URL, time.Second); err != nil {
		t.Errorf("expected reachable host, got %v", err)
	}

	addr := ts.URL
	ts.Close()
	err := fetcher.Probe(context.Background(), addr, 200*time.Millisecond)
	if err == nil {
		t.Fatal("expected probe of closed server to fail")
	}
	if k := model.KindOf(err); k != model.KindTransient {
		t.Errorf("expected transient kind, got %v", k)
	}
}

func TestFetcher_UnknownProfile(t *testing.T) {
	if _, err := NewFetcher(Config{Fingerprint: "netscape"}); err == nil {
		t.Errorf("expected error for unknown profile")
	}
}

func TestTransport_UTLSProfile(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("tls"))
	}))
	defer ts.Close()

	for _, p := range []Profile{ProfileGo, ProfileChrome, ProfileFirefox} {
		t.Run(string(p), func(t *testing.T) {
			fetcher, err := NewFetcher(Config{Fingerprint: p, InsecureSkipVerify: true})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			page, err := fetcher.Fetch(context.Background(), ts.URL)
			if err != nil {
				t.Fatalf("fetch over %s failed: %v", p, err)
			}
			if string(page.Body) != "tls" {
				t.Errorf("unexpected body %q", page.Body)
			}
		})
	}
}

func TestFetcher_ProxyRotation(t *testing.T) {
	var (
		mu      sync.Mutex
		proxied []string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A forward proxy receives the absolute target URL.
		mu.Lock()
		proxied = append(proxied, r.URL.String())
		mu.Unlock()
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("via proxy"))
	}))
	defer upstream.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	pool, err := proxy.NewPool(proxy.Config{MaxFailures: 1, Cooldown: time.Hour}, deadURL, upstream.URL)
	if err != nil {
		t.Fatalf("failed to build pool: %v", err)
	}
	fetcher, err := NewFetcher(Config{Timeout: 5 * time.Second, Proxies: pool})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}

	if _, err := fetcher.Fetch(context.Background(), "http://target.invalid/a"); model.KindOf(err) != model.KindTransient {
		t.Fatalf("expected transient failure through dead proxy, got %v", err)
	}
	for i := 0; i < 2; i++ {
		page, err := fetcher.Fetch(context.Background(), "http://target.invalid/b")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(page.Body) != "via proxy" {
			t.Errorf("unexpected body %q", page.Body)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(proxied) != 2 || proxied[0] != "http://target.invalid/b" {
		t.Errorf("expected both requests through the live proxy, got %v", proxied)
	}
}
