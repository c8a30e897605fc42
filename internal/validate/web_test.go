package validate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/grounder/internal/fetch"
	"github.com/FranksOps/grounder/internal/model"
)

type denyAll struct{}

func (denyAll) IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error) {
	return false, nil
}

func newWebValidator(t *testing.T, maxBody int64, robots RobotsChecker) *WebValidator {
	t.Helper()
	f, err := fetch.NewFetcher(fetch.Config{Timeout: 5 * time.Second, MaxBodyBytes: maxBody})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	v, err := NewWebValidator(DefaultWebConfig(), f, robots)
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	return v
}

func TestWebValidator(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	mux.HandleFunc("/missing", http.NotFound)
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
	})
	mux.HandleFunc("/challenge", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("Attention Required!"))
	})
	mux.HandleFunc("/untyped", func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>sniffed</body></html>"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	v := newWebValidator(t, 1024, nil)

	tests := []struct {
		path   string
		passed bool
		code   string
		kind   model.Kind
	}{
		{"/ok", true, "", 0},
		{"/moved", true, "", 0},
		{"/untyped", true, "", 0},
		{"/missing", false, model.CodeHTTPStatus, model.KindRejection},
		{"/down", false, model.CodeHTTPStatus, model.KindTransient},
		{"/busy", false, model.CodeHTTPStatus, model.KindTransient},
		{"/image", false, model.CodeContentType, model.KindRejection},
		{"/big", false, model.CodeTooLarge, model.KindRejection},
		{"/challenge", false, model.CodeBotChallenge, model.KindRejection},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			out, page, err := v.Validate(context.Background(), model.Candidate{URL: ts.URL + tt.path})
			if out.Passed != tt.passed {
				t.Fatalf("passed = %v, want %v (reason %q)", out.Passed, tt.passed, out.Reason)
			}
			if tt.passed {
				if err != nil || page == nil {
					t.Fatalf("expected page and no error, got %v", err)
				}
				if out.StatusCode != http.StatusOK || out.ContentType != "text/html" {
					t.Errorf("unexpected outcome %+v", out)
				}
				return
			}
			if out.Code != tt.code {
				t.Errorf("code = %s, want %s", out.Code, tt.code)
			}
			if k := model.KindOf(err); k != tt.kind {
				t.Errorf("kind = %v, want %v", k, tt.kind)
			}
		})
	}

	out, _, _ := v.Validate(context.Background(), model.Candidate{URL: ts.URL + "/moved"})
	if out.FinalURL != ts.URL+"/ok" {
		t.Errorf("expected final url %s/ok, got %s", ts.URL, out.FinalURL)
	}
}

func TestWebValidator_Robots(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("page must not be fetched when robots.txt disallows it")
	}))
	defer ts.Close()

	v := newWebValidator(t, 0, denyAll{})
	out, page, err := v.Validate(context.Background(), model.Candidate{URL: ts.URL + "/private"})
	if out.Passed || out.Code != model.CodeRobotsDisallowed {
		t.Errorf("unexpected outcome %+v", out)
	}
	if page != nil || model.KindOf(err) != model.KindRejection {
		t.Errorf("expected rejection without page, got %v", err)
	}
}
