package validate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/FranksOps/grounder/internal/fetch"
	"github.com/FranksOps/grounder/internal/model"
)

// PageFetcher retrieves a page. *fetch.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, target string) (*fetch.Page, error)
	UserAgent() string
}

// RobotsChecker answers robots.txt queries. *fetch.RobotsTxtAuditor
// satisfies it.
type RobotsChecker interface {
	IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error)
}

// WebConfig configures the web stage.
type WebConfig struct {
	// AllowedContentTypes are media type prefixes accepted as textual pages.
	AllowedContentTypes []string
	RespectRobots       bool
	DetectChallenges    bool
	Detectors           []Detector
	Logger              *slog.Logger
}

// DefaultWebConfig is the base web policy.
func DefaultWebConfig() WebConfig {
	return WebConfig{
		AllowedContentTypes: []string{"text/html", "application/xhtml+xml", "text/plain"},
		RespectRobots:       true,
		DetectChallenges:    true,
	}
}

// WebValidator fetches a candidate and judges the HTTP response.
type WebValidator struct {
	cfg     WebConfig
	fetcher PageFetcher
	robots  RobotsChecker
	logger  *slog.Logger
}

// NewWebValidator wires the web stage. robots may be nil, which disables
// the robots.txt check regardless of cfg.RespectRobots.
func NewWebValidator(cfg WebConfig, fetcher PageFetcher, robots RobotsChecker) (*WebValidator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("web validator requires a fetcher")
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = DefaultWebConfig().AllowedContentTypes
	}
	if cfg.DetectChallenges && len(cfg.Detectors) == 0 {
		cfg.Detectors = DefaultDetectors()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebValidator{cfg: cfg, fetcher: fetcher, robots: robots, logger: cfg.Logger}, nil
}

// Validate performs one fetch attempt. On success the fetched page is
// returned for the content stage.
func (v *WebValidator) Validate(ctx context.Context, c model.Candidate) (model.ValidationOutcome, *fetch.Page, error) {
	out := model.ValidationOutcome{CheckedAt: time.Now().UTC()}

	if v.cfg.RespectRobots && v.robots != nil {
		allowed, err := v.robots.IsAllowed(ctx, c.URL, v.fetcher.UserAgent())
		if err != nil {
			v.logger.Debug("robots check failed", "url", c.URL, "err", err)
		} else if !allowed {
			rerr := model.Reject(model.CodeRobotsDisallowed, "disallowed by robots.txt")
			return fail(out, rerr), nil, rerr
		}
	}

	page, err := v.fetcher.Fetch(ctx, c.URL)
	if err != nil {
		return fail(out, err), nil, err
	}
	out.FinalURL = page.FinalURL
	out.StatusCode = page.StatusCode
	out.ContentType = page.ContentType

	if err := v.judge(page); err != nil {
		return fail(out, err), page, err
	}
	if out.ContentType == "" {
		out.ContentType = sniff(page.Body)
	}

	out.Passed = true
	return out, page, nil
}

func (v *WebValidator) judge(page *fetch.Page) error {
	if page.StatusCode < 200 || page.StatusCode > 299 {
		if v.cfg.DetectChallenges {
			if hit, vendor := DetectChallenge(page, v.cfg.Detectors); hit {
				return model.Reject(model.CodeBotChallenge, fmt.Sprintf("blocked by %s challenge", vendor))
			}
		}
		reason := fmt.Sprintf("http status %d", page.StatusCode)
		if page.StatusCode >= 500 || page.StatusCode == http.StatusTooManyRequests {
			return model.Transient(model.CodeHTTPStatus, reason, nil)
		}
		return model.Reject(model.CodeHTTPStatus, reason)
	}

	if page.TooLarge {
		return model.Reject(model.CodeTooLarge, "response body exceeds size limit")
	}

	ct := page.ContentType
	if ct == "" {
		ct = sniff(page.Body)
	}
	if !v.textual(ct) {
		return model.Reject(model.CodeContentType, fmt.Sprintf("unsupported content type %q", ct))
	}
	return nil
}

func (v *WebValidator) textual(ct string) bool {
	for _, allowed := range v.cfg.AllowedContentTypes {
		if strings.HasPrefix(ct, allowed) {
			return true
		}
	}
	return false
}

func sniff(body []byte) string {
	ct := http.DetectContentType(body)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}
