// Package validate holds the three validation stages a candidate passes
// through: link (URL policy and reachability), web (page fetch health) and
// content (extracted-text quality).
//
// Each Validate call is a single attempt. It returns the stage outcome and,
// when the outcome failed, a classified *model.Error so a retry executor can
// decide whether another attempt is worthwhile.
package validate

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/FranksOps/grounder/internal/model"
)

// Prober checks that a URL's host accepts connections.
type Prober interface {
	Probe(ctx context.Context, target string, timeout time.Duration) error
}

// LinkConfig configures the link stage.
type LinkConfig struct {
	AllowedSchemes []string
	// BlacklistHosts rejects a host and all of its subdomains.
	BlacklistHosts []string
	// BlacklistPatterns are regular expressions matched against the full URL.
	BlacklistPatterns []string
	Probe             bool
	ProbeTimeout      time.Duration
}

// DefaultLinkConfig is the base link policy.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		AllowedSchemes: []string{"http", "https"},
		ProbeTimeout:   3 * time.Second,
	}
}

// LinkValidator rejects malformed, non-HTTP(S) and blacklisted URLs before
// any network call, then optionally probes reachability.
type LinkValidator struct {
	cfg      LinkConfig
	schemes  map[string]struct{}
	hosts    []string
	patterns []*regexp.Regexp
	prober   Prober
}

// NewLinkValidator merges cfg over DefaultLinkConfig and compiles patterns.
// prober may be nil when cfg.Probe is false.
func NewLinkValidator(cfg LinkConfig, prober Prober) (*LinkValidator, error) {
	def := DefaultLinkConfig()
	if len(cfg.AllowedSchemes) == 0 {
		cfg.AllowedSchemes = def.AllowedSchemes
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.Probe && prober == nil {
		return nil, fmt.Errorf("link probe enabled without a prober")
	}

	v := &LinkValidator{cfg: cfg, schemes: make(map[string]struct{}), prober: prober}
	for _, s := range cfg.AllowedSchemes {
		v.schemes[strings.ToLower(s)] = struct{}{}
	}
	for _, h := range cfg.BlacklistHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			v.hosts = append(v.hosts, strings.TrimPrefix(h, "."))
		}
	}
	for _, p := range cfg.BlacklistPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("blacklist pattern %q: %w", p, err)
		}
		v.patterns = append(v.patterns, re)
	}
	return v, nil
}

// Check applies the network-free URL policy.
func (v *LinkValidator) Check(rawURL string) error {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return model.Reject(model.CodeMalformedURL, "empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return model.Reject(model.CodeMalformedURL, "malformed url")
	}
	if u.Scheme == "" || u.Host == "" || u.Hostname() == "" {
		return model.Reject(model.CodeMalformedURL, "url must be absolute")
	}
	if _, ok := v.schemes[strings.ToLower(u.Scheme)]; !ok {
		return model.Reject(model.CodeUnsupportedScheme, fmt.Sprintf("scheme %q not allowed", u.Scheme))
	}

	host := strings.ToLower(u.Hostname())
	for _, h := range v.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return model.Reject(model.CodeBlacklisted, fmt.Sprintf("host %s is blacklisted", host))
		}
	}
	for _, re := range v.patterns {
		if re.MatchString(raw) {
			return model.Reject(model.CodeBlacklisted, fmt.Sprintf("url matches blacklist pattern %s", re))
		}
	}
	return nil
}

// Validate runs Check and, when enabled, the reachability probe. A probe
// that cannot connect is a transient failure with reason "unreachable".
func (v *LinkValidator) Validate(ctx context.Context, c model.Candidate) (model.ValidationOutcome, error) {
	out := model.ValidationOutcome{CheckedAt: time.Now().UTC()}

	if err := v.Check(c.URL); err != nil {
		return fail(out, err), err
	}

	if v.cfg.Probe {
		if err := v.prober.Probe(ctx, c.URL, v.cfg.ProbeTimeout); err != nil {
			// A cancelled parent or a policy rejection (bad redirect chain)
			// passes through; everything else means the host did not answer.
			if ctx.Err() != nil || model.KindOf(err) == model.KindRejection {
				return fail(out, err), err
			}
			perr := model.Transient(model.CodeUnreachable, "unreachable", err)
			return fail(out, perr), perr
		}
	}

	out.Passed = true
	return out, nil
}

func fail(out model.ValidationOutcome, err error) model.ValidationOutcome {
	out.Passed = false
	out.Reason = model.ReasonOf(err)
	out.Code = model.CodeOf(err, "")
	return out
}
