package validate

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/FranksOps/grounder/internal/fetch"
)

// Detector reports whether a page is a bot-protection challenge or block
// page rather than real content, and which vendor served it.
type Detector func(p *fetch.Page) (detected bool, vendor string)

// DefaultDetectors returns the standard challenge-page detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// DetectChallenge runs p through detectors and returns the first vendor hit.
func DetectChallenge(p *fetch.Page, detectors []Detector) (bool, string) {
	if p == nil {
		return false, ""
	}
	for _, d := range detectors {
		if detected, vendor := d(p); detected {
			return true, vendor
		}
	}
	return false, ""
}

func server(p *fetch.Page) string {
	return strings.ToLower(p.Header.Get("Server"))
}

func bodyHasAny(body []byte, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(body, []byte(n)) {
			return true
		}
	}
	return false
}

func detectCloudflare(p *fetch.Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden && p.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(server(p), "cloudflare") ||
		bodyHasAny(p.Body, "cf-browser-verification", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(p *fetch.Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(server(p), "akamai") ||
		(bodyHasAny(p.Body, "Reference #") && bodyHasAny(p.Body, "Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(p *fetch.Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(server(p), "datadome") ||
		p.Header.Get("X-DataDome") != "" ||
		bodyHasAny(p.Body, "geo.captcha-delivery.com", "datadome") {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(p *fetch.Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if p.Header.Get("X-Px-Captcha") != "" ||
		bodyHasAny(p.Body, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}
