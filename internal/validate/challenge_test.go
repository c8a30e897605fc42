package validate

import (
	"net/http"
	"testing"

	"github.com/FranksOps/grounder/internal/fetch"
)

func page(status int, header map[string]string, body string) *fetch.Page {
	h := http.Header{}
	for k, v := range header {
		h.Set(k, v)
	}
	return &fetch.Page{StatusCode: status, Header: h, Body: []byte(body)}
}

func TestDetectCloudflare(t *testing.T) {
	if detected, _ := detectCloudflare(page(200, map[string]string{"Server": "cloudflare"}, "OK")); detected {
		t.Errorf("2xx pages should never be flagged")
	}
	if detected, src := detectCloudflare(page(403, map[string]string{"Server": "cloudflare"}, "Access Denied")); !detected || src != "Cloudflare" {
		t.Errorf("expected Cloudflare detection by header")
	}
	if detected, src := detectCloudflare(page(503, nil, "<html>... cf-turnstile ...</html>")); !detected || src != "Cloudflare" {
		t.Errorf("expected Cloudflare detection by body")
	}
}

func TestDetectAkamai(t *testing.T) {
	if detected, _ := detectAkamai(page(403, nil, "Access Denied")); detected {
		t.Errorf("plain access denied should not be Akamai")
	}
	if detected, src := detectAkamai(page(403, nil, "Access Denied. Reference #18.abc")); !detected || src != "Akamai" {
		t.Errorf("expected Akamai detection by body")
	}
}

func TestDetectDataDome(t *testing.T) {
	if detected, src := detectDataDome(page(403, map[string]string{"X-DataDome": "protected"}, "")); !detected || src != "DataDome" {
		t.Errorf("expected DataDome detection by header")
	}
	if detected, _ := detectDataDome(page(404, map[string]string{"X-DataDome": "protected"}, "")); detected {
		t.Errorf("only 403 responses are DataDome blocks")
	}
}

func TestDetectPerimeterX(t *testing.T) {
	if detected, src := detectPerimeterX(page(403, nil, `<div id="px-captcha"></div>`)); !detected || src != "PerimeterX" {
		t.Errorf("expected PerimeterX detection by body")
	}
}

func TestDetectChallenge(t *testing.T) {
	if detected, _ := DetectChallenge(nil, DefaultDetectors()); detected {
		t.Errorf("nil page should not be flagged")
	}
	detected, vendor := DetectChallenge(page(403, map[string]string{"Server": "AkamaiGHost"}, ""), DefaultDetectors())
	if !detected || vendor != "Akamai" {
		t.Errorf("expected Akamai, got %v %q", detected, vendor)
	}
	if detected, _ := DetectChallenge(page(403, nil, "Forbidden"), DefaultDetectors()); detected {
		t.Errorf("generic 403 should not be flagged")
	}
}
