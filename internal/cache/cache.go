// Package cache stores per-candidate validation results keyed by
// (normalized query, normalized URL) so repeated runs skip network work.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/FranksOps/grounder/internal/model"
)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("cache closed")

// Cache is the storage contract every backend implements. Get returns
// (nil, nil) on a miss or an expired entry. Put replaces any existing entry.
type Cache interface {
	Get(ctx context.Context, query, rawURL string) (*Entry, error)
	Put(ctx context.Context, query, rawURL string, e *Entry, ttl time.Duration) error
	Close() error
}

// Entry is one candidate's cached validation state. Content and Snapshot
// are nil unless the candidate got that far.
type Entry struct {
	Link     *model.ValidationOutcome `json:"link,omitempty"`
	Web      *model.ValidationOutcome `json:"web,omitempty"`
	Content  *model.ValidationOutcome `json:"content,omitempty"`
	Snapshot *Snapshot                `json:"snapshot,omitempty"`
	StoredAt time.Time                `json:"stored_at"`
}

// Snapshot is the extracted page state needed to rebuild a Source.
type Snapshot struct {
	FinalURL    string         `json:"final_url"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Content     string         `json:"content"`
	Metadata    model.Metadata `json:"metadata"`
	Retries     int            `json:"retries"`
}

// Passed reports whether every recorded stage passed and a snapshot exists.
func (e *Entry) Passed() bool {
	return e != nil && e.Snapshot != nil &&
		e.Link != nil && e.Link.Passed &&
		e.Web != nil && e.Web.Passed &&
		e.Content != nil && e.Content.Passed
}

// Clone returns a deep copy of e; nil stays nil.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Link = cloneOutcome(e.Link)
	cp.Web = cloneOutcome(e.Web)
	cp.Content = cloneOutcome(e.Content)
	if e.Snapshot != nil {
		snap := *e.Snapshot
		if d := snap.Metadata.Date; d != nil {
			t := *d
			snap.Metadata.Date = &t
		}
		cp.Snapshot = &snap
	}
	return &cp
}

func cloneOutcome(o *model.ValidationOutcome) *model.ValidationOutcome {
	if o == nil {
		return nil
	}
	cp := *o
	return &cp
}

// Key derives the storage key for (query, rawURL).
func Key(query, rawURL string) string {
	return NormalizeQuery(query) + "\x1f" + NormalizeURL(rawURL)
}

// NormalizeQuery lower-cases and collapses whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// NormalizeURL canonicalizes rawURL: lower-case scheme and host, default
// port and fragment removed, query parameters sorted, empty path as "/".
// Unparseable input is returned trimmed.
func NormalizeURL(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	if u.RawQuery != "" {
		q := u.Query()
		for _, vs := range q {
			sort.Strings(vs)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Marshal encodes e for byte-oriented backends.
func Marshal(e *Entry) ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an Entry written by Marshal.
func Unmarshal(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, nil
}
