// Package headers remembers the request headers a page used for its media requests so
// that playlists and segments can later be fetched with the same credentials.
package headers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultTTL is how long a captured header set stays usable.
const DefaultTTL = 30 * time.Minute

// DefaultPruneInterval is how often expired captures are dropped.
const DefaultPruneInterval = 5 * time.Minute

// captured lists the request headers worth replaying, lower-cased.
var captured = map[string]bool{
	"referer":       true,
	"cookie":        true,
	"authorization": true,
	"origin":        true,
}

// Provider returns the headers to send for url. page identifies the page (or tab) the
// request originates from and selects the Referer fallback. It may be empty.
type Provider interface {
	HeadersFor(ctx context.Context, url, page string) (map[string]string, error)
}

// Request is an observed outgoing request.
type Request struct {
	URL     string            `json:"url"`
	Page    string            `json:"page,omitempty"`
	Headers map[string]string `json:"headers"`
}

// Store captures requests and serves them back as a Provider.
type Store interface {
	Provider
	Observe(ctx context.Context, req Request) error
}

// ShouldCapture reports whether url looks like a playlist or segment request.
func ShouldCapture(rawURL string) bool {
	u := strings.ToLower(rawURL)
	return strings.Contains(u, ".m3u8") ||
		strings.Contains(u, ".ts") ||
		strings.Contains(u, ".m4s") ||
		strings.Contains(u, "segment")
}

// Filter keeps the replayable headers of h, preserving the original names.
func Filter(h map[string]string) map[string]string {
	out := make(map[string]string)
	for name, value := range h {
		if captured[strings.ToLower(name)] {
			out[name] = value
		}
	}
	return out
}

// referer returns the Referer value of h, matching the name case-insensitively.
func referer(h map[string]string) string {
	for name, value := range h {
		if strings.EqualFold(name, "referer") {
			return value
		}
	}
	return ""
}

// BaseKey returns origin plus the path up to and including its last '/'.
// Requests for sibling segments share a key.
func BaseKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", rawURL)
	}
	p := u.EscapedPath()
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[:i+1]
	} else {
		p = "/"
	}
	return u.Scheme + "://" + u.Host + p, nil
}
