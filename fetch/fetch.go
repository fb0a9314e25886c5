// Package fetch defines the tier contract shared by the three retrieval
// strategies (plain HTTP, fingerprint-bypass HTTP, headless browser) and the
// uniform result they all produce.
package fetch

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Tier identifies one retrieval strategy, in escalation (cost) order.
type Tier string

const (
	TierHTTP    Tier = "http"
	TierBypass  Tier = "bypass_http"
	TierBrowser Tier = "browser"
)

// Request contains everything a tier needs to fetch a page.
type Request struct {
	URL     string
	Headers map[string]string
	Proxy   string // "http://...", "socks5://..." or empty for direct
	Timeout time.Duration
}

// Result is the uniform output of a successful fetch, whichever tier
// produced it. It is immutable once returned.
type Result struct {
	HTML       string
	Title      string
	StatusCode int
	TierUsed   Tier
	FinalURL   string
	Headers    map[string]string

	// NetworkLog is populated only by the browser tier, and only when
	// network interception was requested.
	NetworkLog []NetworkEntry

	// Screenshot is populated only by the browser tier, and only when a
	// screenshot was requested.
	Screenshot []byte
}

// NetworkEntry is one intercepted response captured during a browser fetch.
// Body is kept only for textual content types.
type NetworkEntry struct {
	URL        string            `json:"url"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body,omitempty"`
}

// Fetcher is the contract all tiers implement. Fetch returns a Result or an
// *Error from the taxonomy in errors.go; it never retries internally.
type Fetcher interface {
	Tier() Tier
	Fetch(ctx context.Context, req *Request) (*Result, error)
}

// TextualContentType reports whether a response body of the given
// content type is worth capturing as text.
func TextualContentType(ct string) bool {
	ct = strings.ToLower(ct)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)
	switch {
	case strings.HasPrefix(ct, "text/"):
		return true
	case ct == "application/json", ct == "application/xml", ct == "application/javascript":
		return true
	case strings.HasSuffix(ct, "+json"), strings.HasSuffix(ct, "+xml"):
		return true
	}
	return false
}

// FlattenHeaders collapses an http.Header into the single-valued map carried
// on Result, joining repeated values the way they would appear on the wire.
func FlattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[k] = strings.Join(vs, ", ")
	}
	return out
}
