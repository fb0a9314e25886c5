// Package extract dispatches raw HTML to the site extractor that owns the
// URL, or to the generic DOM-based fallback when no plugin claims it.
package extract

import (
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/shelfwatch/shelfwatch/product"
)

// GenericName is the extractor name reported for the fallback path.
const GenericName = "generic"

// Registration is one site extractor: a URL-ownership predicate plus the
// extraction function it gates.
type Registration struct {
	Name    string
	Match   func(url string) bool
	Extract func(html, url string) (*product.Record, error)
}

// Registry holds an ordered list of extractors. Insertion order is dispatch
// priority: the first registration whose predicate accepts a URL wins.
// Registration happens at startup; steady-state dispatch is read-only.
type Registry struct {
	mu   sync.RWMutex
	regs []Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry wires the built-in site extractors. Hosts populate
// additional extractors (including YAML templates) with Register.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(AmazonExtractor())
	r.Register(FlipkartExtractor())
	return r
}

// Register appends an extractor. Duplicate names are allowed; position still
// decides dispatch.
func (r *Registry) Register(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs = append(r.regs, reg)
}

// Dispatch returns the first extractor whose predicate accepts the URL, or
// nil when none match.
func (r *Registry) Dispatch(url string) *Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.regs {
		if r.regs[i].Match(url) {
			return &r.regs[i]
		}
	}
	return nil
}

// Names lists the registered extractors in dispatch order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.regs))
	for i, reg := range r.regs {
		names[i] = reg.Name
	}
	return names
}

// Extract resolves the extractor for the URL and runs it, falling back to
// the generic extractor when no plugin matches or the matched plugin fails.
// The returned record is always normalized; the string names the extractor
// that produced it. Malformed HTML degrades to a partial record, never an
// error.
func (r *Registry) Extract(html, url string) (*product.Record, string) {
	if reg := r.Dispatch(url); reg != nil {
		rec, err := reg.Extract(html, url)
		if err == nil && rec != nil {
			return product.Normalize(rec), reg.Name
		}
		slog.Warn("site extractor failed, falling back to generic",
			"extractor", reg.Name, "url", url, "error", err)
	}
	return product.Normalize(Generic(html, url)), GenericName
}

// sourceFromURL derives the record's source label from the URL host,
// dropping a leading "www.".
func sourceFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
