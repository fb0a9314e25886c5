// Package identity supplies the header/proxy combination presented for each
// fetch and the pacing primitives (backoff, human-like delay, rate limiting)
// that keep a scraping run from looking like a scraping run.
package identity

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shelfwatch/shelfwatch/config"
)

// DefaultUserAgents is the built-in desktop agent pool, rotated round-robin.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// Identity is the header/proxy pair presented for one fetch. Identities are
// never mutated after creation; rotation selects among them.
type Identity struct {
	UserAgent string
	Proxy     string // empty means direct connection
}

// Rotator hands out identities and enforces request pacing. Safe for
// concurrent use: cursors and timestamps are mutex guarded so round-robin
// fairness holds across parallel scrapes.
type Rotator struct {
	mu sync.Mutex

	userAgents []string
	rotateUA   bool
	uaCursor   int

	proxies       []string
	rotateProxies bool
	proxyCursor   int

	minDelay     time.Duration
	maxDelay     time.Duration
	maxPerMinute int
	backoffBase  time.Duration

	lastRequest  time.Time
	requestCount int64

	// jitter returns a uniform value in [0,1). Swapped out in tests.
	jitter func() float64
}

// NewRotator builds a Rotator from configuration. An empty user-agent list
// falls back to DefaultUserAgents.
func NewRotator(cfg config.IdentityConfig) *Rotator {
	agents := cfg.UserAgents
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	return &Rotator{
		userAgents:    agents,
		rotateUA:      cfg.RotateUserAgents,
		proxies:       append([]string(nil), cfg.Proxies...),
		rotateProxies: cfg.RotateProxies,
		minDelay:      cfg.MinDelay,
		maxDelay:      cfg.MaxDelay,
		maxPerMinute:  cfg.MaxPerMinute,
		backoffBase:   cfg.BackoffBase,
		jitter:        rand.Float64,
	}
}

// NextHeaders returns a browser-like header bundle with the next user-agent.
// With rotation disabled the first agent is pinned.
func (r *Rotator) NextHeaders() map[string]string {
	r.mu.Lock()
	ua := r.userAgents[0]
	if r.rotateUA {
		ua = r.userAgents[r.uaCursor%len(r.userAgents)]
		r.uaCursor++
	}
	r.mu.Unlock()

	return map[string]string{
		"User-Agent":                ua,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.5",
		"Accept-Encoding":           "gzip, deflate, br",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Cache-Control":             "max-age=0",
	}
}

// NextProxy returns the next proxy URL, or "" when no proxies are configured.
// With rotation disabled the first proxy is pinned.
func (r *Rotator) NextProxy() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.proxies) == 0 {
		return ""
	}
	if !r.rotateProxies {
		return r.proxies[0]
	}
	p := r.proxies[r.proxyCursor%len(r.proxies)]
	r.proxyCursor++
	return p
}

// AddProxy appends a proxy to the pool.
func (r *Rotator) AddProxy(proxy string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies = append(r.proxies, proxy)
}

// RemoveProxy removes a proxy from the pool. Returns false when the proxy
// was not in the pool.
func (r *Rotator) RemoveProxy(proxy string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.proxies {
		if p == proxy {
			r.proxies = append(r.proxies[:i], r.proxies[i+1:]...)
			if r.proxyCursor > i {
				r.proxyCursor--
			}
			return true
		}
	}
	return false
}

// Proxies returns a copy of the current proxy pool.
func (r *Rotator) Proxies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.proxies...)
}

// WaitBeforeRetry sleeps base * 2^attempt plus up to one second of jitter.
// Returns early with ctx.Err() when the context is cancelled mid-sleep.
func (r *Rotator) WaitBeforeRetry(ctx context.Context, attempt int) error {
	base := r.backoffBase
	if base <= 0 {
		base = time.Second
	}
	delay := base<<uint(attempt) + time.Duration(r.jitter()*float64(time.Second))
	return sleep(ctx, delay)
}

// HumanDelay sleeps a uniform random duration between the configured min and
// max, then records the request timestamp and bumps the request counter.
func (r *Rotator) HumanDelay(ctx context.Context) error {
	d := r.minDelay
	if r.maxDelay > r.minDelay {
		d += time.Duration(r.jitter() * float64(r.maxDelay-r.minDelay))
	}
	if err := sleep(ctx, d); err != nil {
		return err
	}

	r.mu.Lock()
	r.lastRequest = time.Now()
	r.requestCount++
	r.mu.Unlock()
	return nil
}

// RateLimit blocks until at least 60s/maxPerMinute has passed since the last
// recorded request. A zero or negative maxPerMinute disables the check.
func (r *Rotator) RateLimit(ctx context.Context) error {
	if r.maxPerMinute <= 0 {
		return nil
	}

	r.mu.Lock()
	last := r.lastRequest
	r.mu.Unlock()

	if last.IsZero() {
		return nil
	}
	interval := time.Minute / time.Duration(r.maxPerMinute)
	if elapsed := time.Since(last); elapsed < interval {
		return sleep(ctx, interval-elapsed)
	}
	return nil
}

// RecordRequest stamps the last-request time without sleeping. Used by
// callers that pace requests themselves but still want rate-limit accounting.
func (r *Rotator) RecordRequest() {
	r.mu.Lock()
	r.lastRequest = time.Now()
	r.requestCount++
	r.mu.Unlock()
}

// RequestCount reports how many paced requests this rotator has recorded.
func (r *Rotator) RequestCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requestCount
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
