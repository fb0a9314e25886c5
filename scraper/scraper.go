// Package scraper escalates page fetches through the tier ladder: plain
// HTTP, fingerprint-bypass HTTP, then a headless browser. Tiers run
// strictly in sequence; the first success wins and exhaustion reports
// every attempt that failed.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/shelfwatch/shelfwatch/config"
	"github.com/shelfwatch/shelfwatch/fetch"
	"github.com/shelfwatch/shelfwatch/identity"
)

// Mode selects which tiers a scrape may use.
type Mode string

const (
	// ModeAuto escalates Http → BypassHttp → Browser within each attempt.
	ModeAuto Mode = "auto"

	// ModeHTTP pins the scrape to the plain HTTP tier.
	ModeHTTP Mode = "http"

	// ModeBypass pins the scrape to the TLS-fingerprint bypass tier.
	ModeBypass Mode = "bypass_http"

	// ModeBrowser pins the scrape to the headless browser tier.
	ModeBrowser Mode = "browser"
)

// ParseMode maps a request string onto a Mode, defaulting to auto.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ModeHTTP):
		return ModeHTTP
	case string(ModeBypass):
		return ModeBypass
	case string(ModeBrowser):
		return ModeBrowser
	default:
		return ModeAuto
	}
}

// Options tune one scrape. Zero values fall back to the configured defaults.
type Options struct {
	Mode    Mode
	Retries int
	Timeout time.Duration

	// Proxy overrides rotator proxy selection for this scrape.
	Proxy string
}

// AttemptError records one failed tier attempt.
type AttemptError struct {
	Attempt int
	Tier    fetch.Tier
	Err     error
}

// ExhaustedError is returned when every attempt across every permitted
// tier has failed.
type ExhaustedError struct {
	URL      string
	Attempts []AttemptError
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("scrape %s: no tiers available", e.URL)
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("scrape %s: all %d attempts failed, last (%s): %v",
		e.URL, len(e.Attempts), last.Tier, last.Err)
}

func (e *ExhaustedError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// sleeper is the retry-backoff dependency, swapped out in tests.
type sleeper interface {
	WaitBeforeRetry(ctx context.Context, attempt int) error
}

// Scraper owns the tier ladder and the request identity.
type Scraper struct {
	cfg     config.ScraperConfig
	rotator *identity.Rotator
	clock   *identity.DomainClock // nil disables per-domain pacing

	http    fetch.Fetcher
	bypass  fetch.Fetcher
	browser fetch.Fetcher // nil when the browser tier is disabled

	backoff sleeper
}

// New assembles a scraper over the given tiers. browser may be nil.
func New(cfg config.ScraperConfig, rotator *identity.Rotator, clock *identity.DomainClock, httpTier, bypassTier, browserTier fetch.Fetcher) *Scraper {
	return &Scraper{
		cfg:     cfg,
		rotator: rotator,
		clock:   clock,
		http:    httpTier,
		bypass:  bypassTier,
		browser: browserTier,
		backoff: rotator,
	}
}

// Scrape fetches url, escalating through tiers per opts.Mode. The identity
// (headers and proxy) is chosen once and held stable across attempts.
func (s *Scraper) Scrape(ctx context.Context, rawURL string, opts Options) (*fetch.Result, error) {
	retries := opts.Retries
	if retries <= 0 {
		retries = s.cfg.DefaultRetries
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	if timeout > s.cfg.MaxTimeout {
		timeout = s.cfg.MaxTimeout
	}

	proxy := opts.Proxy
	if proxy == "" {
		proxy = s.rotator.NextProxy()
	}

	req := &fetch.Request{
		URL:     rawURL,
		Headers: s.rotator.NextHeaders(),
		Proxy:   proxy,
		Timeout: timeout,
	}

	tiers := s.tiersFor(opts.Mode)

	exhausted := &ExhaustedError{URL: rawURL}
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			if err := s.backoff.WaitBeforeRetry(ctx, attempt-1); err != nil {
				return nil, fetch.NewTimeout(err)
			}
		}
		if err := s.pace(ctx, rawURL); err != nil {
			return nil, fetch.NewTimeout(err)
		}
		s.rotator.RecordRequest()

		for _, tier := range tiers {
			if tier == nil {
				exhausted.Attempts = append(exhausted.Attempts, AttemptError{
					Attempt: attempt,
					Tier:    fetch.TierBrowser,
					Err:     fetch.NewBrowser("browser tier is not available", nil),
				})
				continue
			}

			res, err := tier.Fetch(ctx, req)
			if err == nil {
				slog.Debug("scrape succeeded",
					"url", rawURL, "tier", res.TierUsed, "attempt", attempt)
				return res, nil
			}

			exhausted.Attempts = append(exhausted.Attempts, AttemptError{
				Attempt: attempt,
				Tier:    tier.Tier(),
				Err:     err,
			})
			slog.Debug("tier failed",
				"url", rawURL, "tier", tier.Tier(), "attempt", attempt, "error", err)

			// A dead caller context means every further tier would fail
			// the same way.
			if ctx.Err() != nil {
				return nil, fetch.NewTimeout(ctx.Err())
			}
		}
	}

	slog.Warn("scrape exhausted",
		"url", rawURL, "attempts", len(exhausted.Attempts))
	return nil, exhausted
}

// tiersFor resolves the tier sequence for one attempt. A nil entry stands
// for a requested-but-unavailable browser tier.
func (s *Scraper) tiersFor(mode Mode) []fetch.Fetcher {
	switch mode {
	case ModeHTTP:
		return []fetch.Fetcher{s.http}
	case ModeBypass:
		return []fetch.Fetcher{s.bypass}
	case ModeBrowser:
		return []fetch.Fetcher{s.browser}
	default:
		return []fetch.Fetcher{s.http, s.bypass, s.browser}
	}
}

// pace applies the global rate limit and per-domain spacing before an
// attempt touches the network.
func (s *Scraper) pace(ctx context.Context, rawURL string) error {
	if err := s.rotator.RateLimit(ctx); err != nil {
		return err
	}
	if s.clock != nil {
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
			if err := s.clock.Wait(ctx, u.Host); err != nil {
				return err
			}
		}
	}
	return nil
}
