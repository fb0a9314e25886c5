package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shelfwatch/shelfwatch/browser"
	"github.com/shelfwatch/shelfwatch/cache"
	"github.com/shelfwatch/shelfwatch/config"
	"github.com/shelfwatch/shelfwatch/extract"
	"github.com/shelfwatch/shelfwatch/fetch"
	"github.com/shelfwatch/shelfwatch/identity"
	"github.com/shelfwatch/shelfwatch/llm"
	"github.com/shelfwatch/shelfwatch/scraper"
	"github.com/shelfwatch/shelfwatch/store"
	"github.com/shelfwatch/shelfwatch/track"
)

var errNoStore = errors.New("tracking requires a configured store (set SHELFWATCH_STORE_DRIVER)")

// app bundles the long-lived components shared by the serve and one-shot
// commands. Store, tracker and LLM service are nil when not configured.
type app struct {
	cfg *config.Config

	engine   *browser.Engine
	scraper  *scraper.Scraper
	registry *extract.Registry
	store    store.Store
	tracker  *track.Tracker
	llm      *llm.Service
	cache    *cache.Cache

	storeDriver string
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		registry: extract.DefaultRegistry(),
		cache:    cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL),
	}

	rotator := identity.NewRotator(cfg.Identity)
	var clock *identity.DomainClock
	if cfg.Identity.DomainInterval > 0 {
		clock = identity.NewDomainClock(cfg.Identity.DomainInterval)
	}

	httpTier := fetch.NewHTTPTier(cfg.Fetch.Timeout, cfg.Fetch.MaxBodyBytes)
	bypassTier := fetch.NewBypassTier(cfg.Fetch.Timeout, cfg.Fetch.MaxBodyBytes)

	var browserTier fetch.Fetcher
	if cfg.Browser.Enabled {
		a.engine = browser.New(cfg.Browser)
		browserTier = fetch.NewBrowserTier(a.engine.TierFetch)
	}

	a.scraper = scraper.New(cfg.Scraper, rotator, clock, httpTier, bypassTier, browserTier)

	a.storeDriver = "none"
	switch cfg.Store.Driver {
	case "sqlite":
		st, err := store.NewSQLite(cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.store = st
		a.storeDriver = "sqlite"
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.store = st
		a.storeDriver = "postgres"
	case "", "none":
		// Persistence disabled.
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if a.store != nil {
		a.tracker = track.New(a.store, cfg.Webhook)
	}

	if cfg.LLM.APIKey != "" {
		a.llm = llm.NewService(llm.NewOpenAI(cfg.LLM, nil))
	}

	return a, nil
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Stop()
	}
	if a.engine != nil {
		a.engine.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("store close failed", "error", err)
		}
	}
}
