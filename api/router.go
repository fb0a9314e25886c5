package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shelfwatch/shelfwatch/api/handler"
	"github.com/shelfwatch/shelfwatch/api/middleware"
	"github.com/shelfwatch/shelfwatch/cache"
	"github.com/shelfwatch/shelfwatch/config"
	"github.com/shelfwatch/shelfwatch/extract"
	"github.com/shelfwatch/shelfwatch/llm"
	"github.com/shelfwatch/shelfwatch/scraper"
	"github.com/shelfwatch/shelfwatch/store"
	"github.com/shelfwatch/shelfwatch/track"
)

// Deps bundles everything the routes need. Store, Tracker, LLM, Cache and
// Browser may be nil; the affected endpoints are simply not registered or
// reject the relevant request features.
type Deps struct {
	Scraper  *scraper.Scraper
	Registry *extract.Registry
	Store    store.Store
	Tracker  *track.Tracker
	LLM      *llm.Service
	Cache    *cache.Cache
	Browser  handler.BrowserReporter

	// StoreDriver names the persistence backend for the health report
	// ("sqlite", "postgres", "none").
	StoreDriver string
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(deps Deps, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	// Health — no auth required.
	r.GET("/healthz", handler.Health(deps.Browser, deps.Registry, deps.StoreDriver, startTime))

	v1 := r.Group("/api/v1")

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/scrape", handler.Scrape(deps.Scraper, deps.Registry, deps.Tracker, deps.LLM, deps.Cache))
	protected.POST("/compare", handler.Compare(deps.Scraper, deps.Registry))
	protected.GET("/extractors", handler.Extractors(deps.Registry))

	// Persistence-backed routes exist only when a store is configured.
	if deps.Store != nil {
		protected.POST("/track", handler.Track(deps.Scraper, deps.Registry, deps.Tracker))
		protected.POST("/alerts", handler.SetAlert(deps.Tracker))
		protected.GET("/products", handler.ListProducts(deps.Store))
		protected.GET("/products/:id/history", handler.PriceHistory(deps.Store, deps.Tracker))
	}

	return r
}
