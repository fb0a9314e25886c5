package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shelfwatch/shelfwatch/cache"
	"github.com/shelfwatch/shelfwatch/extract"
	"github.com/shelfwatch/shelfwatch/llm"
	"github.com/shelfwatch/shelfwatch/models"
	"github.com/shelfwatch/shelfwatch/scraper"
	"github.com/shelfwatch/shelfwatch/track"
)

// Scrape returns a handler for POST /api/v1/scrape.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup (skipped when Fresh).
//  3. Scraper.Scrape → HTML across the tier ladder   (records fetch_ms)
//  4. Registry.Extract → normalized product record   (records extract_ms)
//  5. Optional tracking, summary, schema extraction  (records enrich_ms)
//  6. Fill Timing, cache, return 200.
func Scrape(sc *scraper.Scraper, reg *extract.Registry, tr *track.Tracker, ai *llm.Service, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.Defaults()

		cacheKey := cache.Key(req.URL, req.FetchMode)
		if cc != nil && !req.Fresh {
			if cached, hit := cc.Get(cacheKey); hit {
				cached.CacheStatus = "hit"
				cached.Timing = models.TimingInfo{
					TotalMs: time.Since(totalStart).Milliseconds(),
				}
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		opts := scraper.Options{
			Mode:    scraper.ParseMode(req.FetchMode),
			Retries: req.Retries,
			Timeout: time.Duration(req.Timeout) * time.Second,
			Proxy:   req.ProxyURL,
		}

		fetchStart := time.Now()
		result, err := sc.Scrape(c.Request.Context(), req.URL, opts)
		fetchMs := time.Since(fetchStart).Milliseconds()

		if err != nil {
			respondError(c, err, models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
				FetchMs: fetchMs,
			})
			return
		}

		extractStart := time.Now()
		rec, extractorName := reg.Extract(result.HTML, req.URL)
		if rec.Title == "" && result.Title != "" {
			rec.Title = result.Title
		}
		extractMs := time.Since(extractStart).Milliseconds()

		resp := &models.ScrapeResponse{
			Success:    true,
			StatusCode: result.StatusCode,
			FinalURL:   result.FinalURL,
			TierUsed:   string(result.TierUsed),
			Product:    rec,
			Extractor:  extractorName,
		}

		timing := models.TimingInfo{
			FetchMs:   fetchMs,
			ExtractMs: extractMs,
		}

		if req.Track {
			if tr == nil {
				respondError(c, models.NewScrapeError(models.ErrCodeStorage,
					"tracking requested but no store is configured", nil), timing)
				return
			}
			id, err := tr.Track(c.Request.Context(), rec)
			if err != nil {
				respondError(c, models.NewScrapeError(models.ErrCodeStorage, err.Error(), err), timing)
				return
			}
			resp.ProductID = id
		}

		if req.Summarize || len(req.Schema) > 0 {
			if ai == nil {
				respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput,
					"enrichment requested but no LLM backend is configured", nil), timing)
				return
			}

			enrichStart := time.Now()
			if req.Summarize {
				summary, err := ai.Summarize(c.Request.Context(), result.HTML, 0)
				if err != nil {
					timing.EnrichMs = time.Since(enrichStart).Milliseconds()
					respondError(c, err, timing)
					return
				}
				resp.Summary = summary
			}
			if len(req.Schema) > 0 {
				extracted, err := ai.ExtractSchema(c.Request.Context(), result.HTML, req.Schema)
				if err != nil {
					timing.EnrichMs = time.Since(enrichStart).Milliseconds()
					respondError(c, err, timing)
					return
				}
				resp.Extracted = extracted
			}
			timing.EnrichMs = time.Since(enrichStart).Milliseconds()
		}

		timing.TotalMs = time.Since(totalStart).Milliseconds()
		resp.Timing = timing

		if cc != nil {
			cc.Set(cacheKey, resp)
			resp.CacheStatus = "miss"
		}

		c.JSON(http.StatusOK, resp)
	}
}
