package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shelfwatch/shelfwatch/extract"
	"github.com/shelfwatch/shelfwatch/models"
	"github.com/shelfwatch/shelfwatch/scraper"
	"github.com/shelfwatch/shelfwatch/track"
)

// alertDirection maps the API vocabulary ("drop"/"rise") to the store's
// threshold direction ("below"/"above").
func alertDirection(s string) string {
	if s == "rise" {
		return "above"
	}
	return "below"
}

// Track returns a handler for POST /api/v1/track.
//
// Scrapes the URL, persists the product with a price-history point, and
// optionally registers a price alert when target_price is set.
func Track(sc *scraper.Scraper, reg *extract.Registry, tr *track.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.TrackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.Defaults()

		opts := scraper.Options{
			Mode:    scraper.ParseMode(req.FetchMode),
			Retries: req.Retries,
			Timeout: time.Duration(req.Timeout) * time.Second,
		}

		_, rec, _, err := scrapeProduct(c, sc, reg, req.URL, opts)
		if err != nil {
			respondError(c, err, models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
			})
			return
		}

		id, err := tr.Track(c.Request.Context(), rec)
		if err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeStorage, err.Error(), err),
				models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()})
			return
		}

		resp := models.TrackResponse{
			Success:   true,
			ProductID: id,
			Product:   rec,
		}

		if req.TargetPrice != nil {
			alertID, err := tr.SetAlert(c.Request.Context(), id, *req.TargetPrice, alertDirection(req.Direction))
			if err != nil {
				respondError(c, models.NewScrapeError(models.ErrCodeStorage, err.Error(), err),
					models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()})
				return
			}
			resp.AlertID = alertID
		}

		c.JSON(http.StatusOK, resp)
	}
}
