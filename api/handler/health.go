package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shelfwatch/shelfwatch/extract"
	"github.com/shelfwatch/shelfwatch/models"
)

// BrowserReporter is the slice of the browser engine the health endpoint
// needs. Nil means the browser tier is disabled.
type BrowserReporter interface {
	Available() bool
	Stats() (active, max int)
}

// Health returns a handler for GET /healthz.
//
// Reports page-pool utilisation and degrades status when more than 80% of
// pages are active.
func Health(br BrowserReporter, reg *extract.Registry, storeDriver string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats models.BrowserStats
		if br != nil {
			active, max := br.Stats()
			stats = models.BrowserStats{
				Available:   br.Available(),
				ActivePages: active,
				MaxPages:    max,
			}
		}

		status := "healthy"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			Version:    "0.1.0",
			Browser:    stats,
			Store:      storeDriver,
			Extractors: len(reg.Names()),
		})
	}
}
