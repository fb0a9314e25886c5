package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shelfwatch/shelfwatch/models"
	"github.com/shelfwatch/shelfwatch/track"
)

// SetAlert returns a handler for POST /api/v1/alerts.
//
// Registers a price alert against a previously tracked product.
func SetAlert(tr *track.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AlertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.Defaults()

		id, err := tr.SetAlert(c.Request.Context(), req.ProductID, req.TargetPrice, alertDirection(req.Direction))
		if err != nil {
			scrapeErr := toScrapeError(err)
			c.JSON(mapErrorToStatus(scrapeErr), models.AlertResponse{
				Success: false,
				Error:   scrapeErr.ToDetail(),
			})
			return
		}

		c.JSON(http.StatusOK, models.AlertResponse{
			Success: true,
			AlertID: id,
		})
	}
}
