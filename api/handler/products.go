package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shelfwatch/shelfwatch/models"
	"github.com/shelfwatch/shelfwatch/store"
	"github.com/shelfwatch/shelfwatch/track"
)

// ListProducts returns a handler for GET /api/v1/products.
//
// Supports ?limit= and ?offset= pagination, defaulting to 50/0.
func ListProducts(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := intQuery(c, "limit", 50)
		if limit > 200 {
			limit = 200
		}
		offset := intQuery(c, "offset", 0)

		products, err := st.ListProducts(c.Request.Context(), limit, offset)
		if err != nil {
			scrapeErr := models.NewScrapeError(models.ErrCodeStorage, err.Error(), err)
			c.JSON(mapErrorToStatus(scrapeErr), models.ProductsResponse{
				Success: false,
				Error:   scrapeErr.ToDetail(),
			})
			return
		}

		summaries := make([]models.ProductSummary, 0, len(products))
		for _, p := range products {
			summaries = append(summaries, models.ProductSummary{
				ID:           p.ID,
				URL:          p.Record.URL,
				Source:       p.Record.Source,
				Title:        p.Record.Title,
				Price:        p.Record.Price,
				Rating:       p.Record.Rating,
				Availability: p.Record.Availability,
				UpdatedAt:    p.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}

		c.JSON(http.StatusOK, models.ProductsResponse{
			Success:  true,
			Products: summaries,
		})
	}
}

// PriceHistory returns a handler for GET /api/v1/products/:id/history.
//
// Supports ?days= to bound the window, defaulting to 30.
func PriceHistory(st store.Store, tr *track.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, models.PriceHistoryResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "product id must be a positive integer",
				},
			})
			return
		}

		days := intQuery(c, "days", 30)
		if days <= 0 {
			days = 30
		}

		ctx := c.Request.Context()
		if _, err := st.GetProduct(ctx, id); err != nil {
			scrapeErr := toScrapeError(err)
			c.JSON(mapErrorToStatus(scrapeErr), models.PriceHistoryResponse{
				Success:   false,
				ProductID: id,
				Error:     scrapeErr.ToDetail(),
			})
			return
		}

		since := time.Now().AddDate(0, 0, -days)
		points, err := st.PriceHistory(ctx, id, since)
		if err != nil {
			scrapeErr := models.NewScrapeError(models.ErrCodeStorage, err.Error(), err)
			c.JSON(mapErrorToStatus(scrapeErr), models.PriceHistoryResponse{
				Success:   false,
				ProductID: id,
				Error:     scrapeErr.ToDetail(),
			})
			return
		}

		history := make([]models.PricePoint, 0, len(points))
		for _, p := range points {
			history = append(history, models.PricePoint{
				Price:      p.Price,
				Currency:   p.Currency,
				RecordedAt: p.RecordedAt.UTC().Format(time.RFC3339),
			})
		}

		resp := models.PriceHistoryResponse{
			Success:   true,
			ProductID: id,
			History:   history,
		}
		if trend, err := tr.Trend(ctx, id, days); err == nil {
			resp.Trend = &models.TrendInfo{
				Direction:  trend.Direction,
				MinPrice:   trend.MinPrice,
				MaxPrice:   trend.MaxPrice,
				AvgPrice:   trend.AvgPrice,
				DataPoints: trend.DataPoints,
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
