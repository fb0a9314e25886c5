package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shelfwatch/shelfwatch/compare"
	"github.com/shelfwatch/shelfwatch/extract"
	"github.com/shelfwatch/shelfwatch/models"
	"github.com/shelfwatch/shelfwatch/product"
	"github.com/shelfwatch/shelfwatch/scraper"
)

// Compare returns a handler for POST /api/v1/compare.
//
// URLs are scraped concurrently. A URL that fails every tier does not fail
// the request; it is reported in the failures map and the comparison runs
// over whatever succeeded.
func Compare(sc *scraper.Scraper, reg *extract.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CompareRequest
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

		records := make([]*product.Record, len(req.URLs))
		failures := make(map[string]*models.ErrorDetail)

		var mu sync.Mutex
		var wg sync.WaitGroup
		for i, url := range req.URLs {
			wg.Add(1)
			go func(i int, url string) {
				defer wg.Done()
				_, rec, _, err := scrapeProduct(c, sc, reg, url, opts)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures[url] = toScrapeError(err).ToDetail()
					return
				}
				records[i] = rec
			}(i, url)
		}
		wg.Wait()

		// Compact out failed slots, keeping request order.
		products := make([]*product.Record, 0, len(records))
		for _, rec := range records {
			if rec != nil {
				products = append(products, rec)
			}
		}

		if len(products) == 0 {
			c.JSON(http.StatusBadGateway, models.CompareResponse{
				Success:  false,
				Failures: failures,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeExhausted,
					Message: "every URL failed to scrape",
				},
			})
			return
		}

		resp := models.CompareResponse{
			Success:  true,
			Products: products,
			Report:   compare.Compare(products),
		}
		if len(failures) > 0 {
			resp.Failures = failures
		}
		if best := compare.BestValue(products, req.PriceWeight, req.RatingWeight); best != nil {
			resp.BestValue = best
		}

		c.JSON(http.StatusOK, resp)
	}
}
