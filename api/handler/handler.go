package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shelfwatch/shelfwatch/extract"
	"github.com/shelfwatch/shelfwatch/fetch"
	"github.com/shelfwatch/shelfwatch/models"
	"github.com/shelfwatch/shelfwatch/product"
	"github.com/shelfwatch/shelfwatch/scraper"
	"github.com/shelfwatch/shelfwatch/store"
)

// scrapeProduct runs one fetch + extract round and returns the fetch result,
// the normalized record and the extractor name. Shared by the scrape, compare
// and track handlers.
func scrapeProduct(c *gin.Context, sc *scraper.Scraper, reg *extract.Registry, url string, opts scraper.Options) (*fetch.Result, *product.Record, string, error) {
	result, err := sc.Scrape(c.Request.Context(), url, opts)
	if err != nil {
		return nil, nil, "", err
	}

	rec, name := reg.Extract(result.HTML, url)
	if rec.Title == "" && result.Title != "" {
		rec.Title = result.Title
	}
	return result, rec, name, nil
}

// respondError maps an error to the correct HTTP status code and writes a
// structured JSON error response.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	scrapeErr := toScrapeError(err)
	c.JSON(mapErrorToStatus(scrapeErr), models.ScrapeResponse{
		Success: false,
		Error:   scrapeErr.ToDetail(),
		Timing:  timing,
	})
}

// toScrapeError translates scraper, fetch and store failures into the
// API's error vocabulary.
func toScrapeError(err error) *models.ScrapeError {
	var scrapeErr *models.ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr
	}

	var exhausted *scraper.ExhaustedError
	if errors.As(err, &exhausted) {
		return models.NewScrapeError(models.ErrCodeExhausted, exhausted.Error(), err)
	}

	var fetchErr *fetch.Error
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind {
		case fetch.KindTimeout:
			return models.NewScrapeError(models.ErrCodeTimeout, fetchErr.Error(), err)
		case fetch.KindBrowser:
			return models.NewScrapeError(models.ErrCodeBrowserCrash, fetchErr.Error(), err)
		default:
			return models.NewScrapeError(models.ErrCodeNavigation, fetchErr.Error(), err)
		}
	}

	if errors.Is(err, store.ErrNotFound) {
		return models.NewScrapeError(models.ErrCodeNotFound, "not found", err)
	}

	return models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeExhausted, models.ErrCodeBrowserCrash:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited, models.ErrCodeLLMRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ScrapeResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: err.Error(),
		},
	})
}
