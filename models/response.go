package models

import (
	"encoding/json"

	"github.com/shelfwatch/shelfwatch/compare"
	"github.com/shelfwatch/shelfwatch/product"
)

// ScrapeResponse is the response for POST /api/v1/scrape.
type ScrapeResponse struct {
	// Success indicates whether the scrape completed without errors.
	Success bool `json:"success"`

	// StatusCode is the HTTP status code from the scraped page.
	StatusCode int `json:"status_code"`

	// FinalURL is the URL after following all redirects.
	FinalURL string `json:"final_url"`

	// TierUsed names the fetch tier that produced the page
	// ("http", "bypass_http", "browser").
	TierUsed string `json:"tier_used"`

	// Product is the extracted and normalized product record.
	Product *product.Record `json:"product,omitempty"`

	// Extractor names the registry entry that produced Product
	// ("generic" for the fallback path).
	Extractor string `json:"extractor,omitempty"`

	// ProductID is set when the request asked for tracking.
	ProductID int64 `json:"product_id,omitempty"`

	// Summary is the LLM page summary, when requested.
	Summary string `json:"summary,omitempty"`

	// Extracted is the LLM schema-extraction output, when requested.
	Extracted json.RawMessage `json:"extracted,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching disabled).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// FetchMs is the time spent fetching the page across all tiers.
	FetchMs int64 `json:"fetch_ms"`

	// ExtractMs is the time spent in extractor dispatch and normalization.
	ExtractMs int64 `json:"extract_ms"`

	// EnrichMs is the time spent in LLM enrichment, when requested.
	EnrichMs int64 `json:"enrich_ms,omitempty"`
}

// CompareResponse is the response for POST /api/v1/compare.
type CompareResponse struct {
	Success bool `json:"success"`

	// Products are the normalized records, in request order. Failed URLs
	// are omitted and listed in Failures.
	Products []*product.Record `json:"products"`

	// Report aggregates prices, ratings and availability across Products.
	Report *compare.Report `json:"report,omitempty"`

	// BestValue is the weighted price/rating winner.
	BestValue *compare.ValueScore `json:"best_value,omitempty"`

	// Failures maps a URL to the error that kept it out of the comparison.
	Failures map[string]*ErrorDetail `json:"failures,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// TrackResponse is the response for POST /api/v1/track.
type TrackResponse struct {
	Success   bool            `json:"success"`
	ProductID int64           `json:"product_id"`
	Product   *product.Record `json:"product,omitempty"`

	// AlertID is set when the request registered a price alert.
	AlertID int64 `json:"alert_id,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// ProductSummary is one row in GET /api/v1/products.
type ProductSummary struct {
	ID           int64    `json:"id"`
	URL          string   `json:"url"`
	Source       string   `json:"source"`
	Title        string   `json:"title,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	Availability *bool    `json:"availability,omitempty"`
	UpdatedAt    string   `json:"updated_at"`
}

// ProductsResponse is the response for GET /api/v1/products.
type ProductsResponse struct {
	Success  bool             `json:"success"`
	Products []ProductSummary `json:"products"`
	Error    *ErrorDetail     `json:"error,omitempty"`
}

// PricePoint is one entry in a product's price history.
type PricePoint struct {
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
	RecordedAt string  `json:"recorded_at"`
}

// TrendInfo summarizes price movement over the queried window.
type TrendInfo struct {
	// Direction is "increasing", "decreasing", "stable" or "insufficient_data".
	Direction  string  `json:"direction"`
	MinPrice   float64 `json:"min_price"`
	MaxPrice   float64 `json:"max_price"`
	AvgPrice   float64 `json:"avg_price"`
	DataPoints int     `json:"data_points"`
}

// PriceHistoryResponse is the response for GET /api/v1/products/:id/history.
type PriceHistoryResponse struct {
	Success   bool         `json:"success"`
	ProductID int64        `json:"product_id"`
	History   []PricePoint `json:"history"`
	Trend     *TrendInfo   `json:"trend,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// AlertResponse is the response for POST /api/v1/alerts.
type AlertResponse struct {
	Success bool         `json:"success"`
	AlertID int64        `json:"alert_id"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ExtractorInfo describes one registry entry for GET /api/v1/extractors.
type ExtractorInfo struct {
	// Position is the dispatch priority (lower wins).
	Position int    `json:"position"`
	Name     string `json:"name"`
}

// ExtractorsResponse is the response for GET /api/v1/extractors.
type ExtractorsResponse struct {
	Success    bool            `json:"success"`
	Extractors []ExtractorInfo `json:"extractors"`
}

// HealthResponse is the response for GET /api/v1/healthz.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy" or "degraded"
	Uptime  string `json:"uptime"`
	Version string `json:"version"`

	// Browser reports headless-browser availability and load.
	Browser BrowserStats `json:"browser"`

	// Store names the active persistence backend ("sqlite", "postgres", "none").
	Store string `json:"store"`

	// Extractors is the number of registered extraction plugins.
	Extractors int `json:"extractors"`
}

// BrowserStats reports the state of the browser engine.
type BrowserStats struct {
	Available   bool `json:"available"`
	ActivePages int  `json:"active_pages"`
	MaxPages    int  `json:"max_pages"`
}
