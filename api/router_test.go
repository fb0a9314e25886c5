package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/shelfwatch/cache"
	"github.com/shelfwatch/shelfwatch/config"
	"github.com/shelfwatch/shelfwatch/extract"
	"github.com/shelfwatch/shelfwatch/fetch"
	"github.com/shelfwatch/shelfwatch/identity"
	"github.com/shelfwatch/shelfwatch/models"
	"github.com/shelfwatch/shelfwatch/scraper"
	"github.com/shelfwatch/shelfwatch/store"
	"github.com/shelfwatch/shelfwatch/track"
)

const productHTML = `<html><head><title>Stub Page</title>
<script type="application/ld+json">
{"@type":"Product","name":"Stub Widget","brand":{"name":"Acme"},
 "offers":{"price":"49.99","availability":"https://schema.org/InStock"},
 "aggregateRating":{"ratingValue":"4.2"}}
</script></head><body></body></html>`

// stubTier serves canned HTML and fails for URLs containing "down".
type stubTier struct {
	tier fetch.Tier
}

func (s stubTier) Tier() fetch.Tier { return s.tier }

func (s stubTier) Fetch(_ context.Context, req *fetch.Request) (*fetch.Result, error) {
	if strings.Contains(req.URL, "down") {
		return nil, fetch.NewHTTPStatus(503)
	}
	return &fetch.Result{
		HTML:       productHTML,
		Title:      "Stub Page",
		StatusCode: 200,
		TierUsed:   s.tier,
		FinalURL:   req.URL,
	}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode},
		Scraper: config.ScraperConfig{
			DefaultRetries: 1,
			DefaultTimeout: 5 * time.Second,
			MaxTimeout:     120 * time.Second,
		},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) (*gin.Engine, store.Store) {
	t.Helper()

	rotator := identity.NewRotator(config.IdentityConfig{UserAgents: []string{"test-agent"}})
	sc := scraper.New(cfg.Scraper, rotator, nil,
		stubTier{tier: fetch.TierHTTP},
		stubTier{tier: fetch.TierBypass},
		nil)

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	deps := Deps{
		Scraper:     sc,
		Registry:    extract.DefaultRegistry(),
		Store:       st,
		Tracker:     track.New(st, config.WebhookConfig{}),
		Cache:       cache.New(16, time.Minute),
		StoreDriver: "sqlite",
	}
	return NewRouter(deps, cfg, time.Now()), st
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestScrapeEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := doJSON(t, r, http.MethodPost, "/api/v1/scrape",
		`{"url":"https://shop.example/p/1","fetch_mode":"http"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.ScrapeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "http", resp.TierUsed)
	assert.Equal(t, "miss", resp.CacheStatus)
	require.NotNil(t, resp.Product)
	assert.Equal(t, "Stub Widget", resp.Product.Title)
	require.NotNil(t, resp.Product.Price)
	assert.InDelta(t, 49.99, *resp.Product.Price, 1e-9)

	// Second identical request is served from cache.
	w = doJSON(t, r, http.MethodPost, "/api/v1/scrape",
		`{"url":"https://shop.example/p/1","fetch_mode":"http"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hit", resp.CacheStatus)
}

func TestScrapeEndpoint_InvalidRequest(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := doJSON(t, r, http.MethodPost, "/api/v1/scrape", `{"fetch_mode":"http"}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp models.ScrapeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeInvalidInput, resp.Error.Code)
}

func TestScrapeEndpoint_ExhaustionMapsToBadGateway(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := doJSON(t, r, http.MethodPost, "/api/v1/scrape",
		`{"url":"https://shop.example/down","fetch_mode":"http","retries":1,"fresh":true}`, nil)
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())

	var resp models.ScrapeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeExhausted, resp.Error.Code)
}

func TestTrackEndpointRegistersAlert(t *testing.T) {
	r, st := newTestRouter(t, testConfig())

	w := doJSON(t, r, http.MethodPost, "/api/v1/track",
		`{"url":"https://shop.example/p/2","target_price":40,"direction":"drop"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.TrackResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Greater(t, resp.ProductID, int64(0))
	assert.Greater(t, resp.AlertID, int64(0))

	alerts, err := st.ActiveAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "below", alerts[0].Direction)
	assert.InDelta(t, 40.0, alerts[0].TargetPrice, 1e-9)
}

func TestProductsAndHistoryEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := doJSON(t, r, http.MethodPost, "/api/v1/track",
		`{"url":"https://shop.example/p/3"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var tracked models.TrackResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tracked))

	w = doJSON(t, r, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list models.ProductsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Products, 1)
	assert.Equal(t, "https://shop.example/p/3", list.Products[0].URL)

	w = doJSON(t, r, http.MethodGet,
		"/api/v1/products/"+strconv.FormatInt(tracked.ProductID, 10)+"/history", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var hist models.PriceHistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist.History, 1)
	assert.InDelta(t, 49.99, hist.History[0].Price, 1e-9)
	require.NotNil(t, hist.Trend)
	assert.Equal(t, track.TrendInsufficient, hist.Trend.Direction)
}

func TestHistoryEndpoint_UnknownProduct(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := doJSON(t, r, http.MethodGet, "/api/v1/products/999/history", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp models.PriceHistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeNotFound, resp.Error.Code)
}

func TestCompareEndpoint_PartialFailure(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := doJSON(t, r, http.MethodPost, "/api/v1/compare",
		`{"urls":["https://shop.example/p/4","https://shop.example/down"],"retries":1}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.CompareResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Products, 1)
	require.NotNil(t, resp.Report)
	require.Contains(t, resp.Failures, "https://shop.example/down")
	assert.Equal(t, models.ErrCodeExhausted, resp.Failures["https://shop.example/down"].Code)
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"sekrit"}}
	r, _ := newTestRouter(t, cfg)

	w := doJSON(t, r, http.MethodGet, "/api/v1/extractors", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/extractors", "",
		map[string]string{"X-API-Key": "sekrit"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/extractors", "",
		map[string]string{"Authorization": "Bearer sekrit"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open.
	w = doJSON(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := doJSON(t, r, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "sqlite", resp.Store)
	assert.False(t, resp.Browser.Available)
	assert.Greater(t, resp.Extractors, 0)
}
