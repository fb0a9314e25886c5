package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// scrapeRequest mirrors the Shelfwatch API request model.
type scrapeRequest struct {
	URL       string          `json:"url"`
	FetchMode string          `json:"fetch_mode,omitempty"`
	Track     bool            `json:"track,omitempty"`
	Summarize bool            `json:"summarize,omitempty"`
	Schema    json.RawMessage `json:"schema,omitempty"`
}

// compareRequest mirrors the Shelfwatch compare API request model.
type compareRequest struct {
	URLs      []string `json:"urls"`
	FetchMode string   `json:"fetch_mode,omitempty"`
}

// trackRequest mirrors the Shelfwatch track API request model.
type trackRequest struct {
	URL         string   `json:"url"`
	TargetPrice *float64 `json:"target_price,omitempty"`
	Direction   string   `json:"direction,omitempty"`
}

// apiError is the error envelope shared by all Shelfwatch API responses.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func main() {
	apiURL := os.Getenv("SHELFWATCH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SHELFWATCH_API_KEY")

	s := server.NewMCPServer(
		"shelfwatch",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scrapeTool := mcp.NewTool("scrape_product",
		mcp.WithDescription("Scrape a product page and return a normalized record (title, price, currency, rating, availability, brand, image). Escalates from plain HTTP to a headless browser as needed."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the product page to scrape"),
		),
		mcp.WithString("fetch_mode",
			mcp.Description("Retrieval strategy: 'auto' (default, escalates tiers), 'http', 'bypass_http' or 'browser'"),
			mcp.Enum("auto", "http", "bypass_http", "browser"),
		),
		mcp.WithBoolean("track",
			mcp.Description("Persist the product and record a price-history point"),
		),
		mcp.WithBoolean("summarize",
			mcp.Description("Attach an LLM summary of the page (requires a configured LLM backend)"),
		),
	)
	s.AddTool(scrapeTool, handleScrapeProduct(apiURL, apiKey))

	compareTool := mcp.NewTool("compare_products",
		mcp.WithDescription("Scrape multiple product pages and compare them: price spread, rating spread, availability and a weighted best-value pick."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of product page URLs to compare (at least two)"),
		),
		mcp.WithString("fetch_mode",
			mcp.Description("Retrieval strategy: 'auto' (default), 'http', 'bypass_http' or 'browser'"),
			mcp.Enum("auto", "http", "bypass_http", "browser"),
		),
	)
	s.AddTool(compareTool, handleCompareProducts(apiURL, apiKey))

	trackTool := mcp.NewTool("track_product",
		mcp.WithDescription("Scrape a product page, persist it and start tracking its price. Optionally registers a price alert."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the product page to track"),
		),
		mcp.WithNumber("target_price",
			mcp.Description("Register a price alert at this threshold"),
		),
		mcp.WithString("direction",
			mcp.Description("Alert direction: 'drop' (default, fires when price falls to the target) or 'rise'"),
			mcp.Enum("drop", "rise"),
		),
	)
	s.AddTool(trackTool, handleTrackProduct(apiURL, apiKey))

	historyTool := mcp.NewTool("price_history",
		mcp.WithDescription("Return the recorded price history and trend for a tracked product."),
		mcp.WithNumber("product_id",
			mcp.Required(),
			mcp.Description("The id returned when the product was tracked"),
		),
		mcp.WithNumber("days",
			mcp.Description("History window in days (default: 30)"),
		),
	)
	s.AddTool(historyTool, handlePriceHistory(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the Shelfwatch API and returns the body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// apiGet sends a GET request to the Shelfwatch API and returns the body.
func apiGet(ctx context.Context, client *http.Client, apiURL, apiKey, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// toolResult converts an API response body into an MCP result, surfacing
// the API's error envelope when the call failed.
func toolResult(body []byte) *mcp.CallToolResult {
	var envelope struct {
		Success bool      `json:"success"`
		Error   *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", envelope.Error.Code, envelope.Error.Message))
	}
	return mcp.NewToolResultText(strings.TrimSpace(string(body)))
}

func handleScrapeProduct(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := scrapeRequest{
			URL:       url,
			FetchMode: request.GetString("fetch_mode", ""),
		}
		args := request.GetArguments()
		if v, ok := args["track"].(bool); ok {
			reqBody.Track = v
		}
		if v, ok := args["summarize"].(bool); ok {
			reqBody.Summarize = v
		}

		body, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/scrape", reqBody)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResult(body), nil
	}
}

func handleCompareProducts(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 300 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil || len(urls) < 2 {
			return mcp.NewToolResultError("urls must list at least two URLs"), nil
		}

		reqBody := compareRequest{
			URLs:      urls,
			FetchMode: request.GetString("fetch_mode", ""),
		}

		body, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/compare", reqBody)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResult(body), nil
	}
}

func handleTrackProduct(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := trackRequest{
			URL:       url,
			Direction: request.GetString("direction", ""),
		}
		if target, ok := request.GetArguments()["target_price"].(float64); ok && target > 0 {
			reqBody.TargetPrice = &target
		}

		body, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/track", reqBody)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResult(body), nil
	}
}

func handlePriceHistory(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		productID, ok := args["product_id"].(float64)
		if !ok || productID <= 0 {
			return mcp.NewToolResultError("product_id is required"), nil
		}

		path := fmt.Sprintf("/api/v1/products/%d/history", int64(productID))
		if days, ok := args["days"].(float64); ok && days > 0 {
			path += fmt.Sprintf("?days=%d", int(days))
		}

		body, err := apiGet(ctx, client, apiURL, apiKey, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolResult(body), nil
	}
}
