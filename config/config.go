package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Identity  IdentityConfig
	Fetch     FetchConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Store     StoreConfig
	Redis     RedisConfig
	Webhook   WebhookConfig
	LLM       LLMConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// IdentityConfig controls user-agent/proxy rotation and request pacing.
type IdentityConfig struct {
	// UserAgents overrides the built-in desktop agent pool.
	UserAgents []string

	// RotateUserAgents enables round-robin user-agent rotation.
	RotateUserAgents bool // default: true

	// Proxies is the initial proxy pool ("http://..." or "socks5://...").
	Proxies []string

	// RotateProxies enables round-robin proxy rotation.
	RotateProxies bool // default: true

	// MinDelay/MaxDelay bound the human-like pause between requests.
	MinDelay time.Duration // default: 1s
	MaxDelay time.Duration // default: 3s

	// MaxPerMinute caps the global request rate. 0 disables the check.
	MaxPerMinute int // default: 30

	// BackoffBase is the base delay for exponential retry backoff.
	BackoffBase time.Duration // default: 1s

	// DomainInterval is the minimum spacing between requests to one host.
	// 0 disables per-domain pacing.
	DomainInterval time.Duration // default: 0
}

// FetchConfig controls the HTTP fetch tiers.
type FetchConfig struct {
	// Timeout is the deadline for one plain or bypass HTTP attempt.
	Timeout time.Duration // default: 30s

	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64 // default: 10MB
}

// BrowserConfig controls the Rod browser engine.
type BrowserConfig struct {
	// Enabled toggles the browser tier entirely.
	Enabled bool // default: true

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages caps concurrent open tabs.
	MaxPages int // default: 10

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// NavigationTimeout is the max time for navigation alone.
	NavigationTimeout time.Duration // default: 15s

	// WaitUntil is the default navigation wait condition:
	// "load", "domcontentloaded" or "networkidle".
	WaitUntil string // default: "networkidle"

	// ScrollDelay is the pause between auto-scroll steps.
	ScrollDelay time.Duration // default: 500ms

	// SettleDelay is the final pause before content capture.
	SettleDelay time.Duration // default: 1s

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
}

// ScraperConfig controls the fetch orchestrator.
type ScraperConfig struct {
	// DefaultRetries is the escalation pass budget per scrape.
	DefaultRetries int // default: 3

	// DefaultTimeout is the per-attempt timeout handed to tiers.
	DefaultTimeout time.Duration // default: 30s

	// MaxTimeout is the maximum allowed timeout from the client.
	MaxTimeout time.Duration // default: 120s
}

// StoreConfig controls persistence.
type StoreConfig struct {
	// Driver is "sqlite", "postgres" or "" (persistence disabled).
	Driver string // default: "sqlite"

	// DSN is the database path (sqlite) or connection URL (postgres).
	DSN string // default: "shelfwatch.db"
}

// RedisConfig controls the outbox relay.
type RedisConfig struct {
	// Addr enables the relay when non-empty, e.g. "localhost:6379".
	Addr string

	// Stream is the Redis stream events are published to.
	Stream string // default: "shelfwatch:events"

	// RelayInterval is the outbox poll cadence.
	RelayInterval time.Duration // default: 5s

	// RelayBatch is the max events published per poll.
	RelayBatch int // default: 100
}

// WebhookConfig controls alert delivery.
type WebhookConfig struct {
	// URL receives price alert events when non-empty.
	URL string

	// Secret signs deliveries with HMAC-SHA256 when non-empty.
	Secret string
}

// LLMConfig controls the optional enrichment backend.
type LLMConfig struct {
	// APIKey enables LLM enrichment when non-empty.
	APIKey string

	// Model is the chat model used for all enrichment calls.
	Model string // default: "gpt-4o-mini"

	// BaseURL points at any OpenAI-compatible API.
	BaseURL string // default: "https://api.openai.com/v1"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting on the API.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// CacheConfig controls the scrape response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses. 0 disables caching.
	MaxEntries int // default: 1000

	// TTL is how long a cached response stays valid.
	TTL time.Duration // default: 15m
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host: envOr("SHELFWATCH_HOST", "0.0.0.0"),
			Port: envIntOr("SHELFWATCH_PORT", 8080),
			Mode: envOr("SHELFWATCH_MODE", "release"),
		},
		Identity: IdentityConfig{
			UserAgents:       envSliceOr("SHELFWATCH_USER_AGENTS", nil),
			RotateUserAgents: envBoolOr("SHELFWATCH_ROTATE_UA", true),
			Proxies:          envSliceOr("SHELFWATCH_PROXIES", nil),
			RotateProxies:    envBoolOr("SHELFWATCH_ROTATE_PROXIES", true),
			MinDelay:         envDurationOr("SHELFWATCH_MIN_DELAY", time.Second),
			MaxDelay:         envDurationOr("SHELFWATCH_MAX_DELAY", 3*time.Second),
			MaxPerMinute:     envIntOr("SHELFWATCH_MAX_PER_MINUTE", 30),
			BackoffBase:      envDurationOr("SHELFWATCH_BACKOFF_BASE", time.Second),
			DomainInterval:   envDurationOr("SHELFWATCH_DOMAIN_INTERVAL", 0),
		},
		Fetch: FetchConfig{
			Timeout:      envDurationOr("SHELFWATCH_FETCH_TIMEOUT", 30*time.Second),
			MaxBodyBytes: int64(envIntOr("SHELFWATCH_MAX_BODY_BYTES", 10*1024*1024)),
		},
		Browser: BrowserConfig{
			Enabled:           envBoolOr("SHELFWATCH_BROWSER_ENABLED", true),
			Headless:          envBoolOr("SHELFWATCH_HEADLESS", true),
			MaxPages:          envIntOr("SHELFWATCH_MAX_PAGES", 10),
			NoSandbox:         envBoolOr("SHELFWATCH_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("SHELFWATCH_BROWSER_BIN"),
			NavigationTimeout: envDurationOr("SHELFWATCH_NAV_TIMEOUT", 15*time.Second),
			WaitUntil:         envOr("SHELFWATCH_WAIT_UNTIL", "networkidle"),
			ScrollDelay:       envDurationOr("SHELFWATCH_SCROLL_DELAY", 500*time.Millisecond),
			SettleDelay:       envDurationOr("SHELFWATCH_SETTLE_DELAY", time.Second),
			BlockedResourceTypes: envSliceOr("SHELFWATCH_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
		},
		Scraper: ScraperConfig{
			DefaultRetries: envIntOr("SHELFWATCH_RETRIES", 3),
			DefaultTimeout: envDurationOr("SHELFWATCH_DEFAULT_TIMEOUT", 30*time.Second),
			MaxTimeout:     envDurationOr("SHELFWATCH_MAX_TIMEOUT", 120*time.Second),
		},
		Store: StoreConfig{
			Driver: envOr("SHELFWATCH_STORE_DRIVER", "sqlite"),
			DSN:    envOr("SHELFWATCH_STORE_DSN", "shelfwatch.db"),
		},
		Redis: RedisConfig{
			Addr:          os.Getenv("SHELFWATCH_REDIS_ADDR"),
			Stream:        envOr("SHELFWATCH_REDIS_STREAM", "shelfwatch:events"),
			RelayInterval: envDurationOr("SHELFWATCH_RELAY_INTERVAL", 5*time.Second),
			RelayBatch:    envIntOr("SHELFWATCH_RELAY_BATCH", 100),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("SHELFWATCH_WEBHOOK_URL"),
			Secret: os.Getenv("SHELFWATCH_WEBHOOK_SECRET"),
		},
		LLM: LLMConfig{
			APIKey:  os.Getenv("SHELFWATCH_LLM_API_KEY"),
			Model:   envOr("SHELFWATCH_LLM_MODEL", "gpt-4o-mini"),
			BaseURL: envOr("SHELFWATCH_LLM_BASE_URL", "https://api.openai.com/v1"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SHELFWATCH_AUTH_ENABLED", false),
			APIKeys: envSliceOr("SHELFWATCH_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SHELFWATCH_RATE_RPS", 5.0),
			Burst:             envIntOr("SHELFWATCH_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("SHELFWATCH_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("SHELFWATCH_CACHE_TTL", 15*time.Minute),
		},
		Log: LogConfig{
			Level:  envOr("SHELFWATCH_LOG_LEVEL", "info"),
			Format: envOr("SHELFWATCH_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
