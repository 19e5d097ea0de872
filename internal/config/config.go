// Package config loads environment-sourced configuration once at startup.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings. Values come from the environment, with
// optional .env file support for local development.
type Config struct {
	// Provider credential for the streaming socket and enhanced lookup API.
	// Empty means no credential is configured: the ingestion client refuses
	// to connect and the resolver skips the enhanced tier.
	HeliusAPIKey string

	// RPC endpoints
	RPCUrl       string
	WSUrl        string
	EnhancedURL  string
	MarketAPIUrl string

	// Persistence (optional; empty disables)
	PostgresDSN   string
	ClickHouseDSN string

	// HTTP client settings
	HTTPTimeout time.Duration

	// Streaming client settings
	ReconnectBase        time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration

	// Resolver settings
	BatchSize       int
	BatchWindow     time.Duration
	SignatureTTL    time.Duration
	MinRawDelay     time.Duration
	Max429          int
	BreakerCooldown time.Duration

	// Enrichment settings
	DebounceInterval time.Duration
	SweepInterval    time.Duration

	// Observability
	MetricsAddr string
	LogLevel    string
}

// placeholderKeys are values commonly left in .env templates. They are
// treated identically to a missing credential.
var placeholderKeys = []string{
	"your-api-key",
	"your_api_key",
	"changeme",
	"xxx",
	"<api-key>",
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HeliusAPIKey: sanitizeAPIKey(os.Getenv("HELIUS_API_KEY")),

		RPCUrl:       getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		WSUrl:        getEnv("SOLANA_WS_URL", "wss://mainnet.helius-rpc.com"),
		EnhancedURL:  getEnv("ENHANCED_TX_URL", "https://api.helius.xyz/v0/transactions"),
		MarketAPIUrl: getEnv("MARKET_API_URL", "https://api.dexscreener.com"),

		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		ClickHouseDSN: getEnv("CLICKHOUSE_DSN", ""),

		HTTPTimeout: getDurationEnv("HTTP_TIMEOUT", 30*time.Second),

		ReconnectBase:        getDurationEnv("WS_RECONNECT_BASE", 1*time.Second),
		MaxReconnectAttempts: getIntEnv("WS_MAX_RECONNECT_ATTEMPTS", 10),
		HeartbeatInterval:    getDurationEnv("WS_HEARTBEAT_INTERVAL", 30*time.Second),

		BatchSize:       getIntEnv("RESOLVER_BATCH_SIZE", 100),
		BatchWindow:     getDurationEnv("RESOLVER_BATCH_WINDOW", 300*time.Millisecond),
		SignatureTTL:    getDurationEnv("RESOLVER_SIGNATURE_TTL", 10*time.Minute),
		MinRawDelay:     getDurationEnv("RESOLVER_MIN_RAW_DELAY", 500*time.Millisecond),
		Max429:          getIntEnv("RESOLVER_MAX_429", 3),
		BreakerCooldown: getDurationEnv("RESOLVER_BREAKER_COOLDOWN", 60*time.Second),

		DebounceInterval: getDurationEnv("ENRICH_DEBOUNCE_INTERVAL", 750*time.Millisecond),
		SweepInterval:    getDurationEnv("ENRICH_SWEEP_INTERVAL", 5*time.Minute),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// sanitizeAPIKey returns "" for missing, placeholder, or obviously malformed
// credentials so that all three cases behave identically downstream.
func sanitizeAPIKey(key string) string {
	key = strings.TrimSpace(key)
	if len(key) < 8 {
		return ""
	}
	lower := strings.ToLower(key)
	for _, p := range placeholderKeys {
		if strings.Contains(lower, p) {
			return ""
		}
	}
	return key
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
