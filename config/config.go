package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod"`

	// Trade store retention
	Store StoreConfig `json:"store"`

	// Whale universe classification
	Universe UniverseConfig `json:"universe"`

	// Position ledger retention
	Ledger LedgerConfig `json:"ledger"`

	// Whale activity polling
	Monitor MonitorConfig `json:"monitor"`

	// Tracker coordinator (whale trade cache, price snapshots)
	Tracker TrackerConfig `json:"tracker"`

	// Discord - env var only
	Discord DiscordConfig `json:"-"`

	// Polymarket API
	Polymarket PolymarketConfig `json:"polymarket"`

	// Health/stats server
	HealthServer HealthServerConfig `json:"health_server"`
}

// StoreConfig holds trade store retention configuration.
type StoreConfig struct {
	MaxTrades int           `json:"max_trades"` // Cap before cleanup triggers
	Retention time.Duration `json:"retention"`  // Max age for stored trades
}

// UniverseConfig holds whale classification configuration.
type UniverseConfig struct {
	RebuildInterval time.Duration `json:"rebuild_interval"` // Tier recomputation cadence
	MinTrades       int           `json:"min_trades"`       // Trade-count floor for stats inclusion
	MinVolume       float64       `json:"min_volume"`       // USD volume floor for stats inclusion
	LeaderboardSize int           `json:"leaderboard_size"` // Leaderboard entries fetched at startup
	Top10Size       int           `json:"top10_size"`       // Rank bracket for the top10 tier
	Top50Size       int           `json:"top50_size"`       // Rank bracket for the top50 tier
}

// LedgerConfig holds position ledger retention configuration.
type LedgerConfig struct {
	ClosedRetention time.Duration `json:"closed_retention"` // How long fully-closed positions linger
}

// MonitorConfig holds activity polling configuration.
type MonitorConfig struct {
	PollInterval   time.Duration `json:"poll_interval"`    // Cadence between polling cycles
	BatchSize      int           `json:"batch_size"`       // Whales polled per cycle
	Lookback       time.Duration `json:"lookback"`         // Only accept activity this recent
	MaxSeenHashes  int           `json:"max_seen_hashes"`  // Seen-transaction-hash set cap
	TrimSeenTo     int           `json:"trim_seen_to"`     // Most-recent hashes kept on overflow
	RequestsPerSec float64       `json:"requests_per_sec"` // Outbound activity request rate limit
}

// TrackerConfig holds tracker coordinator configuration.
type TrackerConfig struct {
	CacheCapacity   int           `json:"cache_capacity"`   // Whale trade ring buffer cap
	CacheTTL        time.Duration `json:"cache_ttl"`        // Cached whale trade max age
	CleanupInterval time.Duration `json:"cleanup_interval"` // Cache/ledger sweep cadence
}

// DiscordConfig holds Discord notification configuration.
type DiscordConfig struct {
	BotToken  string `json:"-"`
	ChannelID string `json:"-"`
}

// PolymarketConfig holds Polymarket API configuration.
type PolymarketConfig struct {
	GammaAPIURL string `json:"gamma_api_url"`
	DataAPIURL  string `json:"data_api_url"`
	MarketWSURL string `json:"market_ws_url"`
}

// HealthServerConfig holds health/stats server configuration.
type HealthServerConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// Defaults returns a config with hardcoded default values.
//
// Default value table (env var -> default):
//
//	STORE_MAX_TRADES            100000
//	STORE_RETENTION             720h (30 days)
//	UNIVERSE_REBUILD_INTERVAL   1h
//	UNIVERSE_MIN_TRADES         10
//	UNIVERSE_MIN_VOLUME         10000 (USD)
//	UNIVERSE_LEADERBOARD_SIZE   200
//	UNIVERSE_TOP10_SIZE         10
//	UNIVERSE_TOP50_SIZE         50
//	LEDGER_CLOSED_RETENTION     24h
//	MONITOR_POLL_INTERVAL       30s
//	MONITOR_BATCH_SIZE          10
//	MONITOR_LOOKBACK            5m
//	MONITOR_MAX_SEEN_HASHES     1000
//	MONITOR_TRIM_SEEN_TO        500
//	MONITOR_REQUESTS_PER_SEC    5.0
//	TRACKER_CACHE_CAPACITY      1000
//	TRACKER_CACHE_TTL           4h
//	TRACKER_CLEANUP_INTERVAL    10m
//	HEALTH_SERVER_ENABLED       true
//	HEALTH_SERVER_PORT          8080
func Defaults() *Config {
	return &Config{
		IsProd: false,

		Store: StoreConfig{
			MaxTrades: 100000,
			Retention: 30 * 24 * time.Hour,
		},

		Universe: UniverseConfig{
			RebuildInterval: 1 * time.Hour,
			MinTrades:       10,
			MinVolume:       10000.0,
			LeaderboardSize: 200,
			Top10Size:       10,
			Top50Size:       50,
		},

		Ledger: LedgerConfig{
			ClosedRetention: 24 * time.Hour,
		},

		Monitor: MonitorConfig{
			PollInterval:   30 * time.Second,
			BatchSize:      10,
			Lookback:       5 * time.Minute,
			MaxSeenHashes:  1000,
			TrimSeenTo:     500,
			RequestsPerSec: 5.0,
		},

		Tracker: TrackerConfig{
			CacheCapacity:   1000,
			CacheTTL:        4 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},

		Polymarket: PolymarketConfig{
			GammaAPIURL: "https://gamma-api.polymarket.com",
			DataAPIURL:  "https://data-api.polymarket.com",
			MarketWSURL: "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		},

		HealthServer: HealthServerConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

// Load reads configuration from environment variables, falling back to Defaults.
func Load() *Config {
	d := Defaults()

	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		Store: StoreConfig{
			MaxTrades: envInt("STORE_MAX_TRADES", d.Store.MaxTrades),
			Retention: envDuration("STORE_RETENTION", d.Store.Retention),
		},

		Universe: UniverseConfig{
			RebuildInterval: envDuration("UNIVERSE_REBUILD_INTERVAL", d.Universe.RebuildInterval),
			MinTrades:       envInt("UNIVERSE_MIN_TRADES", d.Universe.MinTrades),
			MinVolume:       envFloat("UNIVERSE_MIN_VOLUME", d.Universe.MinVolume),
			LeaderboardSize: envInt("UNIVERSE_LEADERBOARD_SIZE", d.Universe.LeaderboardSize),
			Top10Size:       envInt("UNIVERSE_TOP10_SIZE", d.Universe.Top10Size),
			Top50Size:       envInt("UNIVERSE_TOP50_SIZE", d.Universe.Top50Size),
		},

		Ledger: LedgerConfig{
			ClosedRetention: envDuration("LEDGER_CLOSED_RETENTION", d.Ledger.ClosedRetention),
		},

		Monitor: MonitorConfig{
			PollInterval:   envDuration("MONITOR_POLL_INTERVAL", d.Monitor.PollInterval),
			BatchSize:      envInt("MONITOR_BATCH_SIZE", d.Monitor.BatchSize),
			Lookback:       envDuration("MONITOR_LOOKBACK", d.Monitor.Lookback),
			MaxSeenHashes:  envInt("MONITOR_MAX_SEEN_HASHES", d.Monitor.MaxSeenHashes),
			TrimSeenTo:     envInt("MONITOR_TRIM_SEEN_TO", d.Monitor.TrimSeenTo),
			RequestsPerSec: envFloat("MONITOR_REQUESTS_PER_SEC", d.Monitor.RequestsPerSec),
		},

		Tracker: TrackerConfig{
			CacheCapacity:   envInt("TRACKER_CACHE_CAPACITY", d.Tracker.CacheCapacity),
			CacheTTL:        envDuration("TRACKER_CACHE_TTL", d.Tracker.CacheTTL),
			CleanupInterval: envDuration("TRACKER_CLEANUP_INTERVAL", d.Tracker.CleanupInterval),
		},

		Discord: DiscordConfig{
			BotToken:  envString("DISCORD_BOT_TOKEN", ""),
			ChannelID: envString("DISCORD_CHANNEL_ID", ""),
		},

		Polymarket: PolymarketConfig{
			GammaAPIURL: envString("GAMMA_API_URL", d.Polymarket.GammaAPIURL),
			DataAPIURL:  envString("DATA_API_URL", d.Polymarket.DataAPIURL),
			MarketWSURL: envString("MARKET_WS_URL", d.Polymarket.MarketWSURL),
		},

		HealthServer: HealthServerConfig{
			Enabled: envBoolDefault("HEALTH_SERVER_ENABLED", d.HealthServer.Enabled),
			Port:    envInt("HEALTH_SERVER_PORT", d.HealthServer.Port),
		},
	}
}

// Validate checks the config for values that would break the core at runtime.
func (c *Config) Validate() error {
	if c.Store.MaxTrades <= 0 {
		return fmt.Errorf("store max trades must be positive, got %d", c.Store.MaxTrades)
	}
	if c.Store.Retention <= 0 {
		return fmt.Errorf("store retention must be positive, got %v", c.Store.Retention)
	}
	if c.Universe.Top10Size > c.Universe.Top50Size {
		return fmt.Errorf("top10 bracket (%d) cannot exceed top50 bracket (%d)",
			c.Universe.Top10Size, c.Universe.Top50Size)
	}
	if c.Monitor.BatchSize <= 0 {
		return fmt.Errorf("monitor batch size must be positive, got %d", c.Monitor.BatchSize)
	}
	if c.Monitor.TrimSeenTo > c.Monitor.MaxSeenHashes {
		return fmt.Errorf("seen-hash trim target (%d) cannot exceed cap (%d)",
			c.Monitor.TrimSeenTo, c.Monitor.MaxSeenHashes)
	}
	if c.Tracker.CacheCapacity <= 0 {
		return fmt.Errorf("tracker cache capacity must be positive, got %d", c.Tracker.CacheCapacity)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}
