// Package config defines the stx20sync configuration, its defaults and
// validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Run modes.
const (
	ModeSync   = "sync"
	ModeServer = "server"
	ModeFull   = "full"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by STX20SYNC_* environment variables.
type Config struct {
	Stx20    Stx20Config    `toml:"stx20"`
	CoinCap  CoinCapConfig  `toml:"coincap"`
	Stacks   StacksConfig   `toml:"stacks"`
	Sync     SyncConfig     `toml:"sync"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// Stx20Config holds the STX20 token and marketplace API endpoints.
type Stx20Config struct {
	TokenAPI       string   `toml:"token_api"`
	MarketplaceAPI string   `toml:"marketplace_api"`
	PageSize       int      `toml:"page_size"`
	SearchLimit    int      `toml:"search_limit"`
	PendingTx      bool     `toml:"pending_tx"`
	Timeout        duration `toml:"timeout"`
}

// CoinCapConfig holds the reference price feed settings.
type CoinCapConfig struct {
	BaseURL  string   `toml:"base_url"`
	APIKey   string   `toml:"api_key"`
	BtcAsset string   `toml:"btc_asset"`
	StxAsset string   `toml:"stx_asset"`
	Timeout  duration `toml:"timeout"`
}

// StacksConfig holds the block notification websocket settings.
type StacksConfig struct {
	Enabled       bool     `toml:"enabled"`
	WsURL         string   `toml:"ws_url"`
	ReconnectBase duration `toml:"reconnect_base"`
	ReconnectMax  duration `toml:"reconnect_max"`
}

// SyncConfig tunes the sync cycle.
type SyncConfig struct {
	FetchTimeout duration `toml:"fetch_timeout"`
	FetchRetries int      `toml:"fetch_retries"`
	RetryBackoff duration `toml:"retry_backoff"`
	SettleDelay  duration `toml:"settle_delay"`
	// PollInterval runs cycles without block notifications; 0 disables.
	PollInterval duration `toml:"poll_interval"`
	CycleTimeout duration `toml:"cycle_timeout"`
	LockTTL      duration `toml:"lock_ttl"`
	// PriceFallbackMaxAge lets a cached reference price younger than this
	// stand in for a failed fetch; 0 always requires fresh prices.
	PriceFallbackMaxAge duration `toml:"price_fallback_max_age"`

	PriceData      bool `toml:"price_data"`
	Balances       bool `toml:"balances"`
	AuxConcurrency int  `toml:"aux_concurrency"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	KeyPrefix    string   `toml:"key_prefix"`
	PriceTTL     duration `toml:"price_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds the snapshot archive bucket parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	PartSizeMB     int64  `toml:"part_size_mb"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects every route except health, docs and metrics. Empty
	// disables authentication.
	APIKey     string   `toml:"api_key"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds alert channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig controls the standalone metrics listener used in sync
// mode. In server and full modes /metrics is served by the API server.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Defaults returns a Config with sensible production defaults.
func Defaults() Config {
	return Config{
		Stx20: Stx20Config{
			TokenAPI:       "https://api.stx20.com/api/v1",
			MarketplaceAPI: "https://api-marketplace.stx20.com/api/v1",
			PageSize:       200,
			SearchLimit:    10000,
			PendingTx:      false,
			Timeout:        duration{30 * time.Second},
		},
		CoinCap: CoinCapConfig{
			BaseURL:  "https://api.coincap.io/v2",
			BtcAsset: "bitcoin",
			StxAsset: "stacks",
			Timeout:  duration{15 * time.Second},
		},
		Stacks: StacksConfig{
			Enabled:       true,
			WsURL:         "wss://api.mainnet.hiro.so/extended/v1/ws",
			ReconnectBase: duration{2 * time.Second},
			ReconnectMax:  duration{60 * time.Second},
		},
		Sync: SyncConfig{
			FetchTimeout:   duration{60 * time.Second},
			FetchRetries:   3,
			RetryBackoff:   duration{time.Second},
			SettleDelay:    duration{10 * time.Second},
			PollInterval:   duration{10 * time.Minute},
			CycleTimeout:   duration{5 * time.Minute},
			LockTTL:        duration{5 * time.Minute},
			PriceData:      true,
			Balances:       false,
			AuxConcurrency: 8,
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "stx20",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			KeyPrefix:    "stx20sync:",
			PriceTTL:     duration{24 * time.Hour},
			StreamMaxLen: 1000,
		},
		S3: S3Config{
			Enabled:    false,
			Region:     "us-east-1",
			UseSSL:     true,
			PartSizeMB: 8,
		},
		Server: ServerConfig{
			Port:       8000,
			RateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"sync_failed", "sync_recovered", "inconsistency"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9100",
		},
		Mode:     ModeFull,
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeSync:   true,
	ModeServer: true,
	ModeFull:   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validEvents = map[string]bool{
	"sync_failed":    true,
	"sync_recovered": true,
	"inconsistency":  true,
}

// RunsSync reports whether the mode runs the sync orchestrator.
func (c *Config) RunsSync() bool { return c.Mode == ModeSync || c.Mode == ModeFull }

// RunsServer reports whether the mode serves the REST API.
func (c *Config) RunsServer() bool { return c.Mode == ModeServer || c.Mode == ModeFull }

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	c.Mode = strings.ToLower(c.Mode)
	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: sync, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.RunsSync() {
		if c.Stx20.TokenAPI == "" {
			errs = append(errs, "stx20: token_api must not be empty")
		}
		if c.Stx20.MarketplaceAPI == "" {
			errs = append(errs, "stx20: marketplace_api must not be empty")
		}
		if c.Stx20.PageSize < 1 {
			errs = append(errs, "stx20: page_size must be >= 1")
		}
		if c.Stx20.SearchLimit < 1 {
			errs = append(errs, "stx20: search_limit must be >= 1")
		}
		if c.CoinCap.BaseURL == "" {
			errs = append(errs, "coincap: base_url must not be empty")
		}
		if c.CoinCap.BtcAsset == "" || c.CoinCap.StxAsset == "" {
			errs = append(errs, "coincap: btc_asset and stx_asset must not be empty")
		}
		if c.Stacks.Enabled && c.Stacks.WsURL == "" {
			errs = append(errs, "stacks: ws_url must not be empty when enabled")
		}
		if !c.Stacks.Enabled && c.Sync.PollInterval.Duration <= 0 {
			errs = append(errs, "sync: poll_interval must be > 0 when stacks block notifications are disabled")
		}
		if c.Sync.FetchTimeout.Duration <= 0 {
			errs = append(errs, "sync: fetch_timeout must be > 0")
		}
		if c.Sync.FetchRetries < 0 {
			errs = append(errs, "sync: fetch_retries must be >= 0")
		}
		if c.Sync.SettleDelay.Duration < 0 || c.Sync.PollInterval.Duration < 0 {
			errs = append(errs, "sync: settle_delay and poll_interval must not be negative")
		}
		if c.Sync.PriceFallbackMaxAge.Duration < 0 {
			errs = append(errs, "sync: price_fallback_max_age must not be negative")
		}
		if c.Sync.PriceFallbackMaxAge.Duration > 0 && !c.Redis.Enabled {
			errs = append(errs, "sync: price_fallback_max_age needs redis.enabled")
		}
		if c.Sync.AuxConcurrency < 1 {
			errs = append(errs, "sync: aux_concurrency must be >= 1")
		}
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.RunsServer() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	for _, ev := range c.Notify.Events {
		if !validEvents[ev] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q (valid: sync_failed, sync_recovered, inconsistency)", ev))
		}
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if c.Mode == ModeSync && c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics: addr must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
