package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies STX20SYNC_* environment variable overrides, and
// returns the final Config. An empty path or a missing file leaves the
// defaults in place. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STX20SYNC_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── STX20 ──
	setStr(&cfg.Stx20.TokenAPI, "STX20SYNC_STX20_TOKEN_API")
	setStr(&cfg.Stx20.MarketplaceAPI, "STX20SYNC_STX20_MARKETPLACE_API")
	setInt(&cfg.Stx20.PageSize, "STX20SYNC_STX20_PAGE_SIZE")
	setInt(&cfg.Stx20.SearchLimit, "STX20SYNC_STX20_SEARCH_LIMIT")
	setBool(&cfg.Stx20.PendingTx, "STX20SYNC_STX20_PENDING_TX")
	setDuration(&cfg.Stx20.Timeout, "STX20SYNC_STX20_TIMEOUT")

	// ── CoinCap ──
	setStr(&cfg.CoinCap.BaseURL, "STX20SYNC_COINCAP_BASE_URL")
	setStr(&cfg.CoinCap.APIKey, "STX20SYNC_COINCAP_API_KEY")
	setStr(&cfg.CoinCap.BtcAsset, "STX20SYNC_COINCAP_BTC_ASSET")
	setStr(&cfg.CoinCap.StxAsset, "STX20SYNC_COINCAP_STX_ASSET")

	// ── Stacks ──
	setBool(&cfg.Stacks.Enabled, "STX20SYNC_STACKS_ENABLED")
	setStr(&cfg.Stacks.WsURL, "STX20SYNC_STACKS_WS_URL")

	// ── Sync ──
	setDuration(&cfg.Sync.FetchTimeout, "STX20SYNC_SYNC_FETCH_TIMEOUT")
	setInt(&cfg.Sync.FetchRetries, "STX20SYNC_SYNC_FETCH_RETRIES")
	setDuration(&cfg.Sync.RetryBackoff, "STX20SYNC_SYNC_RETRY_BACKOFF")
	setDuration(&cfg.Sync.SettleDelay, "STX20SYNC_SYNC_SETTLE_DELAY")
	setDuration(&cfg.Sync.PollInterval, "STX20SYNC_SYNC_POLL_INTERVAL")
	setDuration(&cfg.Sync.CycleTimeout, "STX20SYNC_SYNC_CYCLE_TIMEOUT")
	setDuration(&cfg.Sync.LockTTL, "STX20SYNC_SYNC_LOCK_TTL")
	setDuration(&cfg.Sync.PriceFallbackMaxAge, "STX20SYNC_SYNC_PRICE_FALLBACK_MAX_AGE")
	setBool(&cfg.Sync.PriceData, "STX20SYNC_SYNC_PRICE_DATA")
	setBool(&cfg.Sync.Balances, "STX20SYNC_SYNC_BALANCES")
	setInt(&cfg.Sync.AuxConcurrency, "STX20SYNC_SYNC_AUX_CONCURRENCY")

	// ── Database ──
	setStr(&cfg.Database.DSN, "STX20SYNC_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "STX20SYNC_DATABASE_HOST")
	setInt(&cfg.Database.Port, "STX20SYNC_DATABASE_PORT")
	setStr(&cfg.Database.Database, "STX20SYNC_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "STX20SYNC_DATABASE_USER")
	setStr(&cfg.Database.Password, "STX20SYNC_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "STX20SYNC_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "STX20SYNC_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "STX20SYNC_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "STX20SYNC_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "STX20SYNC_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "STX20SYNC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STX20SYNC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STX20SYNC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STX20SYNC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STX20SYNC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STX20SYNC_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "STX20SYNC_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "STX20SYNC_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "STX20SYNC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STX20SYNC_S3_REGION")
	setStr(&cfg.S3.Bucket, "STX20SYNC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STX20SYNC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STX20SYNC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STX20SYNC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STX20SYNC_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "STX20SYNC_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // compatibility alias
	setStringSlice(&cfg.Server.CORSOrigins, "STX20SYNC_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "STX20SYNC_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "STX20SYNC_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STX20SYNC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STX20SYNC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STX20SYNC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STX20SYNC_NOTIFY_EVENTS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "STX20SYNC_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "STX20SYNC_METRICS_ADDR")

	// ── Top-level ──
	setStr(&cfg.Mode, "STX20SYNC_MODE")
	setStr(&cfg.LogLevel, "STX20SYNC_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
