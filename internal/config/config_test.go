package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.RunsSync())
	assert.True(t, cfg.RunsServer())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "sync"

[sync]
fetch_retries = 5
settle_delay = "3s"

[server]
port = 9000
`), 0o600))

	t.Setenv("STX20SYNC_SYNC_POLL_INTERVAL", "1m")
	t.Setenv("STX20SYNC_DATABASE_PASSWORD", "hunter2")
	t.Setenv("STX20SYNC_NOTIFY_EVENTS", "sync_failed, inconsistency")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeSync, cfg.Mode)
	assert.Equal(t, 5, cfg.Sync.FetchRetries)
	assert.Equal(t, 3*time.Second, cfg.Sync.SettleDelay.Duration)
	assert.Equal(t, time.Minute, cfg.Sync.PollInterval.Duration)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, []string{"sync_failed", "inconsistency"}, cfg.Notify.Events)
	// untouched defaults survive
	assert.Equal(t, 200, cfg.Stx20.PageSize)
	assert.Equal(t, time.Minute, cfg.Sync.FetchTimeout.Duration)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Stx20.TokenAPI, cfg.Stx20.TokenAPI)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sync]\nfetch_timeout = \"soon\"\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Database.PoolMinConns = 20
	cfg.Notify.Events = []string{"order_filled"}
	cfg.Notify.TelegramToken = "t"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "pool_min_conns must not exceed pool_max_conns")
	assert.Contains(t, msg, `unknown event "order_filled"`)
	assert.Contains(t, msg, "telegram_token and telegram_chat_id")
}

func TestValidateSyncRules(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = ModeSync
	cfg.Stacks.Enabled = false
	cfg.Sync.PollInterval.Duration = 0
	cfg.Sync.PriceFallbackMaxAge.Duration = time.Minute

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval must be > 0")
	assert.Contains(t, err.Error(), "price_fallback_max_age needs redis.enabled")

	// Server mode does not care about sync settings.
	cfg.Mode = ModeServer
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "secret"
	cfg.S3.SecretKey = "s3secret"
	cfg.Server.APIKey = "key"
	cfg.CoinCap.APIKey = ""

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Database.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Empty(t, red.CoinCap.APIKey)
	assert.Equal(t, "secret", cfg.Database.Password)

	red.Notify.Events[0] = "changed"
	assert.Equal(t, "sync_failed", cfg.Notify.Events[0])
}

func TestRedactDSN(t *testing.T) {
	assert.Empty(t, redactDSN(""))
	assert.Equal(t, "postgres://sync:xxxxx@db:5432/stx20?sslmode=disable",
		redactDSN("postgres://sync:hunter2@db:5432/stx20?sslmode=disable"))
	assert.Equal(t, "postgres://db:5432/stx20", redactDSN("postgres://db:5432/stx20"))
	assert.Equal(t, "***", redactDSN("host=db user=sync password=hunter2"))
}
