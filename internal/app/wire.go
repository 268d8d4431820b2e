package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/stx20sync/internal/blob/s3"
	"github.com/alanyoungcy/stx20sync/internal/cache/redis"
	"github.com/alanyoungcy/stx20sync/internal/config"
	"github.com/alanyoungcy/stx20sync/internal/domain"
	"github.com/alanyoungcy/stx20sync/internal/notify"
	"github.com/alanyoungcy/stx20sync/internal/observability"
	"github.com/alanyoungcy/stx20sync/internal/server/handler"
	"github.com/alanyoungcy/stx20sync/internal/store/postgres"
)

// Dependencies holds every concrete implementation the modes need. Optional
// components (Redis, S3) stay nil when disabled in the configuration.
type Dependencies struct {
	SyncStore      domain.SyncStore
	PriceDataStore domain.PriceDataStore
	BalanceStore   domain.BalanceStore

	// Redis-backed; nil without redis.enabled.
	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// S3-backed; nil without s3.enabled.
	Archiver       domain.SnapshotArchiver
	ArchiveBrowser handler.ArchiveBrowser

	Notifier *notify.Notifier
	Metrics  *observability.Metrics

	// HealthChecks backs /api/ready. AdvisoryChecks are reported there
	// without failing readiness.
	HealthChecks   map[string]handler.Pinger
	AdvisoryChecks map[string]handler.Pinger
}

// closerStack releases resources in reverse acquisition order.
type closerStack []func()

func (s *closerStack) push(fn func()) { *s = append(*s, fn) }

func (s closerStack) closeAll() {
	for i := len(s) - 1; i >= 0; i-- {
		s[i]()
	}
}

// Wire connects every configured backend and returns the dependency set
// with a cleanup func for shutdown. On error everything opened so far is
// already released.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers closerStack
	deps := &Dependencies{
		Metrics:        observability.NewMetrics(),
		HealthChecks:   make(map[string]handler.Pinger),
		AdvisoryChecks: make(map[string]handler.Pinger),
	}

	steps := []struct {
		name string
		run  func(context.Context, *config.Config, *Dependencies, *closerStack) error
	}{
		{"postgres", wirePostgres},
		{"redis", wireRedis},
		{"s3", wireS3},
	}
	for _, step := range steps {
		if err := step.run(ctx, cfg, deps, &closers); err != nil {
			closers.closeAll()
			return nil, nil, fmt.Errorf("wire: %s: %w", step.name, err)
		}
	}

	senders := notifySenders(cfg.Notify)
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("s3", cfg.S3.Enabled),
		slog.Int("notify_senders", len(senders)),
	)
	return deps, closers.closeAll, nil
}

func wirePostgres(ctx context.Context, cfg *config.Config, deps *Dependencies, closers *closerStack) error {
	db := cfg.Database
	client, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      db.DSN,
		Host:     db.Host,
		Port:     db.Port,
		Database: db.Database,
		User:     db.User,
		Password: db.Password,
		SSLMode:  db.SSLMode,
		MaxConns: db.PoolMaxConns,
		MinConns: db.PoolMinConns,
	})
	if err != nil {
		return err
	}
	closers.push(client.Close)

	if db.RunMigrations {
		if err := client.RunMigrations(ctx); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	pool := client.Pool()
	deps.SyncStore = postgres.NewSyncStore(pool)
	deps.PriceDataStore = postgres.NewPriceDataStore(pool)
	deps.BalanceStore = postgres.NewBalanceStore(pool)
	deps.HealthChecks["postgres"] = client.Ping
	return nil
}

func wireRedis(ctx context.Context, cfg *config.Config, deps *Dependencies, closers *closerStack) error {
	rc := cfg.Redis
	if !rc.Enabled {
		return nil
	}
	client, err := redis.New(ctx, redis.ClientConfig{
		Addr:       rc.Addr,
		Password:   rc.Password,
		DB:         rc.DB,
		PoolSize:   rc.PoolSize,
		MaxRetries: rc.MaxRetries,
		TLSEnabled: rc.TLSEnabled,
		KeyPrefix:  rc.KeyPrefix,
	})
	if err != nil {
		return err
	}
	closers.push(func() { _ = client.Close() })

	deps.PriceCache = redis.NewPriceCache(client, rc.PriceTTL.Duration)
	deps.LockManager = redis.NewLockManager(client)
	deps.SignalBus = redis.NewSignalBus(client, rc.StreamMaxLen)
	deps.RateLimiter = redis.NewRateLimiter(client)
	deps.HealthChecks["redis"] = client.Ping
	return nil
}

func wireS3(ctx context.Context, cfg *config.Config, deps *Dependencies, _ *closerStack) error {
	sc := cfg.S3
	if !sc.Enabled {
		return nil
	}
	client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       sc.Endpoint,
		Region:         sc.Region,
		Bucket:         sc.Bucket,
		AccessKey:      sc.AccessKey,
		SecretKey:      sc.SecretKey,
		UseSSL:         sc.UseSSL,
		ForcePathStyle: sc.ForcePathStyle,
	})
	if err != nil {
		return err
	}

	deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(client), sc.PartSizeMB<<20)
	deps.ArchiveBrowser = s3blob.NewArchiveBrowser(s3blob.NewReader(client))
	deps.HealthChecks["s3"] = client.Health
	return nil
}

// notifySenders returns a sender per fully configured channel.
func notifySenders(nc config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if nc.TelegramToken != "" && nc.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(nc.TelegramToken, nc.TelegramChatID))
	}
	if nc.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(nc.DiscordWebhookURL))
	}
	return senders
}
