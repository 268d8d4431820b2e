package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stx20sync/internal/pipeline"
	"github.com/alanyoungcy/stx20sync/internal/platform/coincap"
	"github.com/alanyoungcy/stx20sync/internal/platform/stacks"
	"github.com/alanyoungcy/stx20sync/internal/platform/stx20"
	"github.com/alanyoungcy/stx20sync/internal/server"
	"github.com/alanyoungcy/stx20sync/internal/server/handler"
)

const shutdownTimeout = 5 * time.Second

// SyncMode runs the sync orchestrator and, when enabled, a standalone
// metrics listener.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering sync mode")

	g, ctx := errgroup.WithContext(ctx)

	orch := a.newOrchestrator(deps)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", deps.Metrics.Handler())
		a.serveHTTP(ctx, g, "metrics", &http.Server{
			Addr:              a.cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	return g.Wait()
}

// ServerMode serves the REST API only. Sync status and manual triggers
// answer 503 because no orchestrator runs in this process.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// FullMode runs the orchestrator and the REST API in one process; the API
// reports live sync status and accepts manual triggers.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering full mode")

	g, ctx := errgroup.WithContext(ctx)

	orch := a.newOrchestrator(deps)
	g.Go(func() error {
		return orch.Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps, orch)

	return g.Wait()
}

// newOrchestrator builds the platform clients, the snapshot reader and the
// orchestrator with every optional collaborator the dependencies provide.
func (a *App) newOrchestrator(deps *Dependencies) *pipeline.Orchestrator {
	cfg := a.cfg
	logger := a.logger

	stxOpts := []stx20.Option{
		stx20.WithTimeout(cfg.Stx20.Timeout.Duration),
		stx20.WithLogger(logger),
	}
	if deps.Metrics != nil {
		stxOpts = append(stxOpts, stx20.WithSaturationCounter(deps.Metrics.ValuesSaturated))
	}
	tokenClient := stx20.NewClient(cfg.Stx20.TokenAPI, cfg.Stx20.PageSize, stxOpts...)
	marketClient := stx20.NewMarketplaceClient(cfg.Stx20.MarketplaceAPI, cfg.Stx20.SearchLimit, stxOpts...)
	priceClient := coincap.NewClient(cfg.CoinCap.BaseURL, cfg.CoinCap.APIKey, cfg.CoinCap.Timeout.Duration)

	reader := pipeline.NewSnapshotReader(tokenClient, marketClient, priceClient, deps.PriceCache,
		pipeline.SnapshotConfig{
			FetchTimeout: cfg.Sync.FetchTimeout.Duration,
			BtcAsset:     cfg.CoinCap.BtcAsset,
			StxAsset:     cfg.CoinCap.StxAsset,
			PendingTx:    cfg.Stx20.PendingTx,
			PriceMaxAge:  cfg.Sync.PriceFallbackMaxAge.Duration,
		}, logger)

	opts := []pipeline.OrchestratorOption{pipeline.WithAlerter(deps.Notifier)}
	if cfg.Stacks.Enabled {
		sub := stacks.NewBlockSubscriber(cfg.Stacks.WsURL,
			stacks.WithLogger(logger),
			stacks.WithReconnectDelay(cfg.Stacks.ReconnectBase.Duration, cfg.Stacks.ReconnectMax.Duration),
		)
		opts = append(opts, pipeline.WithBlockSource(sub))
		if deps.AdvisoryChecks == nil {
			deps.AdvisoryChecks = make(map[string]handler.Pinger)
		}
		deps.AdvisoryChecks["stacks"] = sub.Ping
	}
	if deps.LockManager != nil {
		opts = append(opts, pipeline.WithLocks(deps.LockManager))
	}
	if deps.SignalBus != nil {
		opts = append(opts, pipeline.WithSignalBus(deps.SignalBus))
	}
	if deps.Archiver != nil {
		opts = append(opts, pipeline.WithArchiver(deps.Archiver))
	}

	var hooks []pipeline.PostCommitHook
	if cfg.Sync.PriceData {
		hooks = append(hooks, pipeline.NewPriceDataSyncer(marketClient, deps.PriceDataStore,
			cfg.Sync.AuxConcurrency, deps.Metrics, logger))
	}
	if cfg.Sync.Balances {
		hooks = append(hooks, pipeline.NewBalanceSyncer(tokenClient, deps.BalanceStore,
			cfg.Sync.AuxConcurrency, deps.Metrics, logger))
	}
	if len(hooks) > 0 {
		opts = append(opts, pipeline.WithHooks(hooks...))
	}

	return pipeline.NewOrchestrator(reader, deps.SyncStore, pipeline.OrchestratorConfig{
		FetchRetries: cfg.Sync.FetchRetries,
		RetryBackoff: cfg.Sync.RetryBackoff.Duration,
		SettleDelay:  cfg.Sync.SettleDelay.Duration,
		PollInterval: cfg.Sync.PollInterval.Duration,
		CycleTimeout: cfg.Sync.CycleTimeout.Duration,
		LockTTL:      cfg.Sync.LockTTL.Duration,
	}, deps.Metrics, logger, opts...)
}

// startHTTPServer registers the REST API and runs it until ctx is cancelled.
// orch may be nil.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, orch *pipeline.Orchestrator) {
	var ctrl handler.SyncController
	if orch != nil {
		ctrl = orch
	}
	var history handler.CycleHistory
	if deps.SignalBus != nil {
		history = deps.SignalBus
	}
	var prices handler.PriceSource
	if deps.PriceCache != nil {
		prices = deps.PriceCache
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.HealthChecks, deps.AdvisoryChecks),
		Tokens:   handler.NewTokenHandler(deps.SyncStore, deps.SyncStore, deps.PriceDataStore, a.logger),
		Balances: handler.NewBalanceHandler(deps.BalanceStore, a.logger),
		Prices:   handler.NewPriceHandler(prices, ctrl, a.cfg.CoinCap.BtcAsset, a.cfg.CoinCap.StxAsset, a.logger),
		Sync:     handler.NewSyncHandler(ctrl, history, deps.ArchiveBrowser, a.logger),
	}

	srv := server.NewServer(server.Config{
		Addr:        fmt.Sprintf(":%d", a.cfg.Server.Port),
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.Metrics, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// serveHTTP runs a plain http.Server on g and shuts it down with ctx.
func (a *App) serveHTTP(ctx context.Context, g *errgroup.Group, name string, srv *http.Server) {
	g.Go(func() error {
		a.logger.InfoContext(ctx, "http listener starting", slog.String("name", name), slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: %s listener: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
