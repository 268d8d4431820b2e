// Package app provides the top-level application lifecycle of stx20sync. It
// wires together the stores, caches, archive, platform clients and the sync
// orchestrator, then starts the goroutines of the configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/stx20sync/internal/config"
	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}

	switch a.cfg.Mode {
	case config.ModeSync:
		return a.SyncMode(ctx, deps)
	case config.ModeServer:
		return a.ServerMode(ctx, deps)
	case config.ModeFull:
		return a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// RunOnce executes a single sync cycle and returns its report.
func (a *App) RunOnce(ctx context.Context) (domain.CycleReport, error) {
	deps, err := a.wire(ctx)
	if err != nil {
		return domain.CycleReport{}, err
	}
	return a.newOrchestrator(deps).RunCycle(ctx)
}

// DeleteToken removes one token and its dependent rows from the database.
// Tickers are matched exactly as stored; no case folding is applied.
func (a *App) DeleteToken(ctx context.Context, ticker string) error {
	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}
	return a.deleteToken(ctx, deps.SyncStore, ticker)
}

func (a *App) deleteToken(ctx context.Context, store domain.SyncStore, ticker string) error {
	if err := store.DeleteToken(ctx, ticker); err != nil {
		return fmt.Errorf("app: delete token %s: %w", ticker, err)
	}
	a.logger.InfoContext(ctx, "token deleted", slog.String("ticker", ticker))
	return nil
}

// Close runs all registered cleanup functions in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) wire(ctx context.Context) (*Dependencies, error) {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	return deps, nil
}
