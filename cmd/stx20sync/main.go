// Command stx20sync keeps a PostgreSQL mirror of the STX20 token registry
// and marketplace listings in sync and serves it over a REST API. It loads
// configuration, validates it, sets up signal handling and starts the
// application in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/stx20sync/internal/app"
	"github.com/alanyoungcy/stx20sync/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	deleteToken := flag.String("delete-token", "", "delete the token with this ticker and its listings, then exit")
	once := flag.Bool("once", false, "run a single sync cycle and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("stx20sync starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)
	logger.Debug("effective configuration", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *deleteToken != "":
		err = application.DeleteToken(ctx, *deleteToken)
	case *once:
		report, cycleErr := application.RunOnce(ctx)
		err = cycleErr
		if err == nil {
			logger.Info("cycle finished",
				slog.String("cycle_id", report.CycleID),
				slog.Int("tokens_created", report.TokensCreated),
				slog.Int("listings_created", report.ListingsCreated),
				slog.Int("listings_deleted", report.ListingsDeleted),
				slog.Duration("duration", report.Duration),
			)
		}
	default:
		err = application.Run(ctx)
	}

	if err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("stx20sync stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
