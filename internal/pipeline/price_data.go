package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/stx20sync/internal/domain"
	"github.com/alanyoungcy/stx20sync/internal/observability"
)

// FloorPriceFetcher reads a ticker's aggregate marketplace statistics.
type FloorPriceFetcher interface {
	GetFloorPrice(ctx context.Context, ticker string) (domain.PriceData, error)
}

// PriceDataSyncer refreshes the price_data rows of every ticker that is
// listed now or had price data before.
type PriceDataSyncer struct {
	fetcher     FloorPriceFetcher
	store       domain.PriceDataStore
	concurrency int64
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewPriceDataSyncer creates a PriceDataSyncer fetching at most concurrency
// tickers at once.
func NewPriceDataSyncer(fetcher FloorPriceFetcher, store domain.PriceDataStore, concurrency int, metrics *observability.Metrics, logger *slog.Logger) *PriceDataSyncer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &PriceDataSyncer{
		fetcher:     fetcher,
		store:       store,
		concurrency: int64(concurrency),
		metrics:     metrics,
		logger:      logger.With(slog.String("component", "price_data_syncer")),
	}
}

func (s *PriceDataSyncer) Name() string { return "price_data" }

// AfterCommit implements PostCommitHook. Per-ticker failures are logged and
// skipped; only the final write can fail the sync.
func (s *PriceDataSyncer) AfterCommit(ctx context.Context, snap domain.Snapshot) error {
	existing, err := s.store.ListPriceDataTickers(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: list price data tickers: %w", err)
	}
	set := make(map[string]struct{}, len(existing)+len(snap.Listings))
	for _, t := range existing {
		set[t] = struct{}{}
	}
	for _, l := range snap.Listings {
		set[l.Ticker] = struct{}{}
	}
	tickers := make([]string, 0, len(set))
	for t := range set {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var (
		mu      sync.Mutex
		results = make([]domain.PriceData, 0, len(tickers))
		wg      sync.WaitGroup
	)
	sem := semaphore.NewWeighted(s.concurrency)
	for _, ticker := range tickers {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			pd, err := s.fetcher.GetFloorPrice(ctx, ticker)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					s.metrics.AuxFetchErrors.WithLabelValues(s.Name()).Inc()
					s.logger.WarnContext(ctx, "floor price fetch failed",
						slog.String("ticker", ticker),
						slog.String("error", err.Error()),
					)
				}
				return
			}
			mu.Lock()
			results = append(results, pd)
			mu.Unlock()
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pipeline: price data sync: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Ticker < results[j].Ticker })
	if err := s.store.UpsertPriceData(ctx, results); err != nil {
		return fmt.Errorf("pipeline: upsert price data: %w", err)
	}
	s.logger.InfoContext(ctx, "price data synced",
		slog.Int("tickers", len(tickers)),
		slog.Int("updated", len(results)),
	)
	return nil
}
