package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/stx20sync/internal/domain"
	"github.com/alanyoungcy/stx20sync/internal/observability"
)

// BalanceFetcher reads every balance held by an address.
type BalanceFetcher interface {
	GetBalances(ctx context.Context, address string) ([]domain.Balance, error)
}

// BalanceSyncer refreshes balances for the creators and beneficiaries of
// the current listings.
type BalanceSyncer struct {
	fetcher     BalanceFetcher
	store       domain.BalanceStore
	concurrency int64
	metrics     *observability.Metrics
	logger      *slog.Logger
}

func NewBalanceSyncer(fetcher BalanceFetcher, store domain.BalanceStore, concurrency int, metrics *observability.Metrics, logger *slog.Logger) *BalanceSyncer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &BalanceSyncer{
		fetcher:     fetcher,
		store:       store,
		concurrency: int64(concurrency),
		metrics:     metrics,
		logger:      logger.With(slog.String("component", "balance_syncer")),
	}
}

func (s *BalanceSyncer) Name() string { return "balances" }

// AfterCommit implements PostCommitHook.
func (s *BalanceSyncer) AfterCommit(ctx context.Context, snap domain.Snapshot) error {
	addrs := listingAddresses(snap.Listings)

	var (
		mu       sync.Mutex
		balances []domain.Balance
		wg       sync.WaitGroup
	)
	sem := semaphore.NewWeighted(s.concurrency)
	for _, addr := range addrs {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			bs, err := s.fetcher.GetBalances(ctx, addr)
			if err != nil {
				s.metrics.AuxFetchErrors.WithLabelValues(s.Name()).Inc()
				s.logger.WarnContext(ctx, "balance fetch failed",
					slog.String("address", addr),
					slog.String("error", err.Error()),
				)
				return
			}
			mu.Lock()
			balances = append(balances, bs...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pipeline: balance sync: %w", err)
	}

	sort.Slice(balances, func(i, j int) bool {
		if balances[i].Address != balances[j].Address {
			return balances[i].Address < balances[j].Address
		}
		return balances[i].Ticker < balances[j].Ticker
	})
	if err := s.store.UpsertBalances(ctx, balances); err != nil {
		return fmt.Errorf("pipeline: upsert balances: %w", err)
	}
	s.logger.InfoContext(ctx, "balances synced",
		slog.Int("addresses", len(addrs)),
		slog.Int("balances", len(balances)),
	)
	return nil
}

// listingAddresses returns the distinct non-empty creator and beneficiary
// addresses, sorted.
func listingAddresses(listings []domain.Listing) []string {
	set := make(map[string]struct{})
	for _, l := range listings {
		for _, a := range []string{l.CreatorAddress, l.Beneficiary} {
			if a != "" {
				set[a] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
