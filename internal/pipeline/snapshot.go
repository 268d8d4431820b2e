package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// TokenFetcher reads tokens from the STX20 token API.
type TokenFetcher interface {
	FetchAllTokens(ctx context.Context) ([]domain.Token, int, error)
	GetToken(ctx context.Context, ticker string) (domain.Token, error)
}

// ListingFetcher reads open listings from the marketplace API.
type ListingFetcher interface {
	SearchListings(ctx context.Context, pendingTx bool) ([]domain.Listing, int, error)
}

// PriceFetcher reads USD reference prices.
type PriceFetcher interface {
	GetReferencePrices(ctx context.Context, btcAsset, stxAsset string) (domain.ReferencePrices, error)
}

// SnapshotConfig tunes SnapshotReader.
type SnapshotConfig struct {
	FetchTimeout time.Duration
	BtcAsset     string
	StxAsset     string
	PendingTx    bool
	// PriceMaxAge lets a cached reference price stand in for a failed
	// price fetch. Zero disables the fallback.
	PriceMaxAge time.Duration
}

// SnapshotReader fetches the remote state of one cycle: all tokens, all
// open listings and the reference prices.
type SnapshotReader struct {
	tokens   TokenFetcher
	listings ListingFetcher
	prices   PriceFetcher
	cache    domain.PriceCache // optional
	cfg      SnapshotConfig
	logger   *slog.Logger
}

// NewSnapshotReader creates a SnapshotReader. cache may be nil.
func NewSnapshotReader(
	tokens TokenFetcher,
	listings ListingFetcher,
	prices PriceFetcher,
	cache domain.PriceCache,
	cfg SnapshotConfig,
	logger *slog.Logger,
) *SnapshotReader {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	if cfg.BtcAsset == "" {
		cfg.BtcAsset = domain.AssetBitcoin
	}
	if cfg.StxAsset == "" {
		cfg.StxAsset = domain.AssetStacks
	}
	return &SnapshotReader{
		tokens:   tokens,
		listings: listings,
		prices:   prices,
		cache:    cache,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "snapshot_reader")),
	}
}

// Read fetches the three sources concurrently, each under its own deadline,
// then backfills tokens referenced by listings but absent from the token
// list. Every failure is wrapped in domain.ErrRemoteFetch.
func (r *SnapshotReader) Read(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fctx, cancel := context.WithTimeout(gctx, r.cfg.FetchTimeout)
		defer cancel()
		var err error
		snap.Tokens, snap.RejectedTokens, err = r.tokens.FetchAllTokens(fctx)
		if err != nil {
			return fmt.Errorf("pipeline: fetch tokens: %w: %w", domain.ErrRemoteFetch, err)
		}
		return nil
	})
	g.Go(func() error {
		fctx, cancel := context.WithTimeout(gctx, r.cfg.FetchTimeout)
		defer cancel()
		var err error
		snap.Listings, snap.RejectedListings, err = r.listings.SearchListings(fctx, r.cfg.PendingTx)
		if err != nil {
			return fmt.Errorf("pipeline: fetch listings: %w: %w", domain.ErrRemoteFetch, err)
		}
		return nil
	})
	g.Go(func() error {
		fctx, cancel := context.WithTimeout(gctx, r.cfg.FetchTimeout)
		defer cancel()
		var err error
		snap.Prices, err = r.referencePrices(fctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Snapshot{}, err
	}
	backfilled, err := r.backfill(ctx, snap.Tokens, snap.Listings)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.Tokens = append(snap.Tokens, backfilled...)
	return snap, nil
}

// referencePrices fetches BTC and STX prices and writes them through to the
// cache. When the fetch fails a sufficiently fresh cached pair is used.
func (r *SnapshotReader) referencePrices(ctx context.Context) (domain.ReferencePrices, error) {
	ref, err := r.prices.GetReferencePrices(ctx, r.cfg.BtcAsset, r.cfg.StxAsset)
	if err == nil {
		if r.cache != nil {
			for asset, p := range map[string]float64{r.cfg.BtcAsset: ref.BtcUsd, r.cfg.StxAsset: ref.StxUsd} {
				if cerr := r.cache.SetPrice(ctx, asset, p, ref.FetchedAt); cerr != nil {
					r.logger.WarnContext(ctx, "price cache write failed",
						slog.String("asset", asset),
						slog.String("error", cerr.Error()),
					)
				}
			}
		}
		return ref, nil
	}

	if cached, ok := r.cachedPrices(ctx); ok {
		r.logger.WarnContext(ctx, "reference price fetch failed, using cached prices",
			slog.String("error", err.Error()),
			slog.Time("fetched_at", cached.FetchedAt),
		)
		return cached, nil
	}
	return domain.ReferencePrices{}, fmt.Errorf("pipeline: fetch reference prices: %w: %w", domain.ErrRemoteFetch, err)
}

func (r *SnapshotReader) cachedPrices(ctx context.Context) (domain.ReferencePrices, bool) {
	if r.cache == nil || r.cfg.PriceMaxAge <= 0 {
		return domain.ReferencePrices{}, false
	}
	btc, btcAt, err := r.cache.GetPrice(ctx, r.cfg.BtcAsset)
	if err != nil {
		return domain.ReferencePrices{}, false
	}
	stx, stxAt, err := r.cache.GetPrice(ctx, r.cfg.StxAsset)
	if err != nil {
		return domain.ReferencePrices{}, false
	}
	oldest := btcAt
	if stxAt.Before(oldest) {
		oldest = stxAt
	}
	if time.Since(oldest) > r.cfg.PriceMaxAge || btc <= 0 || stx <= 0 {
		return domain.ReferencePrices{}, false
	}
	return domain.ReferencePrices{BtcUsd: btc, StxUsd: stx, FetchedAt: oldest}, true
}

// backfill looks up tickers that listings reference but the token list did
// not return. Tickers unknown upstream are skipped; the orchestrator decides
// whether the local store can vouch for them.
func (r *SnapshotReader) backfill(ctx context.Context, tokens []domain.Token, listings []domain.Listing) ([]domain.Token, error) {
	known := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		known[t.Ticker] = struct{}{}
	}
	missing := make(map[string]struct{})
	for _, l := range listings {
		if _, ok := known[l.Ticker]; !ok {
			missing[l.Ticker] = struct{}{}
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	tickers := make([]string, 0, len(missing))
	for t := range missing {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	found := make([]*domain.Token, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, ticker := range tickers {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, r.cfg.FetchTimeout)
			defer cancel()
			tok, err := r.tokens.GetToken(fctx, ticker)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				r.logger.WarnContext(ctx, "listing references unknown token", slog.String("ticker", ticker))
				return nil
			case err != nil:
				return fmt.Errorf("pipeline: backfill token %s: %w: %w", ticker, domain.ErrRemoteFetch, err)
			}
			found[i] = &tok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Token, 0, len(found))
	for _, t := range found {
		if t != nil {
			out = append(out, *t)
		}
	}
	if len(out) > 0 {
		r.logger.InfoContext(ctx, "backfilled tokens", slog.Int("count", len(out)))
	}
	return out, nil
}
