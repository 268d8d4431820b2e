package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

type fakeTokens struct {
	tokens   []domain.Token
	rejected int
	byTicker map[string]domain.Token
	err      error
	lookups  []string
	mu       sync.Mutex
}

func (f *fakeTokens) FetchAllTokens(context.Context) ([]domain.Token, int, error) {
	return f.tokens, f.rejected, f.err
}

func (f *fakeTokens) GetToken(_ context.Context, ticker string) (domain.Token, error) {
	f.mu.Lock()
	f.lookups = append(f.lookups, ticker)
	f.mu.Unlock()
	t, ok := f.byTicker[ticker]
	if !ok {
		return domain.Token{}, fmt.Errorf("stx20: get token %s: %w", ticker, domain.ErrNotFound)
	}
	return t, nil
}

type fakeListings struct {
	listings []domain.Listing
	rejected int
}

func (f fakeListings) SearchListings(context.Context, bool) ([]domain.Listing, int, error) {
	return f.listings, f.rejected, nil
}

type fakePrices struct {
	ref domain.ReferencePrices
	err error
}

func (f fakePrices) GetReferencePrices(_ context.Context, btc, stx string) (domain.ReferencePrices, error) {
	if btc != domain.AssetBitcoin || stx != domain.AssetStacks {
		return domain.ReferencePrices{}, fmt.Errorf("unexpected assets %s/%s", btc, stx)
	}
	return f.ref, f.err
}

type mapPriceCache struct {
	mu     sync.Mutex
	prices map[string]float64
	at     map[string]time.Time
}

func newMapPriceCache() *mapPriceCache {
	return &mapPriceCache{prices: map[string]float64{}, at: map[string]time.Time{}}
}

func (c *mapPriceCache) SetPrice(_ context.Context, asset string, p float64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[asset] = p
	c.at[asset] = ts
	return nil
}

func (c *mapPriceCache) GetPrice(_ context.Context, asset string) (float64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[asset]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, c.at[asset], nil
}

func (c *mapPriceCache) GetPrices(ctx context.Context, assets []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, a := range assets {
		if p, _, err := c.GetPrice(ctx, a); err == nil {
			out[a] = p
		}
	}
	return out, nil
}

func TestSnapshotReaderBackfillsListedTickers(t *testing.T) {
	tokens := &fakeTokens{
		tokens:   []domain.Token{{Ticker: "FOO"}},
		rejected: 1,
		byTicker: map[string]domain.Token{"BAR": {Ticker: "BAR", TotalSupply: 7}},
	}
	listings := fakeListings{
		listings: []domain.Listing{
			{ID: "1", Ticker: "FOO"},
			{ID: "2", Ticker: "BAR"},
			{ID: "3", Ticker: "BAR"},
			{ID: "4", Ticker: "GONE"},
		},
		rejected: 2,
	}
	r := NewSnapshotReader(tokens, listings, fakePrices{ref: refPrices}, nil, SnapshotConfig{}, discardLogger())

	snap, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Tokens, 2)
	assert.Equal(t, "BAR", snap.Tokens[1].Ticker)
	assert.ElementsMatch(t, []string{"BAR", "GONE"}, tokens.lookups)
	assert.Equal(t, 1, snap.RejectedTokens)
	assert.Equal(t, 2, snap.RejectedListings)
	assert.Equal(t, refPrices, snap.Prices)
}

func TestSnapshotReaderWrapsFetchErrors(t *testing.T) {
	tokens := &fakeTokens{err: errors.New("connection reset")}
	r := NewSnapshotReader(tokens, fakeListings{}, fakePrices{ref: refPrices}, nil, SnapshotConfig{}, discardLogger())

	_, err := r.Read(context.Background())
	require.ErrorIs(t, err, domain.ErrRemoteFetch)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSnapshotReaderFallsBackToCachedPrices(t *testing.T) {
	cache := newMapPriceCache()
	fresh := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, cache.SetPrice(context.Background(), domain.AssetBitcoin, 60000, fresh))
	require.NoError(t, cache.SetPrice(context.Background(), domain.AssetStacks, 1.5, fresh))

	prices := fakePrices{err: domain.ErrRateLimited}
	cfg := SnapshotConfig{PriceMaxAge: 10 * time.Minute}
	r := NewSnapshotReader(&fakeTokens{}, fakeListings{}, prices, cache, cfg, discardLogger())

	snap, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60000.0, snap.Prices.BtcUsd)
	assert.Equal(t, 1.5, snap.Prices.StxUsd)

	cfg.PriceMaxAge = 30 * time.Second
	r = NewSnapshotReader(&fakeTokens{}, fakeListings{}, prices, cache, cfg, discardLogger())
	_, err = r.Read(context.Background())
	assert.ErrorIs(t, err, domain.ErrRemoteFetch)
}

func TestSnapshotReaderWritesPricesThrough(t *testing.T) {
	cache := newMapPriceCache()
	ref := domain.ReferencePrices{BtcUsd: 1, StxUsd: 2, FetchedAt: time.Now().UTC()}
	r := NewSnapshotReader(&fakeTokens{}, fakeListings{}, fakePrices{ref: ref}, cache, SnapshotConfig{}, discardLogger())

	_, err := r.Read(context.Background())
	require.NoError(t, err)
	p, _, err := cache.GetPrice(context.Background(), domain.AssetStacks)
	require.NoError(t, err)
	assert.Equal(t, 2.0, p)
}
