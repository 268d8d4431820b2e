package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// setupTestDB starts a disposable PostgreSQL container and applies the
// embedded migrations.
func setupTestDB(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in -short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("stx20"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	require.NoError(t, client.RunMigrations(ctx))
	// A second run is a no-op.
	require.NoError(t, client.RunMigrations(ctx))
	return client
}

func TestSyncStoreRoundTrip(t *testing.T) {
	client := setupTestDB(t)
	ctx := context.Background()
	s := NewSyncStore(client.Pool())

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	reinc := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	captured := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	err := s.WithTx(ctx, func(tx domain.SyncTx) error {
		n, err := tx.CreateTokens(ctx, []domain.Token{
			{Ticker: "FOO", TotalSupply: 1000, MintLimit: 10, SupplyLeftToMint: 500, PercentMinted: 50, CreationDate: created},
			{Ticker: "FOO"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = tx.CreateListings(ctx, []domain.Listing{
			{ID: "a", Ticker: "FOO", PriceRate: 100, Status: domain.ListingStatusPending, Revision: 3,
				PendingPurchaseTx: []string{"0x1"}, LastReincarnate: &reinc},
			{ID: "b", Ticker: "FOO", PriceRate: 80, Status: "weird"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		var history [domain.IntervalCount]domain.PricePoint
		history[domain.Interval24h] = domain.PricePoint{Value: 1.5, CapturedAt: captured, Change: -10}
		return tx.UpdateTokenPricing(ctx, "FOO", domain.TokenPricing{
			Floor:          domain.FloorPrice{Stx: 80, Usd: 0.00016, MarketCapStx: 80000},
			ActiveListings: 2,
			History:        history,
		})
	})
	require.NoError(t, err)

	tok, err := s.GetToken(ctx, "FOO")
	require.NoError(t, err)
	assert.Equal(t, int64(500), tok.SupplyLeftToMint)
	assert.True(t, tok.CreationDate.Equal(created))
	require.NotNil(t, tok.Floor)
	assert.Equal(t, 80.0, tok.Floor.Stx)
	assert.Equal(t, 2, tok.ActiveListings)
	assert.Equal(t, 1.5, tok.History[domain.Interval24h].Value)
	assert.True(t, tok.History[domain.Interval24h].CapturedAt.Equal(captured))
	assert.False(t, tok.History[domain.Interval1h].Initialized())

	a, err := s.GetListing(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"0x1"}, a.PendingPurchaseTx)
	require.NotNil(t, a.LastReincarnate)
	assert.True(t, a.LastReincarnate.Equal(reinc))

	b, err := s.GetListing(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatus("weird"), b.Status)
	assert.Empty(t, b.PendingPurchaseTx)
	assert.Nil(t, b.LastReincarnate)

	byTicker, err := s.ListListingsByTicker(ctx, "FOO", domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, byTicker, 1)
	assert.Equal(t, "b", byTicker[0].ID)
}

func TestSyncStoreRollbackAndRevisionFloor(t *testing.T) {
	client := setupTestDB(t)
	ctx := context.Background()
	s := NewSyncStore(client.Pool())

	require.NoError(t, s.WithTx(ctx, func(tx domain.SyncTx) error {
		if _, err := tx.CreateTokens(ctx, []domain.Token{{Ticker: "FOO"}}); err != nil {
			return err
		}
		_, err := tx.CreateListings(ctx, []domain.Listing{{ID: "a", Ticker: "FOO", Revision: 5}})
		return err
	}))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx domain.SyncTx) error {
		n, err := tx.DeleteListings(ctx, []string{"a", "missing"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = s.GetListing(ctx, "a")
	require.NoError(t, err, "rolled back delete must leave the row")

	require.NoError(t, s.WithTx(ctx, func(tx domain.SyncTx) error {
		return tx.UpdateListing(ctx, domain.Listing{ID: "a", Ticker: "FOO", Revision: 2, Status: domain.ListingStatusSubmitted})
	}))
	a, err := s.GetListing(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(5), a.Revision)
	assert.Equal(t, domain.ListingStatusSubmitted, a.Status)

	err = s.WithTx(ctx, func(tx domain.SyncTx) error {
		return tx.UpdateListing(ctx, domain.Listing{ID: "nope", Ticker: "FOO"})
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteTokenCascades(t *testing.T) {
	client := setupTestDB(t)
	ctx := context.Background()
	s := NewSyncStore(client.Pool())
	prices := NewPriceDataStore(client.Pool())

	require.NoError(t, s.WithTx(ctx, func(tx domain.SyncTx) error {
		if _, err := tx.CreateTokens(ctx, []domain.Token{{Ticker: "FOO"}}); err != nil {
			return err
		}
		_, err := tx.CreateListings(ctx, []domain.Listing{{ID: "a", Ticker: "FOO"}})
		return err
	}))
	require.NoError(t, prices.UpsertPriceData(ctx, []domain.PriceData{{Ticker: "FOO", MinPriceRate: 3}}))

	require.NoError(t, s.DeleteToken(ctx, "FOO"))
	_, err := s.GetListing(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = prices.GetPriceData(ctx, "FOO")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.DeleteToken(ctx, "FOO"), domain.ErrNotFound)

	n, err := s.CountTokens(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBalanceStoreUpsert(t *testing.T) {
	client := setupTestDB(t)
	ctx := context.Background()
	s := NewBalanceStore(client.Pool())

	require.NoError(t, s.UpsertBalances(ctx, []domain.Balance{{Address: "SP1", Ticker: "FOO", Amount: 1}}))
	require.NoError(t, s.UpsertBalances(ctx, []domain.Balance{{Address: "SP1", Ticker: "FOO", Amount: 9}, {Address: "SP1", Ticker: "BAR", Amount: 2}}))

	bs, err := s.ListBalances(ctx, "SP1")
	require.NoError(t, err)
	require.Len(t, bs, 2)
	assert.Equal(t, "BAR", bs[0].Ticker)
	assert.Equal(t, int64(9), bs[1].Amount)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: " postgres://x "}))
	assert.Equal(t,
		"postgres://sync:p%40ss%2Fword@db:5432/stx20?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "stx20", User: "sync", Password: "p@ss/word"}))
	assert.Equal(t,
		"postgres://u:p@[::1]:6432/d?sslmode=require",
		DSN(ClientConfig{Host: "::1", Port: 6432, Database: "d", User: "u", Password: "p", SSLMode: "require"}))
}

func TestMigrationFilesSorted(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.IsIncreasing(t, names)
}
