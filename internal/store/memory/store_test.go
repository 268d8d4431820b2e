package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx domain.SyncTx) error {
		if _, err := tx.CreateTokens(context.Background(), []domain.Token{{Ticker: "FOO", TotalSupply: 1000}, {Ticker: "BAR"}}); err != nil {
			return err
		}
		_, err := tx.CreateListings(context.Background(), []domain.Listing{
			{ID: "a", Ticker: "FOO", PriceRate: 100},
			{ID: "b", Ticker: "FOO", PriceRate: 80},
			{ID: "c", Ticker: "BAR", PriceRate: 5},
		})
		return err
	})
	require.NoError(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx domain.SyncTx) error {
		n, err := tx.DeleteListings(ctx, []string{"a", "b", "missing"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, err := s.ListListings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCreateSkipsDuplicatesAndEnforcesToken(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s)

	err := s.WithTx(ctx, func(tx domain.SyncTx) error {
		n, err := tx.CreateTokens(ctx, []domain.Token{{Ticker: "FOO"}, {Ticker: "BAZ"}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = tx.CreateListings(ctx, []domain.Listing{{ID: "a", Ticker: "FOO"}})
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		_, err = tx.CreateListings(ctx, []domain.Listing{{ID: "z", Ticker: "NOPE"}})
		return err
	})
	assert.Error(t, err)

	_, err = s.GetToken(ctx, "BAZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteTokenCascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s)

	require.NoError(t, s.DeleteToken(ctx, "FOO"))
	all, err := s.ListListings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "c", all[0].ID)

	assert.ErrorIs(t, s.DeleteToken(ctx, "FOO"), domain.ErrNotFound)
}

func TestListListingsByTickerCheapestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s)

	got, err := s.ListListingsByTicker(ctx, "FOO", domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	got, err = s.ListListingsByTicker(ctx, "FOO", domain.ListOpts{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdateTokenPricing(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s)

	require.NoError(t, s.WithTx(ctx, func(tx domain.SyncTx) error {
		return tx.UpdateTokenPricing(ctx, "FOO", domain.TokenPricing{Floor: domain.FloorPrice{Stx: 80}, ActiveListings: 2})
	}))
	tok, err := s.GetToken(ctx, "FOO")
	require.NoError(t, err)
	require.NotNil(t, tok.Floor)
	assert.Equal(t, 80.0, tok.Floor.Stx)
	assert.Equal(t, 2, tok.ActiveListings)
}

func TestBalancesAndPriceData(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.UpsertBalances(ctx, []domain.Balance{
		{Address: "SP1", Ticker: "FOO", Amount: 1},
		{Address: "SP1", Ticker: "BAR", Amount: 2},
		{Address: "SP1", Ticker: "FOO", Amount: 3},
	}))
	bs, err := s.ListBalances(ctx, "SP1")
	require.NoError(t, err)
	require.Len(t, bs, 2)
	assert.Equal(t, "BAR", bs[0].Ticker)
	assert.Equal(t, int64(3), bs[1].Amount)

	require.NoError(t, s.UpsertPriceData(ctx, []domain.PriceData{{Ticker: "FOO", MinPriceRate: 1}}))
	tickers, err := s.ListPriceDataTickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"FOO"}, tickers)
	_, err = s.GetPriceData(ctx, "BAR")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
