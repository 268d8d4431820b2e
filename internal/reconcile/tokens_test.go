package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

func TestTokensDiff(t *testing.T) {
	remote := []domain.Token{
		{Ticker: "NEW", TotalSupply: 10, SupplyLeftToMint: 10},
		{Ticker: "SAME", TotalSupply: 10, SupplyLeftToMint: 5},
		{Ticker: "MINTED", TotalSupply: 10, SupplyLeftToMint: 2},
	}
	local := []domain.Token{
		{Ticker: "SAME", TotalSupply: 10, SupplyLeftToMint: 5, PercentMinted: 50},
		{Ticker: "MINTED", TotalSupply: 10, SupplyLeftToMint: 4},
		{Ticker: "LOCALONLY", TotalSupply: 1},
	}

	plan := Tokens(remote, local)
	require.Len(t, plan.Create, 1)
	assert.Equal(t, "NEW", plan.Create[0].Ticker)
	require.Len(t, plan.Update, 1)
	assert.Equal(t, "MINTED", plan.Update[0].Ticker)
	assert.Equal(t, int64(2), plan.Update[0].SupplyLeftToMint)
}

func TestTokensDuplicateTickersLastWins(t *testing.T) {
	remote := []domain.Token{
		{Ticker: "FOO", SupplyLeftToMint: 9},
		{Ticker: "FOO", SupplyLeftToMint: 8},
	}
	plan := Tokens(remote, nil)
	require.Len(t, plan.Create, 1)
	assert.Equal(t, int64(8), plan.Create[0].SupplyLeftToMint)
}
