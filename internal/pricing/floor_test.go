package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

func TestDeriveFloorPicksMinimum(t *testing.T) {
	conv := NewConverter(domain.ReferencePrices{BtcUsd: 50_000, StxUsd: 2})
	listings := []domain.Listing{
		{ID: "a", Ticker: "FOO", PriceRate: 100},
		{ID: "b", Ticker: "FOO", PriceRate: 80},
		{ID: "c", Ticker: "FOO", PriceRate: 120},
	}

	fp, ok := DeriveFloor(listings, 1_000_000, conv)
	require.True(t, ok)
	assert.Equal(t, 80.0, fp.Stx)
	assert.InDelta(t, 0.00016, fp.Usd, 1e-12)
	assert.InDelta(t, ToSats(fp.Usd, 50_000), fp.Sats, 1e-12)
	assert.Equal(t, 80_000_000.0, fp.MarketCapStx)
	assert.InDelta(t, 160.0, fp.MarketCapUsd, 1e-9)
}

func TestDeriveFloorIsOrderIndependent(t *testing.T) {
	conv := NewConverter(domain.ReferencePrices{BtcUsd: 1, StxUsd: 1})
	a := []domain.Listing{{PriceRate: 3}, {PriceRate: 1}, {PriceRate: 2}}
	b := []domain.Listing{{PriceRate: 2}, {PriceRate: 3}, {PriceRate: 1}}

	fa, _ := DeriveFloor(a, 10, conv)
	fb, _ := DeriveFloor(b, 10, conv)
	assert.Equal(t, fa, fb)
}

func TestDeriveFloorEmptyHasNoFloor(t *testing.T) {
	conv := NewConverter(domain.ReferencePrices{BtcUsd: 1, StxUsd: 1})

	_, ok := DeriveFloor(nil, 100, conv)
	assert.False(t, ok)

	_, ok = DeriveFloor([]domain.Listing{{PriceRate: 0}, {PriceRate: -5}}, 100, conv)
	assert.False(t, ok)
}

func TestGroupByTicker(t *testing.T) {
	groups := GroupByTicker([]domain.Listing{
		{ID: "1", Ticker: "FOO"},
		{ID: "2", Ticker: "BAR"},
		{ID: "3", Ticker: "FOO"},
	})
	assert.Len(t, groups, 2)
	assert.Len(t, groups["FOO"], 2)
	assert.Len(t, groups["BAR"], 1)
}

func TestDeriveFloorSkipsNonFiniteRates(t *testing.T) {
	conv := NewConverter(domain.ReferencePrices{BtcUsd: 1, StxUsd: 1})
	tests := []struct {
		name     string
		listings []domain.Listing
		want     float64
		ok       bool
	}{
		{"nan first", []domain.Listing{{PriceRate: math.NaN()}, {PriceRate: 80}}, 80, true},
		{"nan last", []domain.Listing{{PriceRate: 80}, {PriceRate: math.NaN()}}, 80, true},
		{"infinite", []domain.Listing{{PriceRate: math.Inf(1)}, {PriceRate: 90}, {PriceRate: math.Inf(-1)}}, 90, true},
		{"only non-finite", []domain.Listing{{PriceRate: math.NaN()}, {PriceRate: math.Inf(1)}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp, ok := DeriveFloor(tt.listings, 10, conv)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, fp.Stx)
		})
	}
}
