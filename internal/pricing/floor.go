package pricing

import (
	"math"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// GroupByTicker buckets listings by their token ticker.
func GroupByTicker(listings []domain.Listing) map[string][]domain.Listing {
	out := make(map[string][]domain.Listing)
	for _, l := range listings {
		out[l.Ticker] = append(out[l.Ticker], l)
	}
	return out
}

// DeriveFloor returns the floor price and market cap of a token given its
// active listings. Listings without a positive finite price are not asks
// and are ignored. The second result is false when no floor exists; callers must
// then leave the token's pricing untouched rather than writing zeros.
func DeriveFloor(listings []domain.Listing, totalSupply int64, conv Converter) (domain.FloorPrice, bool) {
	floor := 0.0
	found := false
	for _, l := range listings {
		if !positiveFinite(l.PriceRate) {
			continue
		}
		if !found || l.PriceRate < floor {
			floor = l.PriceRate
			found = true
		}
	}
	if !found {
		return domain.FloorPrice{}, false
	}

	usd := conv.Usd(floor)
	marketCap := floor * float64(totalSupply)
	return domain.FloorPrice{
		Stx:          floor,
		Usd:          usd,
		Sats:         conv.Sats(usd),
		MarketCapStx: marketCap,
		MarketCapUsd: conv.Usd(marketCap),
	}, true
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
