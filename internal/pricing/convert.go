// Package pricing derives display prices for STX20 tokens: unit conversion
// from micro-STX to USD and satoshis, floor price and market cap, and the
// lazily refreshed price-change windows.
package pricing

import "github.com/alanyoungcy/stx20sync/internal/domain"

const (
	microPerStx = 1e6
	satsPerBtc  = 1e8
)

// ToUsd converts a micro-STX amount to USD at the given STX/USD price.
func ToUsd(micro, stxUsd float64) float64 {
	if micro == 0 {
		return 0
	}
	return micro / microPerStx * stxUsd
}

// ToBtc converts a USD amount to BTC at the given BTC/USD price.
func ToBtc(usd, btcUsd float64) float64 {
	if usd == 0 || btcUsd == 0 {
		return 0
	}
	return usd / btcUsd
}

// ToSats converts a USD amount to satoshis at the given BTC/USD price.
func ToSats(usd, btcUsd float64) float64 {
	if usd == 0 || btcUsd == 0 {
		return 0
	}
	return usd / btcUsd * satsPerBtc
}

// Converter applies one cycle's reference prices.
type Converter struct {
	Ref domain.ReferencePrices
}

// NewConverter returns a Converter for the given reference prices.
func NewConverter(ref domain.ReferencePrices) Converter {
	return Converter{Ref: ref}
}

// Usd converts micro-STX to USD.
func (c Converter) Usd(micro float64) float64 { return ToUsd(micro, c.Ref.StxUsd) }

// Btc converts USD to BTC.
func (c Converter) Btc(usd float64) float64 { return ToBtc(usd, c.Ref.BtcUsd) }

// Sats converts USD to satoshis.
func (c Converter) Sats(usd float64) float64 { return ToSats(usd, c.Ref.BtcUsd) }

// PriceListing fills the cached USD, BTC and sats fields of l.
func (c Converter) PriceListing(l domain.Listing) domain.Listing {
	l.UsdValue = c.Usd(float64(l.StxValue))
	l.BtcValue = c.Btc(l.UsdValue)
	l.PriceRateUsd = c.Usd(l.PriceRate)
	l.PriceRateSats = c.Sats(l.PriceRateUsd)
	return l
}
