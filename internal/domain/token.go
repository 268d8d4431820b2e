package domain

import "time"

// Token is an STX20 token as tracked by the sync service.
type Token struct {
	Ticker           string
	TotalSupply      int64
	MintLimit        int64
	SupplyLeftToMint int64
	PercentMinted    float64
	CreationDate     time.Time

	// Floor is nil while the token has no priced listing.
	Floor          *FloorPrice
	ActiveListings int
	History        [IntervalCount]PricePoint

	UpdatedAt time.Time
}

// FloorPrice holds the derived floor and market cap of a token. Stx values
// are in micro-STX.
type FloorPrice struct {
	Stx          float64
	Usd          float64
	Sats         float64
	MarketCapStx float64
	MarketCapUsd float64
}

// TokenPricing is the set of derived fields written for a token at the end
// of a sync cycle.
type TokenPricing struct {
	Floor          FloorPrice
	ActiveListings int
	History        [IntervalCount]PricePoint
}
