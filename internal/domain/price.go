package domain

import "time"

// Reference asset identifiers on the price feed.
const (
	AssetBitcoin = "bitcoin"
	AssetStacks  = "stacks"
)

// ReferencePrices are the USD prices used as conversion multipliers for one
// sync cycle.
type ReferencePrices struct {
	BtcUsd    float64   `json:"btc_usd"`
	StxUsd    float64   `json:"stx_usd"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PriceData holds the marketplace's aggregate price statistics for a token.
type PriceData struct {
	Ticker             string
	MinPriceRate       float64
	MaxPriceRate       float64
	MedianPriceRate    float64
	MeanPriceRate      float64
	MedianMinPriceRate float64
	MedianMaxPriceRate float64
	UpdatedAt          time.Time
}

// Balance is the STX20 balance of one address for one ticker.
type Balance struct {
	Address   string
	Ticker    string
	Amount    int64
	UpdatedAt time.Time
}
