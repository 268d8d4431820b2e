package domain

import "time"

// BlockEvent announces a new Stacks block.
type BlockEvent struct {
	Height     int64
	Hash       string
	ReceivedAt time.Time
}

// Snapshot is the remote state read at the start of a sync cycle.
type Snapshot struct {
	Tokens   []Token
	Listings []Listing
	Prices   ReferencePrices
	// Remote records dropped because they failed validation.
	RejectedTokens   int
	RejectedListings int
}

// CycleReport summarises one committed sync cycle.
type CycleReport struct {
	CycleID         string          `json:"cycle_id"`
	StartedAt       time.Time       `json:"started_at"`
	Duration        time.Duration   `json:"duration"`
	TokensFetched   int             `json:"tokens_fetched"`
	TokensCreated   int             `json:"tokens_created"`
	TokensUpdated   int             `json:"tokens_updated"`
	ListingsFetched int             `json:"listings_fetched"`
	ListingsCreated int             `json:"listings_created"`
	ListingsUpdated int             `json:"listings_updated"`
	ListingsDeleted int             `json:"listings_deleted"`
	TokensPriced    int             `json:"tokens_priced"`
	Rejected        int             `json:"rejected"`
	Prices          ReferencePrices `json:"reference_prices"`
}
