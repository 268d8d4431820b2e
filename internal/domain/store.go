package domain

import "context"

// ListOpts is the paging window of a list query.
type ListOpts struct {
	Limit  int
	Offset int
}

// TokenStore reads tokens.
type TokenStore interface {
	ListTokens(ctx context.Context) ([]Token, error)
	ListTokensPage(ctx context.Context, opts ListOpts) ([]Token, error)
	GetToken(ctx context.Context, ticker string) (Token, error)
	DeleteToken(ctx context.Context, ticker string) error
	CountTokens(ctx context.Context) (int64, error)
}

// ListingStore reads listings.
type ListingStore interface {
	ListListings(ctx context.Context) ([]Listing, error)
	ListListingsByTicker(ctx context.Context, ticker string, opts ListOpts) ([]Listing, error)
	GetListing(ctx context.Context, id string) (Listing, error)
}

// SyncTx is the write surface of one sync cycle. Every call made through a
// SyncTx commits or rolls back together.
type SyncTx interface {
	// CreateTokens inserts tokens, skipping tickers that already exist, and
	// returns the number of rows inserted.
	CreateTokens(ctx context.Context, tokens []Token) (int64, error)
	UpdateTokenSupply(ctx context.Context, t Token) error
	// DeleteListings removes listings by id and returns how many rows were
	// actually deleted.
	DeleteListings(ctx context.Context, ids []string) (int64, error)
	CreateListings(ctx context.Context, listings []Listing) (int64, error)
	UpdateListing(ctx context.Context, l Listing) error
	UpdateTokenPricing(ctx context.Context, ticker string, p TokenPricing) error
}

// SyncStore is the store consumed by the sync orchestrator.
type SyncStore interface {
	TokenStore
	ListingStore
	// WithTx runs fn inside one transaction. A non-nil error from fn rolls
	// the transaction back and is returned unchanged.
	WithTx(ctx context.Context, fn func(tx SyncTx) error) error
}

// PriceDataStore persists marketplace aggregate price statistics.
type PriceDataStore interface {
	UpsertPriceData(ctx context.Context, data []PriceData) error
	GetPriceData(ctx context.Context, ticker string) (PriceData, error)
	ListPriceDataTickers(ctx context.Context) ([]string, error)
}

// BalanceStore persists per-address token balances.
type BalanceStore interface {
	UpsertBalances(ctx context.Context, balances []Balance) error
	ListBalances(ctx context.Context, address string) ([]Balance, error)
}
