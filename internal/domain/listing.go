package domain

import "time"

// ListingStatus is the marketplace request status of a sell listing.
// Values outside the known set are kept verbatim.
type ListingStatus string

const (
	ListingStatusPending   ListingStatus = "pending"
	ListingStatusSubmitted ListingStatus = "submitted"
	ListingStatusConfirmed ListingStatus = "confirmed"
	ListingStatusBuried    ListingStatus = "buried"
)

// Listing is an open sell request on the STX20 marketplace. Stx amounts are
// in micro-STX; PriceRate is micro-STX per token unit.
type Listing struct {
	ID                              string
	CreatorAddress                  string
	CreationDate                    time.Time
	Ticker                          string
	Value                           int64
	StxValue                        int64
	UsdValue                        float64
	BtcValue                        float64
	MarketFeeValue                  int64
	GasFeeValueBuyer                int64
	GasFeeValueSeller               int64
	TotalStxValue                   int64
	Beneficiary                     string
	Status                          ListingStatus
	TokenReceiverMarketplaceAddress string
	StxSentConfirmed                bool
	TokenSentConfirmed              bool
	PriceRate                       float64
	PriceRateUsd                    float64
	PriceRateSats                   float64
	Submitted                       bool
	PendingPurchaseTx               []string
	Revision                        int64
	CreationTxID                    string
	IsBuried                        bool
	LastReincarnate                 *time.Time
}
