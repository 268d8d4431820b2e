package handler

import (
	"time"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// The resource views keep the field names of the public STX20 API. Unset
// values are omitted rather than sent as null.

type tokenView struct {
	Ticker           string     `json:"ticker"`
	TotalSupply      int64      `json:"totalSupply"`
	MintLimit        int64      `json:"mintLimit"`
	SupplyLeftToMint int64      `json:"supplyLeftToMint"`
	PercentMinted    float64    `json:"percentMinted"`
	CreationDate     *time.Time `json:"creationDate,omitempty"`
	FloorPriceStx    *float64   `json:"floorPriceStx,omitempty"`
	FloorPriceUsd    *float64   `json:"floorPriceUsd,omitempty"`
	FloorPriceSats   *float64   `json:"floorPriceSats,omitempty"`
	MarketCapStx     *float64   `json:"marketCapStx,omitempty"`
	MarketCapUsd     *float64   `json:"marketCapUsd,omitempty"`
	ActiveListings   int        `json:"activeListings"`

	FloorPriceUsd1h        *float64   `json:"floorPriceUsd1h,omitempty"`
	FloorPriceUsd1hDate    *time.Time `json:"floorPriceUsd1hDate,omitempty"`
	FloorPriceUsd1hChange  *float64   `json:"floorPriceUsd1hChange,omitempty"`
	FloorPriceUsd6h        *float64   `json:"floorPriceUsd6h,omitempty"`
	FloorPriceUsd6hDate    *time.Time `json:"floorPriceUsd6hDate,omitempty"`
	FloorPriceUsd6hChange  *float64   `json:"floorPriceUsd6hChange,omitempty"`
	FloorPriceUsd24h       *float64   `json:"floorPriceUsd24h,omitempty"`
	FloorPriceUsd24hDate   *time.Time `json:"floorPriceUsd24hDate,omitempty"`
	FloorPriceUsd24hChange *float64   `json:"floorPriceUsd24hChange,omitempty"`
	FloorPriceUsd7d        *float64   `json:"floorPriceUsd7d,omitempty"`
	FloorPriceUsd7dDate    *time.Time `json:"floorPriceUsd7dDate,omitempty"`
	FloorPriceUsd7dChange  *float64   `json:"floorPriceUsd7dChange,omitempty"`
	FloorPriceUsd30d       *float64   `json:"floorPriceUsd30d,omitempty"`
	FloorPriceUsd30dDate   *time.Time `json:"floorPriceUsd30dDate,omitempty"`
	FloorPriceUsd30dChange *float64   `json:"floorPriceUsd30dChange,omitempty"`

	UpdateDate *time.Time `json:"updateDate,omitempty"`
}

func newTokenView(t domain.Token) tokenView {
	v := tokenView{
		Ticker:           t.Ticker,
		TotalSupply:      t.TotalSupply,
		MintLimit:        t.MintLimit,
		SupplyLeftToMint: t.SupplyLeftToMint,
		PercentMinted:    t.PercentMinted,
		CreationDate:     timePtr(t.CreationDate),
		ActiveListings:   t.ActiveListings,
		UpdateDate:       timePtr(t.UpdatedAt),
	}
	if f := t.Floor; f != nil {
		v.FloorPriceStx = &f.Stx
		v.FloorPriceUsd = &f.Usd
		v.FloorPriceSats = &f.Sats
		v.MarketCapStx = &f.MarketCapStx
		v.MarketCapUsd = &f.MarketCapUsd
	}

	slots := [domain.IntervalCount]struct {
		value  **float64
		date   **time.Time
		change **float64
	}{
		domain.Interval1h:  {&v.FloorPriceUsd1h, &v.FloorPriceUsd1hDate, &v.FloorPriceUsd1hChange},
		domain.Interval6h:  {&v.FloorPriceUsd6h, &v.FloorPriceUsd6hDate, &v.FloorPriceUsd6hChange},
		domain.Interval24h: {&v.FloorPriceUsd24h, &v.FloorPriceUsd24hDate, &v.FloorPriceUsd24hChange},
		domain.Interval7d:  {&v.FloorPriceUsd7d, &v.FloorPriceUsd7dDate, &v.FloorPriceUsd7dChange},
		domain.Interval30d: {&v.FloorPriceUsd30d, &v.FloorPriceUsd30dDate, &v.FloorPriceUsd30dChange},
	}
	for _, iv := range domain.Intervals {
		p := t.History[iv]
		if !p.Initialized() {
			continue
		}
		value, change, at := p.Value, p.Change, p.CapturedAt
		*slots[iv].value = &value
		*slots[iv].date = &at
		*slots[iv].change = &change
	}
	return v
}

type listingView struct {
	ID                              string     `json:"id"`
	CreatorAddress                  string     `json:"creatorAddress"`
	CreationDate                    *time.Time `json:"creationDate,omitempty"`
	Ticker                          string     `json:"ticker"`
	Value                           int64      `json:"value"`
	StxValue                        int64      `json:"stxValue"`
	UsdValue                        float64    `json:"usdValue"`
	BtcValue                        float64    `json:"btcValue"`
	MarketFeeValue                  int64      `json:"marketFeeValue"`
	GasFeeValueBuyer                int64      `json:"gasFeeValueBuyer"`
	GasFeeValueSeller               int64      `json:"gasFeeValueSeller"`
	TotalStxValue                   int64      `json:"totalStxValue"`
	Beneficiary                     string     `json:"beneficiary,omitempty"`
	Status                          string     `json:"status,omitempty"`
	TokenReceiverMarketplaceAddress string     `json:"tokenReceiverMarketplaceAddress,omitempty"`
	StxSentConfirmed                bool       `json:"stxSentConfirmed"`
	TokenSentConfirmed              bool       `json:"tokenSentConfirmed"`
	PriceRate                       float64    `json:"priceRate"`
	PriceRateUsd                    float64    `json:"priceRateUsd"`
	PriceRateSats                   float64    `json:"priceRateSats"`
	Submitted                       bool       `json:"submitted"`
	PendingPurchaseTx               []string   `json:"pendingPurchaseTx,omitempty"`
	Revision                        int64      `json:"revision"`
	CreationTxID                    string     `json:"creationTxId,omitempty"`
	IsBuried                        bool       `json:"isBuried"`
	LastReincarnate                 *time.Time `json:"lastReincarnate,omitempty"`
}

func newListingView(l domain.Listing) listingView {
	return listingView{
		ID:                              l.ID,
		CreatorAddress:                  l.CreatorAddress,
		CreationDate:                    timePtr(l.CreationDate),
		Ticker:                          l.Ticker,
		Value:                           l.Value,
		StxValue:                        l.StxValue,
		UsdValue:                        l.UsdValue,
		BtcValue:                        l.BtcValue,
		MarketFeeValue:                  l.MarketFeeValue,
		GasFeeValueBuyer:                l.GasFeeValueBuyer,
		GasFeeValueSeller:               l.GasFeeValueSeller,
		TotalStxValue:                   l.TotalStxValue,
		Beneficiary:                     l.Beneficiary,
		Status:                          string(l.Status),
		TokenReceiverMarketplaceAddress: l.TokenReceiverMarketplaceAddress,
		StxSentConfirmed:                l.StxSentConfirmed,
		TokenSentConfirmed:              l.TokenSentConfirmed,
		PriceRate:                       l.PriceRate,
		PriceRateUsd:                    l.PriceRateUsd,
		PriceRateSats:                   l.PriceRateSats,
		Submitted:                       l.Submitted,
		PendingPurchaseTx:               l.PendingPurchaseTx,
		Revision:                        l.Revision,
		CreationTxID:                    l.CreationTxID,
		IsBuried:                        l.IsBuried,
		LastReincarnate:                 l.LastReincarnate,
	}
}

type priceDataView struct {
	Ticker             string     `json:"ticker"`
	MinPriceRate       float64    `json:"minPriceRate"`
	MaxPriceRate       float64    `json:"maxPriceRate"`
	MedianPriceRate    float64    `json:"medianPriceRate"`
	MeanPriceRate      float64    `json:"meanPriceRate"`
	MedianMinPriceRate float64    `json:"medianMinPriceRate"`
	MedianMaxPriceRate float64    `json:"medianMaxPriceRate"`
	UpdateDate         *time.Time `json:"updateDate,omitempty"`
}

func newPriceDataView(p domain.PriceData) priceDataView {
	return priceDataView{
		Ticker:             p.Ticker,
		MinPriceRate:       p.MinPriceRate,
		MaxPriceRate:       p.MaxPriceRate,
		MedianPriceRate:    p.MedianPriceRate,
		MeanPriceRate:      p.MeanPriceRate,
		MedianMinPriceRate: p.MedianMinPriceRate,
		MedianMaxPriceRate: p.MedianMaxPriceRate,
		UpdateDate:         timePtr(p.UpdatedAt),
	}
}

type balanceView struct {
	Address    string     `json:"address"`
	Ticker     string     `json:"ticker"`
	Balance    int64      `json:"balance"`
	UpdateDate *time.Time `json:"updateDate,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
