package stx20

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/stx20sync/internal/domain"
	"github.com/alanyoungcy/stx20sync/internal/reconcile"
)

// Numeric is a JSON number that upstream sometimes encodes as a string. It
// keeps the literal text so large integers survive decoding untouched.
type Numeric string

// UnmarshalJSON accepts a JSON string, number or null.
func (n *Numeric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*n = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Numeric(strings.TrimSpace(s))
	default:
		*n = Numeric(data)
	}
	return nil
}

// APIToken is a token as returned by the STX20 token API.
type APIToken struct {
	Ticker           string  `json:"ticker"`
	TotalSupply      Numeric `json:"totalSupply"`
	MintLimit        Numeric `json:"mintLimit"`
	SupplyLeftToMint Numeric `json:"supplyLeftToMint"`
	CreationDate     string  `json:"creationDate"`
}

// TokenPage is one page of the token listing endpoint.
type TokenPage struct {
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
	Total int        `json:"total"`
	Data  []APIToken `json:"data"`
}

// TokenDetail is the response of the single-token endpoint.
type TokenDetail struct {
	Data    []APIToken `json:"data"`
	Success *bool      `json:"success,omitempty"`
	Message string     `json:"message,omitempty"`
}

// APIBalance is one ticker balance of an address.
type APIBalance struct {
	Ticker     string  `json:"ticker"`
	Balance    Numeric `json:"balance"`
	UpdateDate string  `json:"updateDate"`
}

// BalanceResponse is the response of the balance endpoint.
type BalanceResponse struct {
	Address  string       `json:"address"`
	Balances []APIBalance `json:"balances"`
}

// APIListing is a sell request as returned by the marketplace search.
type APIListing struct {
	ID                              string   `json:"_id"`
	CreatorAddress                  string   `json:"creatorAddress"`
	CreationDate                    string   `json:"creationDate"`
	Ticker                          string   `json:"ticker"`
	Value                           Numeric  `json:"value"`
	StxValue                        Numeric  `json:"stxValue"`
	MarketFeeValue                  Numeric  `json:"marketFeeValue"`
	GasFeeValueBuyer                Numeric  `json:"gasFeeValueBuyer"`
	GasFeeValueSeller               Numeric  `json:"gasFeeValueSeller"`
	TotalStxValue                   Numeric  `json:"totalStxValue"`
	Beneficiary                     string   `json:"beneficiary"`
	RequestStatus                   string   `json:"requestStatus"`
	TokenReceiverMarketplaceAddress string   `json:"tokenReceiverMarketplaceAddress"`
	StxSentConfirmed                bool     `json:"stxSentConfirmed"`
	TokenSentConfirmed              bool     `json:"tokenSentConfirmed"`
	PriceRate                       Numeric  `json:"priceRate"`
	Submitted                       bool     `json:"submitted"`
	PendingPurchaseTx               []string `json:"pendingPurchaseTx"`
	Version                         int64    `json:"__v"`
	CreationTxID                    string   `json:"creationTxId"`
	IsBuried                        bool     `json:"isBuried"`
	LastReincarnate                 string   `json:"lastReincarnate"`
}

// ListingSearchResponse is the response of the marketplace search.
type ListingSearchResponse struct {
	Success    bool         `json:"success"`
	Data       []APIListing `json:"data"`
	Pagination struct {
		Page  int `json:"page"`
		Limit int `json:"limit"`
		Count int `json:"count"`
	} `json:"pagination"`
}

// FloorPriceResponse is the response of the per-ticker floor price stats.
type FloorPriceResponse struct {
	Success bool `json:"success"`
	Data    struct {
		MinPriceRate       float64 `json:"minPriceRate"`
		MaxPriceRate       float64 `json:"maxPriceRate"`
		MedianPriceRate    float64 `json:"medianPriceRate"`
		MeanPriceRate      float64 `json:"meanPriceRate"`
		MedianMinPriceRate float64 `json:"medianMinPriceRate"`
		MedianMaxPriceRate float64 `json:"medianMaxPriceRate"`
	} `json:"data"`
}

// ToDomain validates the token and converts it to a domain.Token. saturated
// names the supply fields that were clamped to the int64 range.
func (t APIToken) ToDomain() (tok domain.Token, saturated []string, err error) {
	if strings.TrimSpace(t.Ticker) == "" {
		return domain.Token{}, nil, fmt.Errorf("%w: token without ticker", domain.ErrInvalidRecord)
	}
	supply, err := reconcile.ParseSupply(string(t.TotalSupply), string(t.MintLimit), string(t.SupplyLeftToMint))
	if err != nil {
		return domain.Token{}, nil, fmt.Errorf("token %s: %w", t.Ticker, err)
	}
	created, err := parseTime(t.CreationDate)
	if err != nil {
		return domain.Token{}, nil, fmt.Errorf("token %s: creation date: %w", t.Ticker, err)
	}
	if supply.Saturated {
		saturated = []string{"supply"}
	}
	return domain.Token{
		Ticker:           t.Ticker,
		TotalSupply:      supply.Total,
		MintLimit:        supply.MintLimit,
		SupplyLeftToMint: supply.Left,
		PercentMinted:    supply.PercentMinted,
		CreationDate:     created,
	}, saturated, nil
}

// ToDomain validates the listing and converts it to a domain.Listing. The
// cached USD and BTC prices are left for the caller to fill. saturated
// names the integer fields that were clamped to the int64 range.
func (l APIListing) ToDomain() (out domain.Listing, saturated []string, err error) {
	if strings.TrimSpace(l.ID) == "" {
		return domain.Listing{}, nil, fmt.Errorf("%w: listing without id", domain.ErrInvalidRecord)
	}
	if strings.TrimSpace(l.Ticker) == "" {
		return domain.Listing{}, nil, fmt.Errorf("%w: listing %s without ticker", domain.ErrInvalidRecord, l.ID)
	}

	out = domain.Listing{
		ID:                              l.ID,
		CreatorAddress:                  l.CreatorAddress,
		Ticker:                          l.Ticker,
		Beneficiary:                     l.Beneficiary,
		Status:                          domain.ListingStatus(l.RequestStatus),
		TokenReceiverMarketplaceAddress: l.TokenReceiverMarketplaceAddress,
		StxSentConfirmed:                l.StxSentConfirmed,
		TokenSentConfirmed:              l.TokenSentConfirmed,
		Submitted:                       l.Submitted,
		PendingPurchaseTx:               l.PendingPurchaseTx,
		Revision:                        l.Version,
		CreationTxID:                    l.CreationTxID,
		IsBuried:                        l.IsBuried,
	}
	if out.PendingPurchaseTx == nil {
		out.PendingPurchaseTx = []string{}
	}

	ints := []struct {
		name string
		raw  Numeric
		dst  *int64
	}{
		{"value", l.Value, &out.Value},
		{"stxValue", l.StxValue, &out.StxValue},
		{"marketFeeValue", l.MarketFeeValue, &out.MarketFeeValue},
		{"gasFeeValueBuyer", l.GasFeeValueBuyer, &out.GasFeeValueBuyer},
		{"gasFeeValueSeller", l.GasFeeValueSeller, &out.GasFeeValueSeller},
		{"totalStxValue", l.TotalStxValue, &out.TotalStxValue},
	}
	for _, f := range ints {
		if f.raw == "" {
			continue
		}
		v, sat, err := reconcile.ParseSaturated(string(f.raw))
		if err != nil {
			return domain.Listing{}, nil, fmt.Errorf("listing %s: %s: %w", l.ID, f.name, err)
		}
		if sat {
			saturated = append(saturated, f.name)
		}
		*f.dst = v
	}

	if l.PriceRate != "" {
		rate, err := strconv.ParseFloat(string(l.PriceRate), 64)
		if err != nil || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return domain.Listing{}, nil, fmt.Errorf("listing %s: %w: priceRate %q", l.ID, domain.ErrInvalidRecord, l.PriceRate)
		}
		out.PriceRate = rate
	}

	created, err := parseTime(l.CreationDate)
	if err != nil {
		return domain.Listing{}, nil, fmt.Errorf("listing %s: creation date: %w", l.ID, err)
	}
	out.CreationDate = created

	if l.LastReincarnate != "" {
		ts, err := parseTime(l.LastReincarnate)
		if err != nil {
			return domain.Listing{}, nil, fmt.Errorf("listing %s: last reincarnate: %w", l.ID, err)
		}
		out.LastReincarnate = &ts
	}
	return out, saturated, nil
}

// ToDomain converts a balance entry for the given address. saturated
// reports an amount clamped to the int64 range.
func (b APIBalance) ToDomain(address string) (bal domain.Balance, saturated bool, err error) {
	amount, saturated, err := reconcile.ParseSaturated(string(b.Balance))
	if err != nil {
		return domain.Balance{}, false, fmt.Errorf("balance %s/%s: %w", address, b.Ticker, err)
	}
	updated, err := parseTime(b.UpdateDate)
	if err != nil {
		return domain.Balance{}, false, fmt.Errorf("balance %s/%s: update date: %w", address, b.Ticker, err)
	}
	return domain.Balance{
		Address:   address,
		Ticker:    b.Ticker,
		Amount:    amount,
		UpdatedAt: updated,
	}, saturated, nil
}

// parseTime parses an RFC 3339 timestamp; the empty string is the zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", domain.ErrInvalidRecord, err)
	}
	return ts.UTC(), nil
}
