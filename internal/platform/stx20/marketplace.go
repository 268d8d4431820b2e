package stx20

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// DefaultSearchLimit is the listing search page size. Upstream caps a single
// search at this many listings.
const DefaultSearchLimit = 10_000

// MarketplaceClient is the REST client for the STX20 marketplace API.
type MarketplaceClient struct {
	rest
	searchLimit int
}

// NewMarketplaceClient creates a marketplace API client.
//
// baseURL is the API root, e.g. "https://api-marketplace.stx20.com/api/v1".
func NewMarketplaceClient(baseURL string, searchLimit int, opts ...Option) *MarketplaceClient {
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}
	return &MarketplaceClient{rest: newRest(baseURL, opts), searchLimit: searchLimit}
}

type searchRequest struct {
	PendingTx bool `json:"pendingTx"`
}

// SearchListings returns the current sell listings, oldest first. pendingTx
// selects listings with pending purchase transactions. Listings that fail
// validation are skipped and counted in rejected.
func (m *MarketplaceClient) SearchListings(ctx context.Context, pendingTx bool) (listings []domain.Listing, rejected int, err error) {
	params := url.Values{}
	params.Set("sort", "created_asc")
	params.Set("limit", strconv.Itoa(m.searchLimit))

	var out ListingSearchResponse
	if err := m.doPost(ctx, "sell-requests/search?"+params.Encode(), searchRequest{PendingTx: pendingTx}, &out); err != nil {
		return nil, 0, fmt.Errorf("stx20: search listings: %w", err)
	}

	listings = make([]domain.Listing, 0, len(out.Data))
	for _, raw := range out.Data {
		l, saturated, err := raw.ToDomain()
		if err != nil {
			rejected++
			m.logger.WarnContext(ctx, "stx20: rejected listing",
				slog.String("id", raw.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.noteSaturated(ctx, "listing", l.ID, saturated)
		listings = append(listings, l)
	}

	if out.Pagination.Count > len(out.Data) {
		m.logger.WarnContext(ctx, "stx20: listing search truncated",
			slog.Int("returned", len(out.Data)),
			slog.Int("count", out.Pagination.Count),
		)
	}
	return listings, rejected, nil
}

// GetFloorPrice returns the marketplace's aggregate price statistics for a
// ticker.
func (m *MarketplaceClient) GetFloorPrice(ctx context.Context, ticker string) (domain.PriceData, error) {
	var out FloorPriceResponse
	if err := m.doGet(ctx, "sell-requests/floor-price/"+url.PathEscape(ticker), &out); err != nil {
		return domain.PriceData{}, fmt.Errorf("stx20: get floor price %s: %w", ticker, err)
	}
	if !out.Success {
		return domain.PriceData{}, fmt.Errorf("stx20: get floor price %s: %w", ticker, domain.ErrNotFound)
	}
	return domain.PriceData{
		Ticker:             ticker,
		MinPriceRate:       out.Data.MinPriceRate,
		MaxPriceRate:       out.Data.MaxPriceRate,
		MedianPriceRate:    out.Data.MedianPriceRate,
		MeanPriceRate:      out.Data.MeanPriceRate,
		MedianMinPriceRate: out.Data.MedianMinPriceRate,
		MedianMaxPriceRate: out.Data.MedianMaxPriceRate,
		UpdatedAt:          time.Now().UTC(),
	}, nil
}
