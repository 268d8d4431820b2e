package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

const listingCols = `id, creator_address, creation_date, ticker, value, stx_value,
	usd_value, btc_value, market_fee_value, gas_fee_value_buyer, gas_fee_value_seller,
	total_stx_value, beneficiary, status, token_receiver_marketplace_address,
	stx_sent_confirmed, token_sent_confirmed, price_rate, price_rate_usd, price_rate_sats,
	submitted, pending_purchase_tx, revision, creation_tx_id, is_buried, last_reincarnate`

// listingArgs returns l's column values in listingCols order.
func listingArgs(l domain.Listing) []any {
	pending := l.PendingPurchaseTx
	if pending == nil {
		pending = []string{}
	}
	return []any{
		l.ID, l.CreatorAddress, nullTime(l.CreationDate), l.Ticker, l.Value, l.StxValue,
		l.UsdValue, l.BtcValue, l.MarketFeeValue, l.GasFeeValueBuyer, l.GasFeeValueSeller,
		l.TotalStxValue, l.Beneficiary, string(l.Status), l.TokenReceiverMarketplaceAddress,
		l.StxSentConfirmed, l.TokenSentConfirmed, l.PriceRate, l.PriceRateUsd, l.PriceRateSats,
		l.Submitted, pending, l.Revision, l.CreationTxID, l.IsBuried, l.LastReincarnate,
	}
}

// scanListing scans a single listing row into a domain.Listing.
func scanListing(row pgx.Row) (domain.Listing, error) {
	var (
		l       domain.Listing
		created *time.Time
		status  string
	)
	err := row.Scan(
		&l.ID, &l.CreatorAddress, &created, &l.Ticker, &l.Value, &l.StxValue,
		&l.UsdValue, &l.BtcValue, &l.MarketFeeValue, &l.GasFeeValueBuyer, &l.GasFeeValueSeller,
		&l.TotalStxValue, &l.Beneficiary, &status, &l.TokenReceiverMarketplaceAddress,
		&l.StxSentConfirmed, &l.TokenSentConfirmed, &l.PriceRate, &l.PriceRateUsd, &l.PriceRateSats,
		&l.Submitted, &l.PendingPurchaseTx, &l.Revision, &l.CreationTxID, &l.IsBuried, &l.LastReincarnate,
	)
	if err != nil {
		return domain.Listing{}, err
	}
	if created != nil {
		l.CreationDate = *created
	}
	l.Status = domain.ListingStatus(status)
	return l, nil
}

func collectListings(rows pgx.Rows) ([]domain.Listing, error) {
	defer rows.Close()
	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a new ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// ListListings returns every stored listing ordered by id.
func (s *ListingStore) ListListings(ctx context.Context) ([]domain.Listing, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+listingCols+` FROM listings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	out, err := collectListings(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	return out, nil
}

// ListListingsByTicker returns a ticker's listings, cheapest first.
func (s *ListingStore) ListListingsByTicker(ctx context.Context, ticker string, opts domain.ListOpts) ([]domain.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingCols+` FROM listings WHERE ticker = $1
		 ORDER BY price_rate, id LIMIT $2 OFFSET $3`,
		ticker, limitArg(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings for %s: %w", ticker, err)
	}
	out, err := collectListings(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings for %s: %w", ticker, err)
	}
	return out, nil
}

// GetListing retrieves a listing by id.
func (s *ListingStore) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx, `SELECT `+listingCols+` FROM listings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Listing{}, fmt.Errorf("postgres: listing %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Listing{}, fmt.Errorf("postgres: get listing %s: %w", id, err)
	}
	return l, nil
}
