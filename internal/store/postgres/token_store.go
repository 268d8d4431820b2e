package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// historyCols lists the three columns of every tracked interval, in
// domain.Intervals order: value, capture time, percent change.
var historyCols = func() []string {
	cols := make([]string, 0, 3*domain.IntervalCount)
	for _, iv := range domain.Intervals {
		base := "floor_price_usd_" + iv.String()
		cols = append(cols, base, base+"_date", base+"_change")
	}
	return cols
}()

var tokenCols = `ticker, total_supply, mint_limit, supply_left_to_mint, percent_minted, creation_date,
	floor_price_stx, floor_price_usd, floor_price_sats, market_cap_stx, market_cap_usd, active_listings,
	` + strings.Join(historyCols, ", ") + `, updated_at`

// scanToken scans a single token row into a domain.Token.
func scanToken(row pgx.Row) (domain.Token, error) {
	var (
		t                              domain.Token
		created                        *time.Time
		stx, usd, sats, capStx, capUsd *float64
		dates                          [domain.IntervalCount]*time.Time
	)
	dest := []any{
		&t.Ticker, &t.TotalSupply, &t.MintLimit, &t.SupplyLeftToMint, &t.PercentMinted, &created,
		&stx, &usd, &sats, &capStx, &capUsd, &t.ActiveListings,
	}
	for i := range domain.Intervals {
		dest = append(dest, &t.History[i].Value, &dates[i], &t.History[i].Change)
	}
	dest = append(dest, &t.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		return domain.Token{}, err
	}
	if created != nil {
		t.CreationDate = *created
	}
	for i, d := range dates {
		if d != nil {
			t.History[i].CapturedAt = *d
		}
	}
	if stx != nil {
		t.Floor = &domain.FloorPrice{
			Stx:          *stx,
			Usd:          deref(usd),
			Sats:         deref(sats),
			MarketCapStx: deref(capStx),
			MarketCapUsd: deref(capUsd),
		}
	}
	return t, nil
}

func collectTokens(rows pgx.Rows) ([]domain.Token, error) {
	defer rows.Close()
	var out []domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TokenStore implements domain.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a new TokenStore backed by the given connection pool.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// ListTokens returns every token ordered by ticker.
func (s *TokenStore) ListTokens(ctx context.Context) ([]domain.Token, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tokenCols+` FROM tokens ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tokens: %w", err)
	}
	tokens, err := collectTokens(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tokens: %w", err)
	}
	return tokens, nil
}

// ListTokensPage returns one page of tokens ordered by ticker.
func (s *TokenStore) ListTokensPage(ctx context.Context, opts domain.ListOpts) ([]domain.Token, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tokenCols+` FROM tokens ORDER BY ticker LIMIT $1 OFFSET $2`,
		limitArg(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tokens page: %w", err)
	}
	tokens, err := collectTokens(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tokens page: %w", err)
	}
	return tokens, nil
}

// GetToken retrieves a token by ticker.
func (s *TokenStore) GetToken(ctx context.Context, ticker string) (domain.Token, error) {
	t, err := scanToken(s.pool.QueryRow(ctx, `SELECT `+tokenCols+` FROM tokens WHERE ticker = $1`, ticker))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Token{}, fmt.Errorf("postgres: token %s: %w", ticker, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Token{}, fmt.Errorf("postgres: get token %s: %w", ticker, err)
	}
	return t, nil
}

// DeleteToken removes a token; its listings and price data go with it.
func (s *TokenStore) DeleteToken(ctx context.Context, ticker string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tokens WHERE ticker = $1`, ticker)
	if err != nil {
		return fmt.Errorf("postgres: delete token %s: %w", ticker, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: token %s: %w", ticker, domain.ErrNotFound)
	}
	return nil
}

// CountTokens returns the number of stored tokens.
func (s *TokenStore) CountTokens(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tokens`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count tokens: %w", err)
	}
	return n, nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// limitArg maps a non-positive limit to NULL, which Postgres reads as
// LIMIT ALL.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
