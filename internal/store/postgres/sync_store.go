package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// SyncStore implements domain.SyncStore: the token and listing readers plus
// a transactional write surface for sync cycles.
type SyncStore struct {
	*TokenStore
	*ListingStore
	pool *pgxpool.Pool
}

// NewSyncStore creates a SyncStore backed by the given connection pool.
func NewSyncStore(pool *pgxpool.Pool) *SyncStore {
	return &SyncStore{
		TokenStore:   NewTokenStore(pool),
		ListingStore: NewListingStore(pool),
		pool:         pool,
	}
}

var _ domain.SyncStore = (*SyncStore)(nil)

// WithTx runs fn in a single transaction, committing only if fn succeeds.
func (s *SyncStore) WithTx(ctx context.Context, fn func(tx domain.SyncTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&syncTx{tx: tx})
	})
}

type syncTx struct {
	tx pgx.Tx
}

func (t *syncTx) CreateTokens(ctx context.Context, tokens []domain.Token) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	const query = `
		INSERT INTO tokens (
			ticker, total_supply, mint_limit, supply_left_to_mint, percent_minted, creation_date
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ticker) DO NOTHING`

	batch := &pgx.Batch{}
	for _, tok := range tokens {
		batch.Queue(query,
			tok.Ticker, tok.TotalSupply, tok.MintLimit, tok.SupplyLeftToMint,
			tok.PercentMinted, nullTime(tok.CreationDate),
		)
	}
	return execBatch(ctx, t.tx, batch, len(tokens), "create tokens")
}

func (t *syncTx) UpdateTokenSupply(ctx context.Context, tok domain.Token) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE tokens SET
			supply_left_to_mint = $2,
			percent_minted      = $3,
			updated_at          = NOW()
		WHERE ticker = $1`,
		tok.Ticker, tok.SupplyLeftToMint, tok.PercentMinted)
	if err != nil {
		return fmt.Errorf("postgres: update token supply %s: %w", tok.Ticker, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: token %s: %w", tok.Ticker, domain.ErrNotFound)
	}
	return nil
}

func (t *syncTx) DeleteListings(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM listings WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete %d listings: %w", len(ids), err)
	}
	return tag.RowsAffected(), nil
}

var insertListing = `INSERT INTO listings (` + listingCols + `) VALUES (` + placeholders(1, 26) + `)
	ON CONFLICT (id) DO NOTHING`

func (t *syncTx) CreateListings(ctx context.Context, listings []domain.Listing) (int64, error) {
	if len(listings) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, l := range listings {
		batch.Queue(insertListing, listingArgs(l)...)
	}
	return execBatch(ctx, t.tx, batch, len(listings), "create listings")
}

const updateListing = `
	UPDATE listings SET
		creator_address                    = $2,
		creation_date                      = $3,
		ticker                             = $4,
		value                              = $5,
		stx_value                          = $6,
		usd_value                          = $7,
		btc_value                          = $8,
		market_fee_value                   = $9,
		gas_fee_value_buyer                = $10,
		gas_fee_value_seller               = $11,
		total_stx_value                    = $12,
		beneficiary                        = $13,
		status                             = $14,
		token_receiver_marketplace_address = $15,
		stx_sent_confirmed                 = $16,
		token_sent_confirmed               = $17,
		price_rate                         = $18,
		price_rate_usd                     = $19,
		price_rate_sats                    = $20,
		submitted                          = $21,
		pending_purchase_tx                = $22,
		revision                           = GREATEST(revision, $23),
		creation_tx_id                     = $24,
		is_buried                          = $25,
		last_reincarnate                   = $26,
		updated_at                         = NOW()
	WHERE id = $1`

func (t *syncTx) UpdateListing(ctx context.Context, l domain.Listing) error {
	tag, err := t.tx.Exec(ctx, updateListing, listingArgs(l)...)
	if err != nil {
		return fmt.Errorf("postgres: update listing %s: %w", l.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: listing %s: %w", l.ID, domain.ErrNotFound)
	}
	return nil
}

var updatePricing = func() string {
	var b strings.Builder
	b.WriteString(`UPDATE tokens SET
		floor_price_stx  = $2,
		floor_price_usd  = $3,
		floor_price_sats = $4,
		market_cap_stx   = $5,
		market_cap_usd   = $6,
		active_listings  = $7`)
	n := 8
	for _, col := range historyCols {
		fmt.Fprintf(&b, ",\n\t\t%s = $%d", col, n)
		n++
	}
	b.WriteString(",\n\t\tupdated_at = NOW()\n\tWHERE ticker = $1")
	return b.String()
}()

func (t *syncTx) UpdateTokenPricing(ctx context.Context, ticker string, p domain.TokenPricing) error {
	args := []any{
		ticker, p.Floor.Stx, p.Floor.Usd, p.Floor.Sats,
		p.Floor.MarketCapStx, p.Floor.MarketCapUsd, p.ActiveListings,
	}
	for _, h := range p.History {
		args = append(args, h.Value, nullTime(h.CapturedAt), h.Change)
	}
	tag, err := t.tx.Exec(ctx, updatePricing, args...)
	if err != nil {
		return fmt.Errorf("postgres: update token pricing %s: %w", ticker, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: token %s: %w", ticker, domain.ErrNotFound)
	}
	return nil
}

// execBatch sends batch and sums the affected rows of its n statements.
func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, n int, op string) (int64, error) {
	br := tx.SendBatch(ctx, batch)
	var total int64
	for i := 0; i < n; i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("postgres: %s batch item %d: %w", op, i, err)
		}
		total += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return total, nil
}

// placeholders returns "$from, ..., $to".
func placeholders(from, to int) string {
	ps := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		ps = append(ps, "$"+strconv.Itoa(i))
	}
	return strings.Join(ps, ", ")
}
