package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// BalanceStore implements domain.BalanceStore using PostgreSQL.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a new BalanceStore backed by the given connection pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// UpsertBalances writes balances keyed by (address, ticker).
func (s *BalanceStore) UpsertBalances(ctx context.Context, balances []domain.Balance) error {
	if len(balances) == 0 {
		return nil
	}
	const query = `
		INSERT INTO balances (address, ticker, amount, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address, ticker) DO UPDATE SET
			amount     = EXCLUDED.amount,
			updated_at = EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for _, b := range balances {
		batch.Queue(query, b.Address, b.Ticker, b.Amount, b.UpdatedAt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range balances {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert balance %s/%s: %w", balances[i].Address, balances[i].Ticker, err)
		}
	}
	return nil
}

// ListBalances returns an address's balances ordered by ticker.
func (s *BalanceStore) ListBalances(ctx context.Context, address string) ([]domain.Balance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, ticker, amount, updated_at FROM balances WHERE address = $1 ORDER BY ticker`,
		address)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances %s: %w", address, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Balance, error) {
		var b domain.Balance
		err := row.Scan(&b.Address, &b.Ticker, &b.Amount, &b.UpdatedAt)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances %s: %w", address, err)
	}
	return out, nil
}
