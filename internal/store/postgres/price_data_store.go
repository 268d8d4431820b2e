package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// PriceDataStore implements domain.PriceDataStore using PostgreSQL.
type PriceDataStore struct {
	pool *pgxpool.Pool
}

// NewPriceDataStore creates a new PriceDataStore backed by the given connection pool.
func NewPriceDataStore(pool *pgxpool.Pool) *PriceDataStore {
	return &PriceDataStore{pool: pool}
}

// UpsertPriceData writes all rows in one batch.
func (s *PriceDataStore) UpsertPriceData(ctx context.Context, data []domain.PriceData) error {
	if len(data) == 0 {
		return nil
	}
	const query = `
		INSERT INTO price_data (
			ticker, min_price_rate, max_price_rate, median_price_rate,
			mean_price_rate, median_min_price_rate, median_max_price_rate, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ticker) DO UPDATE SET
			min_price_rate        = EXCLUDED.min_price_rate,
			max_price_rate        = EXCLUDED.max_price_rate,
			median_price_rate     = EXCLUDED.median_price_rate,
			mean_price_rate       = EXCLUDED.mean_price_rate,
			median_min_price_rate = EXCLUDED.median_min_price_rate,
			median_max_price_rate = EXCLUDED.median_max_price_rate,
			updated_at            = EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for _, d := range data {
		batch.Queue(query,
			d.Ticker, d.MinPriceRate, d.MaxPriceRate, d.MedianPriceRate,
			d.MeanPriceRate, d.MedianMinPriceRate, d.MedianMaxPriceRate, d.UpdatedAt,
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range data {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert price data %s: %w", data[i].Ticker, err)
		}
	}
	return nil
}

func (s *PriceDataStore) GetPriceData(ctx context.Context, ticker string) (domain.PriceData, error) {
	var d domain.PriceData
	err := s.pool.QueryRow(ctx, `
		SELECT ticker, min_price_rate, max_price_rate, median_price_rate,
		       mean_price_rate, median_min_price_rate, median_max_price_rate, updated_at
		FROM price_data WHERE ticker = $1`, ticker).Scan(
		&d.Ticker, &d.MinPriceRate, &d.MaxPriceRate, &d.MedianPriceRate,
		&d.MeanPriceRate, &d.MedianMinPriceRate, &d.MedianMaxPriceRate, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PriceData{}, fmt.Errorf("postgres: price data %s: %w", ticker, domain.ErrNotFound)
	}
	if err != nil {
		return domain.PriceData{}, fmt.Errorf("postgres: get price data %s: %w", ticker, err)
	}
	return d, nil
}

func (s *PriceDataStore) ListPriceDataTickers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT ticker FROM price_data ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list price data tickers: %w", err)
	}
	tickers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: list price data tickers: %w", err)
	}
	return tickers, nil
}
