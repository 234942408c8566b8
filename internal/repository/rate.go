package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
)

const (
	activeRatesSQL = `SELECT currency_code, rate_from_base, is_active, updated_at
		FROM exchange_rates WHERE is_active ORDER BY currency_code`

	upsertRateSQL = `INSERT INTO exchange_rates (currency_code, rate_from_base, is_active, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (currency_code) DO UPDATE SET
			rate_from_base = EXCLUDED.rate_from_base,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`
)

var _ fx.Repository = (*RateRepository)(nil)

// RateRepository implements fx.Repository backed by PostgreSQL.
type RateRepository struct {
	pool *pgxpool.Pool
}

// NewRateRepository returns a RateRepository that uses the given pool.
func NewRateRepository(pool *pgxpool.Pool) *RateRepository {
	return &RateRepository{pool: pool}
}

// ActiveRates returns every active exchange rate.
func (r *RateRepository) ActiveRates(ctx context.Context) ([]fx.ExchangeRate, error) {
	rows, err := r.pool.Query(ctx, activeRatesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active rates: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (fx.ExchangeRate, error) {
		var (
			rate fx.ExchangeRate
			code string
		)
		err := row.Scan(&code, &rate.RateFromBase, &rate.IsActive, &rate.UpdatedAt)
		rate.CurrencyCode = money.Currency(code)
		return rate, err
	})
}

// UpsertRate stores the rate for its currency, replacing any previous row.
func (r *RateRepository) UpsertRate(ctx context.Context, rate fx.ExchangeRate) error {
	_, err := r.pool.Exec(ctx, upsertRateSQL,
		rate.CurrencyCode.String(), rate.RateFromBase, rate.IsActive, rate.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting rate %s: %w", rate.CurrencyCode, err)
	}
	return nil
}
