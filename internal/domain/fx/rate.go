// Package fx loads exchange rates and converts amounts between currencies.
//
// Rates are stored relative to a single base currency (GBP unless configured
// otherwise): rate_from_base is the number of units of a currency equal to one
// base unit. Any conversion between two non-base currencies pivots through the
// base.
package fx

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/money"
)

// ExchangeRate is one row of the rate table.
type ExchangeRate struct {
	CurrencyCode money.Currency
	RateFromBase decimal.Decimal
	IsActive     bool
	UpdatedAt    time.Time
}

// Repository provides access to stored exchange rates.
type Repository interface {
	ActiveRates(ctx context.Context) ([]ExchangeRate, error)
	UpsertRate(ctx context.Context, rate ExchangeRate) error
}

// MissingRateError is returned when a rate required for conversion is absent
// or inactive. Checkout must abort on it; no fallback rate is ever guessed.
type MissingRateError struct {
	Currency money.Currency
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("exchange rate for %s is missing or inactive", e.Currency)
}

// StaleRateWarning flags a rate older than the configured freshness window.
// It never blocks checkout.
type StaleRateWarning struct {
	Currency  money.Currency
	UpdatedAt time.Time
	Age       time.Duration
}

func (w StaleRateWarning) String() string {
	return fmt.Sprintf("rate for %s is %s old", w.Currency, w.Age.Truncate(time.Second))
}
