package fx

import (
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/money"
)

// Table is an immutable snapshot of the active rates, keyed by currency.
type Table struct {
	base      money.Currency
	rates     map[money.Currency]ExchangeRate
	fetchedAt time.Time
}

// NewTable builds a Table from active rate rows. The base currency always has
// rate 1; a stored row for it must agree. Inactive rows are skipped, while two
// active rows for one code or a non-positive rate are rejected.
func NewTable(base money.Currency, rows []ExchangeRate, fetchedAt time.Time) (*Table, error) {
	t := &Table{
		base:      base,
		rates:     make(map[money.Currency]ExchangeRate, len(rows)+1),
		fetchedAt: fetchedAt,
	}
	for _, r := range rows {
		if !r.IsActive {
			continue
		}
		if _, dup := t.rates[r.CurrencyCode]; dup {
			return nil, errors.Errorf("duplicate active rate for %s", r.CurrencyCode)
		}
		if !r.RateFromBase.IsPositive() {
			return nil, errors.Errorf("rate for %s must be positive, got %s", r.CurrencyCode, r.RateFromBase)
		}
		if r.CurrencyCode == base && !r.RateFromBase.Equal(decimal.NewFromInt(1)) {
			return nil, errors.Errorf("base currency %s must have rate 1, got %s", base, r.RateFromBase)
		}
		t.rates[r.CurrencyCode] = r
	}
	if _, ok := t.rates[base]; !ok {
		t.rates[base] = ExchangeRate{
			CurrencyCode: base,
			RateFromBase: decimal.NewFromInt(1),
			IsActive:     true,
			UpdatedAt:    fetchedAt,
		}
	}
	return t, nil
}

// Base returns the pivot currency of the table.
func (t *Table) Base() money.Currency { return t.base }

// FetchedAt returns when the table was loaded.
func (t *Table) FetchedAt() time.Time { return t.fetchedAt }

// Rate returns the units of code per one base unit.
func (t *Table) Rate(code money.Currency) (decimal.Decimal, error) {
	r, ok := t.rates[code]
	if !ok {
		return decimal.Zero, &MissingRateError{Currency: code}
	}
	return r.RateFromBase, nil
}

// Convert converts m into the target currency by pivoting through the base:
// amount / R_from * R_to. No rounding is applied; callers round at the edge
// where the amount is displayed or charged.
func (t *Table) Convert(m money.Money, to money.Currency) (money.Money, error) {
	if m.Currency == to {
		return m, nil
	}
	from, err := t.Rate(m.Currency)
	if err != nil {
		return money.Money{}, err
	}
	target, err := t.Rate(to)
	if err != nil {
		return money.Money{}, err
	}
	inBase := m.Amount.Div(from)
	return money.New(inBase.Mul(target), to), nil
}

// CrossRate returns units of `to` per one unit of `from`.
func (t *Table) CrossRate(from, to money.Currency) (decimal.Decimal, error) {
	one, err := t.Convert(money.New(decimal.NewFromInt(1), from), to)
	if err != nil {
		return decimal.Zero, err
	}
	return one.Amount, nil
}

// Rates returns the table's rows sorted by currency code.
func (t *Table) Rates() []ExchangeRate {
	out := make([]ExchangeRate, 0, len(t.rates))
	for _, r := range t.rates {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrencyCode < out[j].CurrencyCode })
	return out
}

// Stale returns a warning for every non-base rate last updated more than
// window before now. A zero window disables the check.
func (t *Table) Stale(now time.Time, window time.Duration) []StaleRateWarning {
	if window <= 0 {
		return nil
	}
	var out []StaleRateWarning
	for _, r := range t.Rates() {
		if r.CurrencyCode == t.base {
			continue
		}
		if age := now.Sub(r.UpdatedAt); age > window {
			out = append(out, StaleRateWarning{Currency: r.CurrencyCode, UpdatedAt: r.UpdatedAt, Age: age})
		}
	}
	return out
}
