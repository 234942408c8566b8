// Package money holds the currency-aware amount type shared by every pricing
// stage. Amounts are decimals; rounding happens only where a stage says so.
package money

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Currency is an upper-case ISO 4217 code.
type Currency string

const (
	GBP Currency = "GBP"
	NGN Currency = "NGN"
	USD Currency = "USD"
)

var hundred = decimal.NewFromInt(100)

// ParseCurrency normalises and validates a currency code.
func ParseCurrency(s string) (Currency, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) != 3 {
		return "", errors.Errorf("invalid currency code %q", s)
	}
	for i := range len(code) {
		if code[i] < 'A' || code[i] > 'Z' {
			return "", errors.Errorf("invalid currency code %q", s)
		}
	}
	return Currency(code), nil
}

func (c Currency) String() string { return string(c) }

// Money is an amount in a specific currency.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// New returns a Money value.
func New(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns a zero amount in the given currency.
func Zero(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// Add sums two amounts of the same currency.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, &CurrencyMismatchError{Want: m.Currency, Got: o.Currency}
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

// Sub subtracts o from m. Both must share a currency.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, &CurrencyMismatchError{Want: m.Currency, Got: o.Currency}
	}
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}, nil
}

// Mul multiplies the amount by an integer quantity.
func (m Money) Mul(qty int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(qty))), Currency: m.Currency}
}

// Round rounds the amount to the given number of decimal places.
func (m Money) Round(places int32) Money {
	return Money{Amount: m.Amount.Round(places), Currency: m.Currency}
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}

// ParseAmount parses a decimal amount from its string form. Empty input, NaN,
// infinities and anything else decimal cannot represent are rejected.
func ParseAmount(field, s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Zero, &InvalidAmountError{Field: field, Value: s, Reason: "empty"}
	}
	switch strings.ToLower(strings.TrimLeft(trimmed, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Zero, &InvalidAmountError{Field: field, Value: s, Reason: "not a number"}
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, &InvalidAmountError{Field: field, Value: s, Reason: "unparseable"}
	}
	return d, nil
}

// maxMinorUnits keeps charged amounts exactly representable as a float64 on
// the provider side.
var maxMinorUnits = decimal.NewFromInt(1 << 53)

// MinorUnits converts an amount to the currency's minor unit (two decimal
// places for every currency the store sells in). Negative amounts are
// rejected rather than clamped; callers charging a gateway must never send a
// silently adjusted amount.
func MinorUnits(field string, m Money) (int64, error) {
	if m.IsNegative() {
		return 0, &InvalidAmountError{Field: field, Value: m.Amount.String(), Reason: "negative"}
	}
	units := m.Amount.Mul(hundred).Round(0)
	if units.GreaterThan(maxMinorUnits) {
		return 0, &InvalidAmountError{Field: field, Value: m.Amount.String(), Reason: "out of range"}
	}
	return units.IntPart(), nil
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(units int64, currency Currency) Money {
	return Money{Amount: decimal.NewFromInt(units).Div(hundred), Currency: currency}
}
