// Package payment converts order amounts into gateway minor units and talks
// to the payment providers.
package payment

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
)

// ToMinorUnits converts amount into the minor unit of currency to. Amounts in
// another currency pivot through the table's base:
//
//	in_base = amount / R_from
//	target  = in_base * R_to
//	units   = round(target * 100)
//
// A missing rate is a *fx.MissingRateError and a negative amount or result
// is a *money.InvalidAmountError; neither is ever replaced by a default.
func ToMinorUnits(field string, amount money.Money, to money.Currency, rates *fx.Table) (int64, error) {
	if amount.IsNegative() {
		return 0, &money.InvalidAmountError{Field: field, Value: amount.Amount.String(), Reason: "negative"}
	}
	if amount.Currency == to {
		return money.MinorUnits(field, amount)
	}
	if rates == nil {
		return 0, &fx.MissingRateError{Currency: to}
	}
	fromRate, err := rates.Rate(amount.Currency)
	if err != nil {
		return 0, err
	}
	toRate, err := rates.Rate(to)
	if err != nil {
		return 0, err
	}
	inBase := amount.Amount.Div(fromRate)
	target := money.New(inBase.Mul(toRate), to)
	return money.MinorUnits(field, target)
}

// ToUSDCents converts amount into US cents for the USD-only card gateway.
func ToUSDCents(amount money.Money, rates *fx.Table) (int64, error) {
	return ToMinorUnits("amount", amount, money.USD, rates)
}

// Display is an amount converted for presentation only.
type Display struct {
	Amount money.Money
	// Fallback is set when conversion failed and Amount is a zero placeholder.
	Fallback bool
	Reason   string
}

// DisplayAmount converts amount for display, rounded to 2 decimal places.
// Unlike ToMinorUnits it tolerates failure by returning a flagged zero, so it
// must never feed a charge.
func DisplayAmount(amount money.Money, to money.Currency, rates *fx.Table) Display {
	fallback := func(err error) Display {
		return Display{Amount: money.New(decimal.Zero, to), Fallback: true, Reason: err.Error()}
	}
	if amount.IsNegative() {
		return fallback(&money.InvalidAmountError{Field: "display", Value: amount.Amount.String(), Reason: "negative"})
	}
	if amount.Currency == to {
		return Display{Amount: amount.Round(2)}
	}
	if rates == nil {
		return fallback(&fx.MissingRateError{Currency: to})
	}
	converted, err := rates.Convert(amount, to)
	if err != nil {
		return fallback(err)
	}
	return Display{Amount: converted.Round(2)}
}
