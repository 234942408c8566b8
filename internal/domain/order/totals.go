package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
)

// TotalsInput holds the amounts that make up an order. All amounts are in the
// settlement currency of Subtotal.
type TotalsInput struct {
	Subtotal        money.Money
	Shipping        money.Money
	Tax             money.Money
	Discount        money.Money
	DisplayCurrency money.Currency
	Rates           *fx.Table
}

// Totals is the priced result stored on the order.
type Totals struct {
	Subtotal money.Money
	Shipping money.Money
	Tax      money.Money
	Discount money.Money
	Total    money.Money
	// ExchangeRate is display units per one settlement unit.
	ExchangeRate decimal.Decimal
	TotalDisplay money.Money
}

// CalculateTotals returns total = subtotal + shipping + tax - discount and
// its display-currency equivalent rounded to 2 decimal places. It performs no
// capping: a negative component or a negative total is rejected.
func CalculateTotals(in TotalsInput) (Totals, error) {
	settlement := in.Subtotal.Currency
	parts := []struct {
		field string
		m     money.Money
	}{
		{"subtotal", in.Subtotal},
		{"shipping", in.Shipping},
		{"tax", in.Tax},
		{"discount", in.Discount},
	}
	for _, p := range parts {
		if p.m.Currency != settlement {
			return Totals{}, &money.CurrencyMismatchError{Want: settlement, Got: p.m.Currency}
		}
		if p.m.IsNegative() {
			return Totals{}, &money.InvalidAmountError{Field: p.field, Value: p.m.Amount.String(), Reason: "negative"}
		}
	}

	total := money.New(
		in.Subtotal.Amount.Add(in.Shipping.Amount).Add(in.Tax.Amount).Sub(in.Discount.Amount),
		settlement,
	)
	if total.IsNegative() {
		return Totals{}, &money.InvalidAmountError{Field: "total", Value: total.Amount.String(), Reason: "negative"}
	}

	out := Totals{
		Subtotal:     in.Subtotal,
		Shipping:     in.Shipping,
		Tax:          in.Tax,
		Discount:     in.Discount,
		Total:        total,
		ExchangeRate: decimal.NewFromInt(1),
		TotalDisplay: total.Round(2),
	}

	display := in.DisplayCurrency
	if display == "" || display == settlement {
		return out, nil
	}
	if in.Rates == nil {
		return Totals{}, &fx.MissingRateError{Currency: display}
	}
	rate, err := in.Rates.CrossRate(settlement, display)
	if err != nil {
		return Totals{}, err
	}
	converted, err := in.Rates.Convert(total, display)
	if err != nil {
		return Totals{}, err
	}
	out.ExchangeRate = rate
	out.TotalDisplay = converted.Round(2)
	return out, nil
}
