package product

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/money"
)

// ResolveUnitPrice returns the effective unit price of p for an optional
// selected length. A length present in LengthPrices replaces the base price
// outright; an unknown or absent length falls back to BasePrice. The result is
// in the product's own currency.
func ResolveUnitPrice(p *Product, selectedLength *int) (money.Money, error) {
	price := p.BasePrice
	field := "base_price"
	if selectedLength != nil {
		if override, ok := p.LengthPrices[*selectedLength]; ok {
			price = override
			field = "length_price"
		}
	}
	if price.IsNegative() {
		return money.Money{}, &money.InvalidAmountError{Field: field, Value: price.String(), Reason: "negative"}
	}
	return money.New(price, p.Currency), nil
}

// Discounted reports whether the product shows a compare-at price above its
// base price.
func (p *Product) Discounted() bool {
	return p.CompareAtPrice != nil && p.CompareAtPrice.GreaterThan(p.BasePrice)
}

// Savings returns CompareAtPrice - BasePrice, or zero when not discounted.
func (p *Product) Savings() decimal.Decimal {
	if !p.Discounted() {
		return decimal.Zero
	}
	return p.CompareAtPrice.Sub(p.BasePrice)
}
