package cart

import (
	"github.com/xenking/tresses/internal/domain/money"
)

// Subtotal returns the sum of unit price x quantity over items, in currency.
// The first invalid line aborts the computation: a quantity below one, a
// negative unit price, or a unit price in another currency.
func Subtotal(items []Item, currency money.Currency) (money.Money, error) {
	sum := money.Zero(currency)
	for _, item := range items {
		if item.Quantity < 1 {
			return money.Money{}, &InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
		if item.UnitPrice.IsNegative() {
			return money.Money{}, &money.InvalidAmountError{
				Field:  "unit_price",
				Value:  item.UnitPrice.Amount.String(),
				Reason: "negative",
			}
		}
		var err error
		if sum, err = sum.Add(item.LineTotal()); err != nil {
			return money.Money{}, err
		}
	}
	return sum, nil
}
