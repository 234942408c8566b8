package payment

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/order"
)

// LineItem is one gateway line, priced in minor units of Currency.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
	Currency   money.Currency
}

// BuildLineItems prices an order for a gateway that bills in currency. Without
// a discount every snapshot line is converted individually and shipping and
// tax become their own lines. Gateways reject negative lines, so a discounted
// order is sent as a single line for the order total. Every conversion is
// checked; the first failure aborts. Lines worth less than one minor unit are
// dropped, and an order that would charge nothing is an *money.InvalidAmountError.
func BuildLineItems(o *order.Order, currency money.Currency, rates *fx.Table) ([]LineItem, error) {
	if o.Totals.Discount.Amount.IsPositive() {
		total, err := ToMinorUnits("total", o.Totals.Total, currency, rates)
		if err != nil {
			return nil, err
		}
		if total <= 0 {
			return nil, zeroCharge(o.Totals.Total)
		}
		name := fmt.Sprintf("Order %s", o.ID)
		if o.Snapshot.Coupon != nil {
			name = fmt.Sprintf("Order %s (coupon %s)", o.ID, o.Snapshot.Coupon.Code)
		}
		return []LineItem{{Name: name, UnitAmount: total, Quantity: 1, Currency: currency}}, nil
	}

	items := make([]LineItem, 0, len(o.Snapshot.Lines)+2)
	for _, l := range o.Snapshot.Lines {
		unit, err := ToMinorUnits("unit_price", l.UnitPrice, currency, rates)
		if err != nil {
			return nil, errors.Wrapf(err, "line %s", l.ProductID)
		}
		if unit == 0 {
			continue
		}
		name := l.Name
		if l.SelectedLength != nil {
			name = fmt.Sprintf("%s (%d\")", l.Name, *l.SelectedLength)
		}
		items = append(items, LineItem{Name: name, UnitAmount: unit, Quantity: int64(l.Quantity), Currency: currency})
	}

	extras := []struct {
		field string
		name  string
		m     money.Money
	}{
		{"shipping", "Shipping", o.Totals.Shipping},
		{"tax", "Tax", o.Totals.Tax},
	}
	for _, e := range extras {
		if !e.m.Amount.IsPositive() {
			continue
		}
		amount, err := ToMinorUnits(e.field, e.m, currency, rates)
		if err != nil {
			return nil, err
		}
		if amount == 0 {
			continue
		}
		items = append(items, LineItem{Name: e.name, UnitAmount: amount, Quantity: 1, Currency: currency})
	}
	if Total(items) <= 0 {
		return nil, zeroCharge(o.Totals.Total)
	}
	return items, nil
}

func zeroCharge(total money.Money) error {
	return &money.InvalidAmountError{Field: "total", Value: total.Amount.String(), Reason: "zero charge"}
}

// BuildUSDLineItems prices an order in US cents.
func BuildUSDLineItems(o *order.Order, rates *fx.Table) ([]LineItem, error) {
	return BuildLineItems(o, money.USD, rates)
}
