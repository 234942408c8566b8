package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/money"
)

var hundred = decimal.NewFromInt(100)

// Apply calculates the discount rule grants on subtotal. Monetary thresholds
// in another currency are converted with conv, which may be nil when the rule
// and the subtotal share a currency. The discount never exceeds
// MaximumDiscount or the subtotal, and is rounded to 2 decimal places.
func Apply(rule *Rule, subtotal money.Money, conv Converter) (Discount, error) {
	inCart := func(v decimal.Decimal) (money.Money, error) {
		m := money.New(v, rule.Currency)
		if rule.Currency == subtotal.Currency {
			return m, nil
		}
		if conv == nil {
			return money.Money{}, &money.CurrencyMismatchError{Want: subtotal.Currency, Got: rule.Currency}
		}
		return conv.Convert(m, subtotal.Currency)
	}

	if rule.MinimumOrder.IsPositive() {
		minimum, err := inCart(rule.MinimumOrder)
		if err != nil {
			return Discount{}, errors.Wrap(err, "convert minimum order")
		}
		if subtotal.Amount.LessThan(minimum.Amount) {
			return Discount{}, &MinimumNotMetError{Minimum: minimum.Round(2), Subtotal: subtotal}
		}
	}

	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Amount.Mul(rule.Value).Div(hundred)
	case DiscountFixed:
		fixed, err := inCart(rule.Value)
		if err != nil {
			return Discount{}, errors.Wrap(err, "convert fixed discount")
		}
		amount = fixed.Amount
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	if rule.MaximumDiscount != nil {
		maximum, err := inCart(*rule.MaximumDiscount)
		if err != nil {
			return Discount{}, errors.Wrap(err, "convert maximum discount")
		}
		amount = decimal.Min(amount, maximum.Amount)
	}
	amount = decimal.Min(amount, subtotal.Amount)

	return Discount{
		Code:        rule.Code,
		Amount:      money.New(floorAtZero(amount).Round(2), subtotal.Currency),
		Description: rule.Description,
	}, nil
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
