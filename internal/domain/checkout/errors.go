package checkout

import (
	"github.com/go-faster/errors"

	"github.com/xenking/tresses/internal/domain/cart"
	"github.com/xenking/tresses/internal/domain/coupon"
	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/payment"
)

// ErrInvalidRequest is returned for a checkout request missing required fields.
var ErrInvalidRequest = errors.New("invalid checkout request")

// failureReason classifies an aborted checkout for metrics.
func failureReason(err error) string {
	var (
		mre *fx.MissingRateError
		iqe *cart.InvalidQuantityError
		cme *money.CurrencyMismatchError
		pe  *payment.ProviderError
	)
	switch {
	case errors.As(err, &mre):
		return "missing_rate"
	case errors.Is(err, money.ErrInvalidAmount):
		return "invalid_amount"
	case errors.As(err, &cme):
		return "currency_mismatch"
	case errors.Is(err, cart.ErrEmpty), errors.Is(err, cart.ErrNotFound), errors.As(err, &iqe):
		return "cart"
	case errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrCouponUsageLimitReached),
		errors.Is(err, coupon.ErrMinimumNotMet):
		return "coupon"
	case errors.As(err, &pe):
		return "provider"
	case errors.Is(err, payment.ErrUnknownProvider), errors.Is(err, ErrInvalidRequest):
		return "request"
	default:
		return "internal"
	}
}
