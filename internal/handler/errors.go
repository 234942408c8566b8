package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/tresses/internal/domain/auth"
	"github.com/xenking/tresses/internal/domain/cart"
	"github.com/xenking/tresses/internal/domain/checkout"
	"github.com/xenking/tresses/internal/domain/coupon"
	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/order"
	"github.com/xenking/tresses/internal/domain/payment"
	"github.com/xenking/tresses/internal/domain/product"
)

// Messages for failures whose details must not reach customers.
const (
	msgPaymentConfig = "payment configuration error"
	msgInvalidAmount = "invalid order amount"
	msgInternal      = "internal server error"
)

// errorResponse maps a domain error to a status code and public message.
func errorResponse(err error) (int, string) {
	var (
		mre *fx.MissingRateError
		iqe *cart.InvalidQuantityError
		cme *money.CurrencyMismatchError
		mne *coupon.MinimumNotMetError
		ite *order.InvalidTransitionError
		pe  *payment.ProviderError
	)
	switch {
	case errors.As(err, &mre):
		return http.StatusServiceUnavailable, msgPaymentConfig
	case errors.Is(err, money.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, msgInvalidAmount
	case errors.As(err, &cme):
		return http.StatusUnprocessableEntity, "currency mismatch"
	case errors.As(err, &iqe):
		return http.StatusUnprocessableEntity, iqe.Error()
	case errors.Is(err, cart.ErrEmpty):
		return http.StatusUnprocessableEntity, "cart is empty"
	case errors.Is(err, cart.ErrProductUnavailable):
		return http.StatusUnprocessableEntity, "product unavailable"
	case errors.Is(err, cart.ErrNotFound):
		return http.StatusNotFound, "cart not found"
	case errors.Is(err, cart.ErrItemNotFound):
		return http.StatusNotFound, "cart item not found"
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.As(err, &mne):
		return http.StatusUnprocessableEntity, mne.Error()
	case errors.Is(err, coupon.ErrInvalidCoupon):
		return http.StatusUnprocessableEntity, "invalid coupon code"
	case errors.Is(err, coupon.ErrCouponExpired):
		return http.StatusUnprocessableEntity, "coupon expired"
	case errors.Is(err, coupon.ErrCouponUsageLimitReached):
		return http.StatusUnprocessableEntity, "coupon usage limit reached"
	case errors.As(err, &ite):
		return http.StatusConflict, ite.Error()
	case errors.Is(err, order.ErrStatusConflict):
		return http.StatusConflict, "order status changed concurrently"
	case errors.Is(err, checkout.ErrInvalidRequest):
		return http.StatusBadRequest, "cart_id and customer_email are required"
	case errors.Is(err, payment.ErrUnknownProvider):
		return http.StatusBadRequest, "unknown payment provider"
	case errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusUnauthorized, "invalid webhook signature"
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.As(err, &pe):
		return http.StatusBadGateway, "payment provider unavailable"
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// fail writes the mapped error and logs it. Server-side failures log at
// error level with the full chain.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorResponse(err)
	lg := zctx.From(r.Context())
	if status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, msg)
}
