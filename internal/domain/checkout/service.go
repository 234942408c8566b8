// Package checkout turns a cart into a priced order and hands it to a
// payment provider.
package checkout

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/tresses/internal/domain/cart"
	"github.com/xenking/tresses/internal/domain/coupon"
	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/order"
	"github.com/xenking/tresses/internal/domain/payment"
)

var tenThousand = decimal.NewFromInt(10000)

// ShippingRate is the flat shipping charge for one settlement currency.
type ShippingRate struct {
	Flat decimal.Decimal
	// FreeAbove waives shipping when the subtotal reaches it. Zero disables.
	FreeAbove decimal.Decimal
}

// Config holds checkout pricing policy.
type Config struct {
	// Shipping is keyed by settlement currency. A currency without an entry
	// uses the base-currency entry converted through the rate table.
	Shipping map[money.Currency]ShippingRate
	// TaxBasisPoints is applied to subtotal - discount.
	TaxBasisPoints  int64
	DisplayCurrency money.Currency
	SuccessURL      string
	CancelURL       string
}

// RateLoader loads the rate table for one checkout.
type RateLoader interface {
	Load(ctx context.Context) (*fx.Table, error)
}

// Carts reads and empties carts.
type Carts interface {
	Get(ctx context.Context, cartID string) (*cart.Cart, error)
	Clear(ctx context.Context, cartID string) error
}

// Payments applies verified payment outcomes to orders.
type Payments interface {
	ConfirmPayment(ctx context.Context, id string) (*order.Order, error)
	FailPayment(ctx context.Context, id string) (*order.Order, error)
}

// Request is a customer's checkout submission.
type Request struct {
	CartID          string
	CustomerEmail   string
	ShippingAddress order.Address
	CouponCode      string
	DisplayCurrency money.Currency
	Provider        string
	SuccessURL      string
	CancelURL       string
}

// Result is a placed order awaiting payment.
type Result struct {
	Order       *order.Order
	RedirectURL string
}

// Service runs the checkout pipeline.
type Service struct {
	cfg      Config
	rates    RateLoader
	carts    Carts
	coupons  coupon.Validator
	orders   order.Repository
	payments Payments
	gateways payment.Registry
	metrics  *Metrics
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

// Deps groups the collaborators of Service.
type Deps struct {
	Rates    RateLoader
	Carts    Carts
	Coupons  coupon.Validator
	Orders   order.Repository
	Payments Payments
	Gateways payment.Registry
	Metrics  *Metrics
	Tracer   trace.TracerProvider
}

// NewService creates a checkout Service.
func NewService(cfg Config, deps Deps) *Service {
	return &Service{
		cfg:      cfg,
		rates:    deps.Rates,
		carts:    deps.Carts,
		coupons:  deps.Coupons,
		orders:   deps.Orders,
		payments: deps.Payments,
		gateways: deps.Gateways,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer.Tracer("github.com/xenking/tresses/checkout"),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// PlaceOrder prices the cart, persists the order and starts the provider's
// hosted checkout. Every rate and amount check runs before the order is
// stored, so a *fx.MissingRateError or *money.InvalidAmountError never
// reaches a gateway.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.PlaceOrder",
		trace.WithAttributes(
			attribute.String("cart.id", req.CartID),
			attribute.String("payment.provider", req.Provider),
		))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.metrics.checkoutFailed(ctx, failureReason(rerr))
			zctx.From(ctx).Warn("Checkout aborted",
				zap.String("cart_id", req.CartID),
				zap.String("provider", req.Provider),
				zap.Error(rerr),
			)
		}
		span.End()
	}()

	if strings.TrimSpace(req.CartID) == "" || strings.TrimSpace(req.CustomerEmail) == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "cart and email are required")
	}
	gw, err := s.gateways.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	rates, err := s.rates.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load rates")
	}

	c, err := s.carts.Get(ctx, req.CartID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, cart.ErrEmpty
	}

	o, err := s.price(ctx, req, c, rates)
	if err != nil {
		return nil, err
	}

	items, err := gw.Price(o, rates)
	if err != nil {
		return nil, err
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	if o.CouponCode != "" {
		if err := s.coupons.Redeem(ctx, o.CouponCode); err != nil {
			if cerr := s.orders.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusCancelled); cerr != nil {
				lg.Error("Cancel order after failed coupon redemption", zap.Error(cerr))
			}
			return nil, errors.Wrap(err, "redeem coupon")
		}
	}

	session, err := gw.CreateCheckout(ctx, payment.CheckoutRequest{
		Order:      o,
		Items:      items,
		SuccessURL: firstNonEmpty(req.SuccessURL, s.cfg.SuccessURL),
		CancelURL:  firstNonEmpty(req.CancelURL, s.cfg.CancelURL),
	})
	if err != nil {
		s.abandon(ctx, o)
		return nil, errors.Wrap(err, "initialize payment")
	}

	o.Payment = order.Payment{Provider: gw.Name(), Reference: session.Reference, Status: order.PaymentPending}
	if err := s.orders.SetPayment(ctx, o.ID, o.Payment); err != nil {
		return nil, errors.Wrap(err, "store payment reference")
	}

	if err := s.carts.Clear(ctx, c.ID); err != nil {
		lg.Warn("Clear cart after checkout", zap.Error(err))
	}

	s.metrics.orderPlaced(ctx, gw.Name())
	span.SetAttributes(attribute.String("order.id", o.ID))
	lg.Info("Order placed",
		zap.String("provider", gw.Name()),
		zap.Stringer("total", o.Totals.Total),
		zap.Int64("charged_minor_units", payment.Total(items)),
	)

	return &Result{Order: o, RedirectURL: session.RedirectURL}, nil
}

// abandon rolls back an order whose payment could not be started: the payment
// is marked failed, the order cancelled and any coupon use returned. The cart
// is left intact so the customer can retry.
func (s *Service) abandon(ctx context.Context, o *order.Order) {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	o.Payment.Status = order.PaymentFailed
	if err := s.orders.SetPayment(ctx, o.ID, o.Payment); err != nil {
		lg.Error("Record failed payment initialization", zap.Error(err))
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusCancelled); err != nil {
		lg.Error("Cancel order after failed payment initialization", zap.Error(err))
	} else {
		o.Status = order.StatusCancelled
	}
	if o.CouponCode != "" {
		if err := s.coupons.Release(ctx, o.CouponCode); err != nil {
			lg.Error("Release coupon after failed payment initialization",
				zap.String("coupon", o.CouponCode), zap.Error(err))
		}
	}
}

// price builds the unsaved order for c.
func (s *Service) price(ctx context.Context, req Request, c *cart.Cart, rates *fx.Table) (*order.Order, error) {
	subtotal, err := c.Subtotal()
	if err != nil {
		return nil, err
	}

	discount := money.Zero(subtotal.Currency)
	var applied *order.CouponSnapshot
	if code := coupon.NormalizeCode(req.CouponCode); code != "" {
		d, err := s.coupons.Validate(ctx, code, subtotal, rates)
		if err != nil {
			return nil, err
		}
		discount = d.Amount
		applied = &order.CouponSnapshot{Code: d.Code, Description: d.Description, Amount: d.Amount}
	}

	shipping, err := s.shipping(subtotal, rates)
	if err != nil {
		return nil, errors.Wrap(err, "shipping")
	}

	taxable := subtotal.Amount.Sub(discount.Amount)
	tax := money.New(taxable.Mul(decimal.NewFromInt(s.cfg.TaxBasisPoints)).Div(tenThousand).Round(2), subtotal.Currency)

	display := req.DisplayCurrency
	if display == "" {
		display = s.cfg.DisplayCurrency
	}
	totals, err := order.CalculateTotals(order.TotalsInput{
		Subtotal:        subtotal,
		Shipping:        shipping,
		Tax:             tax,
		Discount:        discount,
		DisplayCurrency: display,
		Rates:           rates,
	})
	if err != nil {
		return nil, err
	}

	lines := make([]order.Line, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, order.Line{
			ProductID:      it.ProductID,
			Name:           it.ProductName,
			Quantity:       it.Quantity,
			SelectedLength: it.SelectedLength,
			UnitPrice:      it.UnitPrice,
		})
	}

	now := s.now().UTC()
	o := &order.Order{
		ID:              s.newID(),
		CartID:          c.ID,
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		ShippingAddress: req.ShippingAddress,
		Status:          order.StatusPending,
		Payment:         order.Payment{Provider: req.Provider, Status: order.PaymentUnpaid},
		Totals:          totals,
		Snapshot:        order.Snapshot{Version: order.SnapshotVersion, Lines: lines, Coupon: applied},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if applied != nil {
		o.CouponCode = applied.Code
	}
	return o, nil
}

// shipping returns the flat charge for subtotal's currency, waived above the
// free threshold.
func (s *Service) shipping(subtotal money.Money, rates *fx.Table) (money.Money, error) {
	settlement := subtotal.Currency
	rate, ok := s.cfg.Shipping[settlement]
	if !ok {
		base, ok := s.cfg.Shipping[rates.Base()]
		if !ok {
			return money.Zero(settlement), nil
		}
		flat, err := rates.Convert(money.New(base.Flat, rates.Base()), settlement)
		if err != nil {
			return money.Money{}, err
		}
		free, err := rates.Convert(money.New(base.FreeAbove, rates.Base()), settlement)
		if err != nil {
			return money.Money{}, err
		}
		rate = ShippingRate{Flat: flat.Amount.Round(2), FreeAbove: free.Amount}
	}
	if rate.Flat.IsNegative() {
		return money.Money{}, &money.InvalidAmountError{Field: "shipping", Value: rate.Flat.String(), Reason: "negative"}
	}
	if rate.FreeAbove.IsPositive() && subtotal.Amount.GreaterThanOrEqual(rate.FreeAbove) {
		return money.Zero(settlement), nil
	}
	return money.New(rate.Flat, settlement), nil
}

// HandleWebhook verifies a provider notification and applies it to the order.
func (s *Service) HandleWebhook(ctx context.Context, provider string, header http.Header, body []byte) (payment.WebhookEvent, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.HandleWebhook",
		trace.WithAttributes(attribute.String("payment.provider", provider)))
	defer span.End()

	gw, err := s.gateways.Get(provider)
	if err != nil {
		return payment.WebhookEvent{}, err
	}
	ev, err := gw.VerifyWebhook(header, body)
	if err != nil {
		span.RecordError(err)
		return payment.WebhookEvent{}, err
	}
	s.metrics.webhookReceived(ctx, provider, string(ev.Kind))

	lg := zctx.From(ctx).With(
		zap.String("provider", provider),
		zap.String("event", ev.Type),
		zap.String("order_id", ev.OrderID),
	)
	switch ev.Kind {
	case payment.EventPaid:
		o, err := s.payments.ConfirmPayment(ctx, ev.OrderID)
		if err != nil {
			return ev, errors.Wrap(err, "confirm payment")
		}
		if o.NeedsRefund() {
			s.metrics.refundRequired(ctx, provider)
			lg.Warn("Paid order is cancelled, refund required")
			break
		}
		lg.Info("Payment confirmed")
	case payment.EventFailed:
		if _, err := s.payments.FailPayment(ctx, ev.OrderID); err != nil {
			return ev, errors.Wrap(err, "fail payment")
		}
		lg.Info("Payment failed")
	default:
		lg.Debug("Ignoring webhook event")
	}
	return ev, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
