package checkout

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/tresses/internal/domain/cart"
	"github.com/xenking/tresses/internal/domain/coupon"
	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/order"
	"github.com/xenking/tresses/internal/domain/payment"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func ngn(v string) money.Money {
	return money.New(d(v), money.NGN)
}

// --- Mock implementations ---

type staticRates struct {
	rows []fx.ExchangeRate
	err  error
}

func (s staticRates) Load(_ context.Context) (*fx.Table, error) {
	if s.err != nil {
		return nil, s.err
	}
	return fx.NewTable(money.GBP, s.rows, fixedNow)
}

func rates(codes ...money.Currency) staticRates {
	all := map[money.Currency]string{money.NGN: "1950", money.USD: "1.27"}
	var rows []fx.ExchangeRate
	for _, c := range codes {
		rows = append(rows, fx.ExchangeRate{CurrencyCode: c, RateFromBase: d(all[c]), IsActive: true, UpdatedAt: fixedNow})
	}
	return staticRates{rows: rows}
}

type mockCarts struct {
	carts   map[string]*cart.Cart
	cleared []string
}

func (m *mockCarts) Get(_ context.Context, id string) (*cart.Cart, error) {
	c, ok := m.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c, nil
}

func (m *mockCarts) Clear(_ context.Context, id string) error {
	m.cleared = append(m.cleared, id)
	return nil
}

type mockCouponRepo struct {
	rules     map[string]*coupon.Rule
	redeemErr error
	redeemed  []string
	released  []string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	r, ok := m.rules[code]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return r, nil
}

func (m *mockCouponRepo) IncrementUses(_ context.Context, code string) error {
	if m.redeemErr != nil {
		return m.redeemErr
	}
	m.redeemed = append(m.redeemed, code)
	if r, ok := m.rules[code]; ok {
		r.UsageCount++
	}
	return nil
}

func (m *mockCouponRepo) ReleaseUse(_ context.Context, code string) error {
	m.released = append(m.released, code)
	if r, ok := m.rules[code]; ok && r.UsageCount > 0 {
		r.UsageCount--
	}
	return nil
}

type mockOrders struct {
	created  []*order.Order
	payments []order.Payment
	statuses []order.Status
}

func (m *mockOrders) Create(_ context.Context, o *order.Order) error {
	cp := *o
	m.created = append(m.created, &cp)
	return nil
}

func (m *mockOrders) GetByID(_ context.Context, _ string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (m *mockOrders) UpdateStatus(_ context.Context, _ string, _, to order.Status) error {
	m.statuses = append(m.statuses, to)
	return nil
}

func (m *mockOrders) SetPayment(_ context.Context, _ string, p order.Payment) error {
	m.payments = append(m.payments, p)
	return nil
}

func (m *mockOrders) MarkPaid(_ context.Context, _ string, _ time.Time) error { return nil }

type mockPayments struct {
	confirmed []string
	failed    []string
	// confirmStatus is the order status left after confirmation; empty means confirmed.
	confirmStatus order.Status
}

func (m *mockPayments) ConfirmPayment(_ context.Context, id string) (*order.Order, error) {
	m.confirmed = append(m.confirmed, id)
	status := m.confirmStatus
	if status == "" {
		status = order.StatusConfirmed
	}
	return &order.Order{ID: id, Status: status, Payment: order.Payment{Status: order.PaymentPaid}}, nil
}

func (m *mockPayments) FailPayment(_ context.Context, id string) (*order.Order, error) {
	m.failed = append(m.failed, id)
	return &order.Order{ID: id}, nil
}

// fakeGateway bills in USD like the card provider.
type fakeGateway struct {
	createErr error
	requests  []payment.CheckoutRequest
	event     payment.WebhookEvent
	verifyErr error
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) Price(o *order.Order, rates *fx.Table) ([]payment.LineItem, error) {
	return payment.BuildUSDLineItems(o, rates)
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (payment.Session, error) {
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return payment.Session{}, g.createErr
	}
	return payment.Session{Provider: "fake", Reference: "sess_1", RedirectURL: "https://pay.example/sess_1"}, nil
}

func (g *fakeGateway) VerifyWebhook(_ http.Header, _ []byte) (payment.WebhookEvent, error) {
	return g.event, g.verifyErr
}

// --- Helpers ---

func intPtr(v int) *int { return &v }

type fixture struct {
	svc      *Service
	carts    *mockCarts
	coupons  *mockCouponRepo
	orders   *mockOrders
	payments *mockPayments
	gateway  *fakeGateway
}

func newFixture(t *testing.T, rl RateLoader, cfg Config) *fixture {
	t.Helper()

	metrics, err := NewMetrics(metricnoop.NewMeterProvider())
	require.NoError(t, err)

	maxDiscount := d("5000")
	f := &fixture{
		carts: &mockCarts{carts: map[string]*cart.Cart{
			"cart-1": {
				ID:       "cart-1",
				Currency: money.NGN,
				Items: []cart.Item{
					{ID: "i1", CartID: "cart-1", ProductID: "p1", ProductName: "Body Wave", Quantity: 2, UnitPrice: ngn("50000")},
				},
			},
			"empty": {ID: "empty", Currency: money.NGN},
		}},
		coupons: &mockCouponRepo{rules: map[string]*coupon.Rule{
			"TEN": {
				Code: "TEN", DiscountType: coupon.DiscountPercentage, Value: d("10"),
				Currency: money.NGN, MaximumDiscount: &maxDiscount, Active: true, Description: "10% off",
			},
		}},
		orders:   &mockOrders{},
		payments: &mockPayments{},
		gateway:  &fakeGateway{},
	}

	f.svc = NewService(cfg, Deps{
		Rates:    rl,
		Carts:    f.carts,
		Coupons:  coupon.NewRepoValidator(f.coupons),
		Orders:   f.orders,
		Payments: f.payments,
		Gateways: payment.NewRegistry(f.gateway),
		Metrics:  metrics,
		Tracer:   tracenoop.NewTracerProvider(),
	})
	f.svc.now = func() time.Time { return fixedNow }
	f.svc.newID = func() string { return "ord-1" }
	return f
}

func defaultConfig() Config {
	return Config{
		Shipping: map[money.Currency]ShippingRate{
			money.NGN: {Flat: d("3500"), FreeAbove: d("150000")},
		},
		TaxBasisPoints:  750,
		DisplayCurrency: money.NGN,
		SuccessURL:      "https://shop.example/success",
		CancelURL:       "https://shop.example/cart",
	}
}

func request() Request {
	return Request{CartID: "cart-1", CustomerEmail: "ada@example.com", CouponCode: "ten", Provider: "fake"}
}

// --- Tests ---

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t, rates(money.NGN, money.USD), defaultConfig())

	res, err := f.svc.PlaceOrder(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/sess_1", res.RedirectURL)

	o := res.Order
	assert.True(t, d("100000").Equal(o.Totals.Subtotal.Amount))
	assert.True(t, d("5000").Equal(o.Totals.Discount.Amount), "ten percent capped at 5000")
	assert.True(t, d("3500").Equal(o.Totals.Shipping.Amount))
	assert.True(t, d("7125").Equal(o.Totals.Tax.Amount), "tax applies to subtotal after discount")
	assert.True(t, d("105625").Equal(o.Totals.Total.Amount))
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "TEN", o.CouponCode)
	require.NotNil(t, o.Snapshot.Coupon)
	require.Len(t, o.Snapshot.Lines, 1)

	require.Len(t, f.orders.created, 1)
	assert.Equal(t, []string{"TEN"}, f.coupons.redeemed)
	assert.Equal(t, []string{"cart-1"}, f.carts.cleared)

	require.Len(t, f.orders.payments, 1)
	assert.Equal(t, order.Payment{Provider: "fake", Reference: "sess_1", Status: order.PaymentPending}, f.orders.payments[0])

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, "https://shop.example/success", req.SuccessURL)
	require.Len(t, req.Items, 1, "discounted orders are sent as one line")
	total, err := payment.ToUSDCents(o.Totals.Total, mustTable(t, rates(money.NGN, money.USD)))
	require.NoError(t, err)
	assert.Equal(t, total, req.Items[0].UnitAmount)
}

func mustTable(t *testing.T, rl staticRates) *fx.Table {
	t.Helper()
	table, err := rl.Load(context.Background())
	require.NoError(t, err)
	return table
}

func TestPlaceOrder_FreeShippingAndNoCoupon(t *testing.T) {
	cfg := defaultConfig()
	cfg.Shipping[money.NGN] = ShippingRate{Flat: d("3500"), FreeAbove: d("100000")}
	f := newFixture(t, rates(money.NGN, money.USD), cfg)

	req := request()
	req.CouponCode = ""
	res, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.Order.Totals.Shipping.Amount.IsZero())
	assert.True(t, d("107500").Equal(res.Order.Totals.Total.Amount))
	assert.Nil(t, res.Order.Snapshot.Coupon)
	assert.Empty(t, f.coupons.redeemed)
}

func TestPlaceOrder_ShippingFromBaseCurrency(t *testing.T) {
	cfg := defaultConfig()
	cfg.Shipping = map[money.Currency]ShippingRate{money.GBP: {Flat: d("5")}}
	cfg.TaxBasisPoints = 0
	f := newFixture(t, rates(money.NGN, money.USD), cfg)

	req := request()
	req.CouponCode = ""
	res, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, d("9750").Equal(res.Order.Totals.Shipping.Amount))
}

func TestPlaceOrder_DisplayCurrency(t *testing.T) {
	f := newFixture(t, rates(money.NGN, money.USD), defaultConfig())

	req := request()
	req.DisplayCurrency = money.GBP
	res, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, money.GBP, res.Order.Totals.TotalDisplay.Currency)
	assert.True(t, d("54.17").Equal(res.Order.Totals.TotalDisplay.Amount), "got %s", res.Order.Totals.TotalDisplay.Amount)
}

func TestPlaceOrder_MissingUSDRateAbortsBeforeGateway(t *testing.T) {
	f := newFixture(t, rates(money.NGN), defaultConfig())

	_, err := f.svc.PlaceOrder(context.Background(), request())

	var mre *fx.MissingRateError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, money.USD, mre.Currency)
	assert.Empty(t, f.orders.created, "no order is stored")
	assert.Empty(t, f.coupons.redeemed)
	assert.Empty(t, f.gateway.requests, "gateway is never called")
	assert.Empty(t, f.carts.cleared)
	assert.Equal(t, "missing_rate", failureReason(err))
}

func TestPlaceOrder_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mod     func(r *Request)
		rl      RateLoader
		wantErr error
	}{
		{name: "empty cart", mod: func(r *Request) { r.CartID = "empty" }, wantErr: cart.ErrEmpty},
		{name: "unknown cart", mod: func(r *Request) { r.CartID = "nope" }, wantErr: cart.ErrNotFound},
		{name: "unknown provider", mod: func(r *Request) { r.Provider = "paypal" }, wantErr: payment.ErrUnknownProvider},
		{name: "missing email", mod: func(r *Request) { r.CustomerEmail = " " }, wantErr: ErrInvalidRequest},
		{name: "invalid coupon", mod: func(r *Request) { r.CouponCode = "BOGUS" }, wantErr: coupon.ErrInvalidCoupon},
		{name: "rate store down", rl: staticRates{err: errors.New("db down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := tt.rl
			if rl == nil {
				rl = rates(money.NGN, money.USD)
			}
			f := newFixture(t, rl, defaultConfig())
			req := request()
			if tt.mod != nil {
				tt.mod(&req)
			}

			_, err := f.svc.PlaceOrder(context.Background(), req)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			assert.Empty(t, f.orders.created)
			assert.Empty(t, f.gateway.requests)
		})
	}
}

func TestPlaceOrder_GatewayFailureMarksPaymentFailed(t *testing.T) {
	f := newFixture(t, rates(money.NGN, money.USD), defaultConfig())
	f.gateway.createErr = &payment.ProviderError{Provider: "fake", StatusCode: 502, Message: "bad gateway"}

	_, err := f.svc.PlaceOrder(context.Background(), request())

	var pe *payment.ProviderError
	require.ErrorAs(t, err, &pe)
	require.Len(t, f.orders.payments, 1)
	assert.Equal(t, order.PaymentFailed, f.orders.payments[0].Status)
	assert.Equal(t, []order.Status{order.StatusCancelled}, f.orders.statuses)
	assert.Equal(t, []string{"TEN"}, f.coupons.released)
	assert.Empty(t, f.carts.cleared, "cart is kept so the customer can retry")
}

func TestPlaceOrder_GatewayOutageKeepsSingleUseCoupon(t *testing.T) {
	f := newFixture(t, rates(money.NGN, money.USD), defaultConfig())
	f.coupons.rules["TEN"].UsageLimit = intPtr(1)
	f.gateway.createErr = &payment.ProviderError{Provider: "fake", StatusCode: 502, Message: "bad gateway"}

	for range 2 {
		_, err := f.svc.PlaceOrder(context.Background(), request())
		var pe *payment.ProviderError
		require.ErrorAs(t, err, &pe, "coupon must still validate on retry")
	}
	assert.Equal(t, 0, f.coupons.rules["TEN"].UsageCount)
	assert.Equal(t, []order.Status{order.StatusCancelled, order.StatusCancelled}, f.orders.statuses)

	f.gateway.createErr = nil
	res, err := f.svc.PlaceOrder(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "TEN", res.Order.CouponCode)
	assert.Equal(t, 1, f.coupons.rules["TEN"].UsageCount)
}

func TestPlaceOrder_ZeroChargeAbortsBeforeOrder(t *testing.T) {
	cfg := defaultConfig()
	cfg.Shipping[money.NGN] = ShippingRate{Flat: d("0")}
	f := newFixture(t, rates(money.NGN, money.USD), cfg)
	f.coupons.rules["FREE"] = &coupon.Rule{
		Code: "FREE", DiscountType: coupon.DiscountPercentage, Value: d("100"),
		Currency: money.NGN, Active: true,
	}

	req := request()
	req.CouponCode = "free"
	_, err := f.svc.PlaceOrder(context.Background(), req)

	require.ErrorIs(t, err, money.ErrInvalidAmount)
	assert.Empty(t, f.orders.created)
	assert.Empty(t, f.coupons.redeemed)
	assert.Empty(t, f.gateway.requests)
	assert.Equal(t, "invalid_amount", failureReason(err))
}

func TestPlaceOrder_RedeemFailureCancelsOrder(t *testing.T) {
	f := newFixture(t, rates(money.NGN, money.USD), defaultConfig())
	f.coupons.redeemErr = coupon.ErrCouponUsageLimitReached

	_, err := f.svc.PlaceOrder(context.Background(), request())
	require.ErrorIs(t, err, coupon.ErrCouponUsageLimitReached)
	assert.Equal(t, []order.Status{order.StatusCancelled}, f.orders.statuses)
	assert.Empty(t, f.gateway.requests)
}

func TestHandleWebhook(t *testing.T) {
	t.Run("paid confirms the order", func(t *testing.T) {
		f := newFixture(t, rates(money.NGN, money.USD), defaultConfig())
		f.gateway.event = payment.WebhookEvent{Provider: "fake", Kind: payment.EventPaid, OrderID: "ord-1"}

		ev, err := f.svc.HandleWebhook(context.Background(), "fake", http.Header{}, []byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, payment.EventPaid, ev.Kind)
		assert.Equal(t, []string{"ord-1"}, f.payments.confirmed)
	})

	t.Run("paid on cancelled order flags a refund", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		ctx := zctx.Base(context.Background(), zap.New(core))
		f := newFixture(t, rates(money.NGN, money.USD), defaultConfig())
		f.payments.confirmStatus = order.StatusCancelled
		f.gateway.event = payment.WebhookEvent{Provider: "fake", Kind: payment.EventPaid, OrderID: "ord-1"}

		_, err := f.svc.HandleWebhook(ctx, "fake", http.Header{}, []byte(`{}`))
		require.NoError(t, err, "the provider must not retry a captured payment")
		assert.Equal(t, []string{"ord-1"}, f.payments.confirmed)
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "Paid order is cancelled, refund required", logs.All()[0].Message)
	})

	t.Run("failed marks payment failed", func(t *testing.T) {
		f := newFixture(t, rates(money.NGN, money.USD), defaultConfig())
		f.gateway.event = payment.WebhookEvent{Provider: "fake", Kind: payment.EventFailed, OrderID: "ord-1"}

		_, err := f.svc.HandleWebhook(context.Background(), "fake", http.Header{}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"ord-1"}, f.payments.failed)
	})

	t.Run("ignored event changes nothing", func(t *testing.T) {
		f := newFixture(t, rates(money.NGN, money.USD), defaultConfig())
		f.gateway.event = payment.WebhookEvent{Provider: "fake", Kind: payment.EventIgnored}

		_, err := f.svc.HandleWebhook(context.Background(), "fake", http.Header{}, nil)
		require.NoError(t, err)
		assert.Empty(t, f.payments.confirmed)
		assert.Empty(t, f.payments.failed)
	})

	t.Run("bad signature", func(t *testing.T) {
		f := newFixture(t, rates(money.NGN, money.USD), defaultConfig())
		f.gateway.verifyErr = payment.ErrInvalidSignature

		_, err := f.svc.HandleWebhook(context.Background(), "fake", http.Header{}, nil)
		require.ErrorIs(t, err, payment.ErrInvalidSignature)
		assert.Empty(t, f.payments.confirmed)
	})

	t.Run("unknown provider", func(t *testing.T) {
		f := newFixture(t, rates(money.NGN, money.USD), defaultConfig())

		_, err := f.svc.HandleWebhook(context.Background(), "paypal", http.Header{}, nil)
		require.ErrorIs(t, err, payment.ErrUnknownProvider)
	})
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "invalid_amount", failureReason(&money.InvalidAmountError{Field: "total"}))
	assert.Equal(t, "coupon", failureReason(errors.Wrap(coupon.ErrMinimumNotMet, "x")))
	assert.Equal(t, "internal", failureReason(errors.New("boom")))
}
