package payment

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
)

func TestStripeGateway_CreateCheckout(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "order-ord-1", r.Header.Get("Idempotency-Key"))
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/pay/cs_test_1"}`))
	}))
	defer srv.Close()

	g := NewStripeGateway(StripeConfig{SecretKey: "sk_test", BaseURL: srv.URL}, srv.Client())

	o := testOrder("9000")
	items, err := g.Price(o, standardRates(t))
	require.NoError(t, err)

	s, err := g.CreateCheckout(context.Background(), CheckoutRequest{
		Order:      o,
		Items:      items,
		SuccessURL: "https://shop.example/success",
		CancelURL:  "https://shop.example/cart",
	})
	require.NoError(t, err)
	assert.Equal(t, "stripe", s.Provider)
	assert.Equal(t, "cs_test_1", s.Reference)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_test_1", s.RedirectURL)

	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "ord-1", form.Get("client_reference_id"))
	assert.Equal(t, "ord-1", form.Get("metadata[order_id]"))
	assert.Equal(t, "ada@example.com", form.Get("customer_email"))
	assert.Equal(t, "usd", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "5529", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "1", form.Get("line_items[0][quantity]"))
	assert.Empty(t, form.Get("line_items[1][quantity]"))
}

func TestStripeGateway_Price_MissingRate(t *testing.T) {
	g := NewStripeGateway(StripeConfig{SecretKey: "sk_test"}, http.DefaultClient)

	_, err := g.Price(testOrder("0"), newRates(t, map[money.Currency]string{money.NGN: "1950"}))

	var mre *fx.MissingRateError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, money.USD, mre.Currency)
}

func TestStripeGateway_CreateCheckout_NoItems(t *testing.T) {
	g := NewStripeGateway(StripeConfig{SecretKey: "sk_test", BaseURL: "http://127.0.0.1:0"}, http.DefaultClient)

	_, err := g.CreateCheckout(context.Background(), CheckoutRequest{Order: testOrder("0")})
	require.Error(t, err)
}

func TestStripeGateway_Price_ZeroTotal(t *testing.T) {
	g := NewStripeGateway(StripeConfig{SecretKey: "sk_test"}, http.DefaultClient)

	for _, discount := range []string{"93900", "93899.5"} {
		items, err := g.Price(testOrder(discount), standardRates(t))
		require.ErrorIs(t, err, money.ErrInvalidAmount, "discount %s", discount)
		assert.Empty(t, items)
	}
}

func TestStripeGateway_CreateCheckout_RejectsZeroLine(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewStripeGateway(StripeConfig{SecretKey: "sk_test", BaseURL: srv.URL}, srv.Client())

	_, err := g.CreateCheckout(context.Background(), CheckoutRequest{
		Order: testOrder("0"),
		Items: []LineItem{{Name: "Order ord-1", UnitAmount: 0, Quantity: 1, Currency: money.USD}},
	})
	require.ErrorIs(t, err, money.ErrInvalidAmount)
	assert.False(t, called, "nothing is posted to the provider")
}

func TestStripeGateway_CreateCheckout_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid currency"}}`))
	}))
	defer srv.Close()

	g := NewStripeGateway(StripeConfig{SecretKey: "sk_test", BaseURL: srv.URL}, srv.Client())

	o := testOrder("0")
	items, err := g.Price(o, standardRates(t))
	require.NoError(t, err)

	_, err = g.CreateCheckout(context.Background(), CheckoutRequest{Order: o, Items: items})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	assert.Equal(t, "Invalid currency", pe.Message)
}

const stripeCompleted = `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_test_1","client_reference_id":"ord-1","payment_status":"paid","metadata":{"order_id":"ord-1"}}}}`

func TestStripeGateway_VerifyWebhook(t *testing.T) {
	now := time.Unix(1718452800, 0)
	g := NewStripeGateway(StripeConfig{WebhookSecret: "whsec_test"}, http.DefaultClient)
	g.now = func() time.Time { return now }

	header := func(v string) http.Header {
		h := http.Header{}
		h.Set("Stripe-Signature", v)
		return h
	}
	body := []byte(stripeCompleted)

	t.Run("valid signature", func(t *testing.T) {
		ev, err := g.VerifyWebhook(header(StripeSignature("whsec_test", now, body)), body)
		require.NoError(t, err)
		assert.Equal(t, EventPaid, ev.Kind)
		assert.Equal(t, "ord-1", ev.OrderID)
		assert.Equal(t, "cs_test_1", ev.Reference)
		assert.Equal(t, "checkout.session.completed", ev.Type)
	})

	tests := []struct {
		name   string
		header http.Header
		body   []byte
	}{
		{name: "missing header", header: http.Header{}, body: body},
		{name: "wrong secret", header: header(StripeSignature("other", now, body)), body: body},
		{name: "tampered body", header: header(StripeSignature("whsec_test", now, body)), body: []byte(`{"type":"x"}`)},
		{name: "too old", header: header(StripeSignature("whsec_test", now.Add(-10*time.Minute), body)), body: body},
		{name: "malformed header", header: header("v1=abc"), body: body},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.VerifyWebhook(tt.header, tt.body)
			require.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

func TestDecodeStripeEvent(t *testing.T) {
	tests := []struct {
		name string
		body string
		want EventKind
	}{
		{name: "unpaid completion is ignored", body: `{"type":"checkout.session.completed","data":{"object":{"id":"cs","client_reference_id":"o","payment_status":"unpaid"}}}`, want: EventIgnored},
		{name: "expired session fails", body: `{"type":"checkout.session.expired","data":{"object":{"id":"cs","client_reference_id":null,"metadata":{"order_id":"o"}}}}`, want: EventFailed},
		{name: "unrelated event", body: `{"type":"customer.created","data":{"object":{"id":"cus"}}}`, want: EventIgnored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := decodeStripeEvent([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Kind)
		})
	}

	_, err := decodeStripeEvent([]byte(`{"type":"checkout.session.completed","data":{"object":{"payment_status":"paid"}}}`))
	require.Error(t, err)
}
