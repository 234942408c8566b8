package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/order"
)

const (
	stripeProvider         = "stripe"
	stripeSignatureHeader  = "Stripe-Signature"
	defaultStripeBaseURL   = "https://api.stripe.com"
	defaultStripeTolerance = 5 * time.Minute
)

// StripeConfig configures StripeGateway.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	// Tolerance bounds the age of a webhook timestamp.
	Tolerance time.Duration
}

// StripeGateway bills in USD through hosted Checkout Sessions.
type StripeGateway struct {
	cfg    StripeConfig
	client *http.Client
	now    func() time.Time
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway creates a StripeGateway.
func NewStripeGateway(cfg StripeConfig, client *http.Client) *StripeGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultStripeBaseURL
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = defaultStripeTolerance
	}
	return &StripeGateway{cfg: cfg, client: client, now: time.Now}
}

func (g *StripeGateway) Name() string { return stripeProvider }

// Price returns the order's USD line items.
func (g *StripeGateway) Price(o *order.Order, rates *fx.Table) ([]LineItem, error) {
	items, err := BuildUSDLineItems(o, rates)
	if err != nil {
		return nil, errors.Wrap(err, "price order in USD")
	}
	return items, nil
}

// CreateCheckout creates a Checkout Session for the priced line items.
func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (Session, error) {
	items := req.Items
	if len(items) == 0 {
		return Session{}, errors.New("no line items to charge")
	}
	for _, it := range items {
		if it.UnitAmount <= 0 || it.Quantity <= 0 {
			return Session{}, &money.InvalidAmountError{
				Field:  "unit_amount",
				Value:  strconv.FormatInt(it.UnitAmount, 10),
				Reason: "line " + it.Name + " charges nothing",
			}
		}
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.Order.ID)
	form.Set("metadata[order_id]", req.Order.ID)
	if req.Order.CustomerEmail != "" {
		form.Set("customer_email", req.Order.CustomerEmail)
	}
	for i, it := range items {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[quantity]", strconv.FormatInt(it.Quantity, 10))
		form.Set(prefix+"[price_data][currency]", strings.ToLower(it.Currency.String()))
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(it.UnitAmount, 10))
		form.Set(prefix+"[price_data][product_data][name]", it.Name)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.BaseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Idempotency-Key", "order-"+req.Order.ID)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Session{}, errors.Wrap(err, "create checkout session")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return Session{}, &ProviderError{Provider: stripeProvider, StatusCode: resp.StatusCode, Message: stripeErrorMessage(body)}
	}

	var s Session
	s.Provider = stripeProvider
	if err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			s.Reference, err = d.Str()
		case "url":
			s.RedirectURL, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return Session{}, errors.Wrap(err, "decode checkout session")
	}
	if s.RedirectURL == "" {
		return Session{}, errors.New("checkout session has no url")
	}
	return s, nil
}

func stripeErrorMessage(body []byte) string {
	msg := ""
	_ = jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "error" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "message" {
				return d.Skip()
			}
			var err error
			msg, err = d.Str()
			return err
		})
	})
	if msg == "" {
		msg = string(bytes.TrimSpace(body))
	}
	return msg
}

// VerifyWebhook checks the Stripe-Signature header (t=<unix>,v1=<hex>) as
// HMAC-SHA256 of "<t>.<body>" and decodes the event.
func (g *StripeGateway) VerifyWebhook(header http.Header, body []byte) (WebhookEvent, error) {
	sig := header.Get(stripeSignatureHeader)
	if sig == "" {
		return WebhookEvent{}, errors.Wrap(ErrInvalidSignature, "missing header")
	}

	var (
		ts         string
		signatures []string
	)
	for _, part := range strings.Split(sig, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || len(signatures) == 0 {
		return WebhookEvent{}, errors.Wrap(ErrInvalidSignature, "malformed header")
	}
	if age := g.now().Sub(time.Unix(unix, 0)); age > g.cfg.Tolerance || age < -g.cfg.Tolerance {
		return WebhookEvent{}, errors.Wrap(ErrInvalidSignature, "timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(g.cfg.WebhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	valid := false
	for _, s := range signatures {
		if verifyHexMAC(expected, s) {
			valid = true
			break
		}
	}
	if !valid {
		return WebhookEvent{}, ErrInvalidSignature
	}

	return decodeStripeEvent(body)
}

// StripeSignature returns a Stripe-Signature header value for payload.
func StripeSignature(secret string, ts time.Time, payload []byte) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(t + "."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%x", t, mac.Sum(nil))
}

func decodeStripeEvent(body []byte) (WebhookEvent, error) {
	ev := WebhookEvent{Provider: stripeProvider}
	var (
		paymentStatus string
		clientRef     string
		metaOrderID   string
	)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type":
			var err error
			ev.Type, err = d.Str()
			return err
		case "data":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "object" {
					return d.Skip()
				}
				return d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "id":
						ev.Reference, err = d.Str()
					case "payment_status":
						paymentStatus, err = d.Str()
					case "client_reference_id":
						if d.Next() == jx.Null {
							return d.Null()
						}
						clientRef, err = d.Str()
					case "metadata":
						err = d.Obj(func(d *jx.Decoder, key string) error {
							if key != "order_id" {
								return d.Skip()
							}
							var err error
							metaOrderID, err = d.Str()
							return err
						})
					default:
						err = d.Skip()
					}
					return err
				})
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return WebhookEvent{}, errors.Wrap(err, "decode stripe event")
	}

	ev.OrderID = clientRef
	if ev.OrderID == "" {
		ev.OrderID = metaOrderID
	}

	switch ev.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		ev.Kind = EventIgnored
		if paymentStatus == "paid" {
			ev.Kind = EventPaid
		}
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		ev.Kind = EventFailed
	default:
		ev.Kind = EventIgnored
	}
	if ev.Kind != EventIgnored && ev.OrderID == "" {
		return WebhookEvent{}, errors.Errorf("stripe event %s has no order reference", ev.Type)
	}
	return ev, nil
}

// ProviderError is a non-success response from a payment provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

