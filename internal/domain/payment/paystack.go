package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/order"
)

const (
	paystackProvider        = "paystack"
	paystackSignatureHeader = "X-Paystack-Signature"
	defaultPaystackBaseURL  = "https://api.paystack.co"
)

// PaystackConfig configures PaystackGateway.
type PaystackConfig struct {
	SecretKey string
	BaseURL   string
	// Currency is the local currency charged, NGN unless set.
	Currency money.Currency
}

// PaystackGateway charges the order total in the local currency's minor unit.
type PaystackGateway struct {
	cfg    PaystackConfig
	client *http.Client
}

var _ Gateway = (*PaystackGateway)(nil)

// NewPaystackGateway creates a PaystackGateway.
func NewPaystackGateway(cfg PaystackConfig, client *http.Client) *PaystackGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultPaystackBaseURL
	}
	if cfg.Currency == "" {
		cfg.Currency = money.NGN
	}
	return &PaystackGateway{cfg: cfg, client: client}
}

func (g *PaystackGateway) Name() string { return paystackProvider }

// Price returns the order total as a single line in the local currency.
func (g *PaystackGateway) Price(o *order.Order, rates *fx.Table) ([]LineItem, error) {
	amount, err := ToMinorUnits("total", o.Totals.Total, g.cfg.Currency, rates)
	if err != nil {
		return nil, errors.Wrapf(err, "price order in %s", g.cfg.Currency)
	}
	if amount == 0 {
		return nil, &money.InvalidAmountError{Field: "total", Value: "0", Reason: "zero charge"}
	}
	return []LineItem{{
		Name:       "Order " + o.ID,
		UnitAmount: amount,
		Quantity:   1,
		Currency:   g.cfg.Currency,
	}}, nil
}

// CreateCheckout initializes a transaction for the priced amount. The order
// ID is the transaction reference.
func (g *PaystackGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (Session, error) {
	amount := Total(req.Items)
	if amount <= 0 {
		return Session{}, &money.InvalidAmountError{Field: "total", Value: strconv.FormatInt(amount, 10), Reason: "zero charge"}
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("email")
	e.Str(req.Order.CustomerEmail)
	e.FieldStart("amount")
	e.Str(strconv.FormatInt(amount, 10))
	e.FieldStart("currency")
	e.Str(g.cfg.Currency.String())
	e.FieldStart("reference")
	e.Str(req.Order.ID)
	e.FieldStart("callback_url")
	e.Str(req.SuccessURL)
	e.FieldStart("metadata")
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(req.Order.ID)
	e.FieldStart("cancel_action")
	e.Str(req.CancelURL)
	e.ObjEnd()
	e.ObjEnd()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.BaseURL+"/transaction/initialize", bytes.NewReader(e.Bytes()))
	if err != nil {
		return Session{}, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Session{}, errors.Wrap(err, "initialize transaction")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, errors.Wrap(err, "read response")
	}

	var (
		ok      bool
		message string
		s       = Session{Provider: paystackProvider}
	)
	if err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			ok, err = d.Bool()
		case "message":
			message, err = d.Str()
		case "data":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "authorization_url":
					s.RedirectURL, err = d.Str()
				case "reference":
					s.Reference, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		if resp.StatusCode != http.StatusOK {
			return Session{}, &ProviderError{Provider: paystackProvider, StatusCode: resp.StatusCode, Message: string(body)}
		}
		return Session{}, errors.Wrap(err, "decode initialize response")
	}
	if resp.StatusCode != http.StatusOK || !ok {
		return Session{}, &ProviderError{Provider: paystackProvider, StatusCode: resp.StatusCode, Message: message}
	}
	if s.RedirectURL == "" {
		return Session{}, errors.New("initialize response has no authorization_url")
	}
	return s, nil
}

// VerifyWebhook checks x-paystack-signature, the hex HMAC-SHA512 of the body
// keyed with the secret key, and decodes the event.
func (g *PaystackGateway) VerifyWebhook(header http.Header, body []byte) (WebhookEvent, error) {
	sig := header.Get(paystackSignatureHeader)
	if sig == "" {
		return WebhookEvent{}, errors.Wrap(ErrInvalidSignature, "missing header")
	}
	if !verifyHexMAC(paystackMAC(g.cfg.SecretKey, body), sig) {
		return WebhookEvent{}, ErrInvalidSignature
	}
	return decodePaystackEvent(body)
}

func paystackMAC(secret string, body []byte) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// PaystackSignature returns the x-paystack-signature value for payload.
func PaystackSignature(secret string, payload []byte) string {
	return hex.EncodeToString(paystackMAC(secret, payload))
}

func decodePaystackEvent(body []byte) (WebhookEvent, error) {
	ev := WebhookEvent{Provider: paystackProvider}
	var metaOrderID string
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "event":
			var err error
			ev.Type, err = d.Str()
			return err
		case "data":
			return d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "reference":
					ev.Reference, err = d.Str()
				case "metadata":
					if d.Next() != jx.Object {
						return d.Skip()
					}
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
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return WebhookEvent{}, errors.Wrap(err, "decode paystack event")
	}

	ev.OrderID = metaOrderID
	if ev.OrderID == "" {
		ev.OrderID = ev.Reference
	}
	switch ev.Type {
	case "charge.success":
		ev.Kind = EventPaid
	case "charge.failed":
		ev.Kind = EventFailed
	default:
		ev.Kind = EventIgnored
	}
	if ev.Kind != EventIgnored && ev.OrderID == "" {
		return WebhookEvent{}, errors.Errorf("paystack event %s has no reference", ev.Type)
	}
	return ev, nil
}
