package payment

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"net/http"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/order"
)

var (
	// ErrInvalidSignature is returned when a webhook fails verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnknownProvider is returned for a provider name with no gateway.
	ErrUnknownProvider = errors.New("unknown payment provider")
)

// CheckoutRequest asks a gateway to start collecting payment for an order
// already priced by the gateway's Price.
type CheckoutRequest struct {
	Order      *order.Order
	Items      []LineItem
	SuccessURL string
	CancelURL  string
}

// Session is a started checkout at the provider.
type Session struct {
	Provider    string
	Reference   string
	RedirectURL string
}

// EventKind classifies a verified webhook.
type EventKind string

const (
	EventPaid    EventKind = "paid"
	EventFailed  EventKind = "failed"
	EventIgnored EventKind = "ignored"
)

// WebhookEvent is a verified provider notification.
type WebhookEvent struct {
	Provider  string
	Kind      EventKind
	Type      string
	OrderID   string
	Reference string
}

// Gateway is a payment provider.
type Gateway interface {
	Name() string
	// Price converts the order into the lines the provider will charge. It
	// performs no I/O and fails on any missing rate or invalid amount.
	Price(o *order.Order, rates *fx.Table) ([]LineItem, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Session, error)
	VerifyWebhook(header http.Header, body []byte) (WebhookEvent, error)
}

// Registry resolves gateways by provider name.
type Registry map[string]Gateway

// NewRegistry indexes gateways by Name. Nil gateways are skipped.
func NewRegistry(gateways ...Gateway) Registry {
	r := make(Registry, len(gateways))
	for _, g := range gateways {
		if g != nil {
			r[g.Name()] = g
		}
	}
	return r
}

// Get returns the named gateway or ErrUnknownProvider.
func (r Registry) Get(name string) (Gateway, error) {
	g, ok := r[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProvider, "%q", name)
	}
	return g, nil
}

// Names returns the configured provider names, sorted.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewHTTPClient returns an instrumented client for provider APIs.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Total sums the line items in minor units.
func Total(items []LineItem) int64 {
	var sum int64
	for _, it := range items {
		sum += it.UnitAmount * it.Quantity
	}
	return sum
}

func verifyHexMAC(expected []byte, got string) bool {
	decoded, err := hex.DecodeString(got)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, decoded)
}
