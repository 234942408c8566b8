package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/tresses/internal/domain/fx"
)

// Metrics counts checkout outcomes. It also records stale exchange rates for
// the rate loader.
type Metrics struct {
	orders     metric.Int64Counter
	failures   metric.Int64Counter
	webhooks   metric.Int64Counter
	staleRates metric.Int64Counter
	refunds    metric.Int64Counter
}

var _ fx.StaleRecorder = (*Metrics)(nil)

// NewMetrics registers the checkout instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("github.com/xenking/tresses/checkout")

	var (
		m   Metrics
		err error
	)
	if m.orders, err = meter.Int64Counter("checkout.orders",
		metric.WithDescription("Orders placed, by payment provider")); err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	if m.failures, err = meter.Int64Counter("checkout.failures",
		metric.WithDescription("Checkouts aborted, by reason")); err != nil {
		return nil, errors.Wrap(err, "failures counter")
	}
	if m.webhooks, err = meter.Int64Counter("checkout.webhooks",
		metric.WithDescription("Verified payment webhooks, by provider and kind")); err != nil {
		return nil, errors.Wrap(err, "webhooks counter")
	}
	if m.staleRates, err = meter.Int64Counter("fx.stale_rates",
		metric.WithDescription("Exchange rates older than the freshness window at load time")); err != nil {
		return nil, errors.Wrap(err, "stale rates counter")
	}
	if m.refunds, err = meter.Int64Counter("checkout.refunds_required",
		metric.WithDescription("Payments captured for cancelled orders, by provider")); err != nil {
		return nil, errors.Wrap(err, "refunds counter")
	}
	return &m, nil
}

func (m *Metrics) orderPlaced(ctx context.Context, provider string) {
	m.orders.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

func (m *Metrics) checkoutFailed(ctx context.Context, reason string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) webhookReceived(ctx context.Context, provider, kind string) {
	m.webhooks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

func (m *Metrics) refundRequired(ctx context.Context, provider string) {
	m.refunds.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordStale implements fx.StaleRecorder.
func (m *Metrics) RecordStale(ctx context.Context, w fx.StaleRateWarning) {
	m.staleRates.Add(ctx, 1, metric.WithAttributes(attribute.String("currency", w.Currency.String())))
}
