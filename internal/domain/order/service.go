package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Service applies status and payment changes to stored orders.
type Service struct {
	orders Repository
	now    func() time.Time
}

// NewService creates an order Service.
func NewService(orders Repository) *Service {
	return &Service{orders: orders, now: time.Now}
}

// Get returns the order with the given ID.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// UpdateStatus moves an order to the given status, rejecting transitions
// outside the state machine.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if err := Transition(o, to); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateStatus(ctx, id, from, to); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	if to == StatusRefunded && o.Payment.Status == PaymentPaid {
		o.Payment.Status = PaymentRefunded
		if err := s.orders.SetPayment(ctx, id, o.Payment); err != nil {
			return nil, errors.Wrap(err, "mark payment refunded")
		}
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return o, nil
}

// ConfirmPayment marks the order paid and confirms it if still pending.
// Repeated confirmations are no-ops. A payment on a cancelled order is
// recorded and left for a refund; see Order.NeedsRefund.
func (s *Service) ConfirmPayment(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Payment.Status == PaymentPaid {
		return o, nil
	}

	paidAt := s.now().UTC()
	if err := s.orders.MarkPaid(ctx, id, paidAt); err != nil {
		return nil, errors.Wrap(err, "mark order paid")
	}
	o.Payment.Status = PaymentPaid
	o.PaidAt = &paidAt

	switch o.Status {
	case StatusPending:
		if err := s.orders.UpdateStatus(ctx, id, StatusPending, StatusConfirmed); err != nil {
			return nil, errors.Wrap(err, "confirm order")
		}
		o.Status = StatusConfirmed
	case StatusCancelled:
		zctx.From(ctx).Warn("Payment captured for cancelled order, refund required",
			zap.String("order_id", id),
			zap.String("provider", o.Payment.Provider),
			zap.Stringer("total", o.Totals.Total),
		)
	default:
		zctx.From(ctx).Warn("Payment captured for order past pending",
			zap.String("order_id", id),
			zap.String("status", string(o.Status)),
		)
	}
	return o, nil
}

// FailPayment records a failed charge. A paid order is left untouched.
func (s *Service) FailPayment(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Payment.Status == PaymentPaid {
		return o, nil
	}
	o.Payment.Status = PaymentFailed
	if err := s.orders.SetPayment(ctx, id, o.Payment); err != nil {
		return nil, errors.Wrap(err, "mark payment failed")
	}
	return o, nil
}
