// Package order computes order totals and tracks an order through its
// fulfilment and payment lifecycle.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/tresses/internal/domain/money"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict is returned when the stored status changed between
	// read and update.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// PaymentStatus tracks the gateway side of an order.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Address is the shipping destination captured at checkout.
type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// Payment records which gateway holds the charge for an order.
type Payment struct {
	Provider  string
	Reference string
	Status    PaymentStatus
}

// Order is the immutable pricing snapshot of a checkout plus the mutable
// status and payment fields.
type Order struct {
	ID              string
	CartID          string
	CustomerEmail   string
	ShippingAddress Address
	Status          Status
	Payment         Payment
	CouponCode      string
	Totals          Totals
	Snapshot        Snapshot
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// UpdateStatus moves the order from one status to another, returning
	// ErrStatusConflict when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
	SetPayment(ctx context.Context, id string, p Payment) error
	MarkPaid(ctx context.Context, id string, paidAt time.Time) error
}

// Currency returns the settlement currency of the order.
func (o *Order) Currency() money.Currency {
	return o.Totals.Total.Currency
}

// NeedsRefund reports a captured payment on an order that will never ship.
func (o *Order) NeedsRefund() bool {
	return o.Payment.Status == PaymentPaid && o.Status == StatusCancelled
}
