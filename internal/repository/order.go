package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/order"
)

const (
	orderColumns = `id, cart_id, customer_email, shipping_address, status,
		payment_provider, payment_reference, payment_status, coupon_code,
		currency, subtotal, shipping_cost, tax, discount, total,
		display_currency, exchange_rate, total_display, snapshot,
		created_at, updated_at, paid_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`

	setOrderPaymentSQL = `UPDATE orders SET payment_provider = $2, payment_reference = $3,
		payment_status = $4, updated_at = now() WHERE id = $1`

	markOrderPaidSQL = `UPDATE orders SET payment_status = 'paid', paid_at = $2, updated_at = now()
		WHERE id = $1`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The shipping address and snapshot are stored
// as JSONB.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	t := o.Totals
	_, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.CartID, o.CustomerEmail, encodeAddress(o.ShippingAddress), string(o.Status),
		o.Payment.Provider, o.Payment.Reference, string(o.Payment.Status), o.CouponCode,
		o.Currency().String(), t.Subtotal.Amount, t.Shipping.Amount, t.Tax.Amount,
		t.Discount.Amount, t.Total.Amount,
		t.TotalDisplay.Currency.String(), t.ExchangeRate, t.TotalDisplay.Amount,
		order.EncodeSnapshot(o.Snapshot),
		o.CreatedAt, o.UpdatedAt, o.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns the order or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

// UpdateStatus moves the order from one status to another. It returns
// order.ErrStatusConflict when the stored status is no longer from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missingOr(ctx, id, order.ErrStatusConflict)
}

func (r *OrderRepository) SetPayment(ctx context.Context, id string, p order.Payment) error {
	tag, err := r.pool.Exec(ctx, setOrderPaymentSQL, id, p.Provider, p.Reference, string(p.Status))
	if err != nil {
		return fmt.Errorf("setting order %q payment: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) error {
	tag, err := r.pool.Exec(ctx, markOrderPaidSQL, id, paidAt)
	if err != nil {
		return fmt.Errorf("marking order %q paid: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) missingOr(ctx context.Context, id string, conflict error) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return conflict
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o                         order.Order
		address, snapshot         []byte
		status, paymentStatus     string
		currency, displayCurrency string
		subtotal, shipping, tax   decimal.Decimal
		discount, total, display  decimal.Decimal
	)
	if err := row.Scan(
		&o.ID, &o.CartID, &o.CustomerEmail, &address, &status,
		&o.Payment.Provider, &o.Payment.Reference, &paymentStatus, &o.CouponCode,
		&currency, &subtotal, &shipping, &tax, &discount, &total,
		&displayCurrency, &o.Totals.ExchangeRate, &display, &snapshot,
		&o.CreatedAt, &o.UpdatedAt, &o.PaidAt,
	); err != nil {
		return nil, err
	}

	o.Status = order.Status(status)
	o.Payment.Status = order.PaymentStatus(paymentStatus)

	c := money.Currency(currency)
	o.Totals.Subtotal = money.New(subtotal, c)
	o.Totals.Shipping = money.New(shipping, c)
	o.Totals.Tax = money.New(tax, c)
	o.Totals.Discount = money.New(discount, c)
	o.Totals.Total = money.New(total, c)
	o.Totals.TotalDisplay = money.New(display, money.Currency(displayCurrency))

	var err error
	if o.ShippingAddress, err = decodeAddress(address); err != nil {
		return nil, err
	}
	if o.Snapshot, err = order.DecodeSnapshot(snapshot); err != nil {
		return nil, err
	}
	return &o, nil
}

func encodeAddress(a order.Address) []byte {
	var e jx.Encoder
	e.ObjStart()
	for _, f := range addressFields(&a) {
		if *f.v == "" {
			continue
		}
		e.FieldStart(f.key)
		e.Str(*f.v)
	}
	e.ObjEnd()
	return e.Bytes()
}

func decodeAddress(data []byte) (order.Address, error) {
	var a order.Address
	fields := addressFields(&a)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		for _, f := range fields {
			if f.key == key {
				v, err := d.Str()
				*f.v = v
				return err
			}
		}
		return d.Skip()
	})
	if err != nil {
		return order.Address{}, fmt.Errorf("decoding shipping address: %w", err)
	}
	return a, nil
}

type addressField struct {
	key string
	v   *string
}

func addressFields(a *order.Address) []addressField {
	return []addressField{
		{"name", &a.Name},
		{"line1", &a.Line1},
		{"line2", &a.Line2},
		{"city", &a.City},
		{"state", &a.State},
		{"postal_code", &a.PostalCode},
		{"country", &a.Country},
		{"phone", &a.Phone},
	}
}
