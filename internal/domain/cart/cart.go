// Package cart keeps shopping carts and aggregates their line items into a
// subtotal.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/tresses/internal/domain/money"
)

var (
	// ErrNotFound is returned when a cart does not exist.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when a line item is not part of the cart.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrEmpty is returned when an operation needs at least one line item.
	ErrEmpty = errors.New("cart is empty")
	// ErrProductUnavailable is returned when adding an inactive product.
	ErrProductUnavailable = errors.New("product unavailable")
)

// InvalidQuantityError indicates a line item quantity below one.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1 for product %s, got %d", e.ProductID, e.Quantity)
}

// Cart is a set of line items priced in a single currency.
type Cart struct {
	ID        string
	Currency  money.Currency
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is a cart line. UnitPrice is a snapshot taken when the product was
// added and is not refreshed when the catalog changes.
type Item struct {
	ID             string
	CartID         string
	ProductID      string
	ProductName    string
	Quantity       int
	SelectedLength *int
	UnitPrice      money.Money
	AddedAt        time.Time
}

// LineTotal returns UnitPrice x Quantity.
func (i Item) LineTotal() money.Money {
	return i.UnitPrice.Mul(i.Quantity)
}

// Subtotal aggregates the cart's items in the cart currency.
func (c *Cart) Subtotal() (money.Money, error) {
	return Subtotal(c.Items, c.Currency)
}

// Repository persists carts. Each method is a single atomic statement.
type Repository interface {
	Create(ctx context.Context, c *Cart) error
	Get(ctx context.Context, id string) (*Cart, error)
	// UpsertItem inserts item or, when a line with the same product and
	// length exists, adds item.Quantity to it.
	UpsertItem(ctx context.Context, item Item) error
	UpdateQuantity(ctx context.Context, cartID, itemID string, qty int) error
	RemoveItem(ctx context.Context, cartID, itemID string) error
	Clear(ctx context.Context, cartID string) error
}
