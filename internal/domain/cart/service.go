package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/product"
)

// Service implements the cart lifecycle on top of a Repository.
type Service struct {
	carts    Repository
	products product.Repository
	now      func() time.Time
	newID    func() string
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{
		carts:    carts,
		products: products,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Create opens an empty cart priced in currency.
func (s *Service) Create(ctx context.Context, currency money.Currency) (*Cart, error) {
	now := s.now().UTC()
	c := &Cart{
		ID:        s.newID(),
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.carts.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// Get returns the cart with its items.
func (s *Service) Get(ctx context.Context, cartID string) (*Cart, error) {
	return s.carts.Get(ctx, cartID)
}

// AddItem snapshots the product's resolved unit price into the cart. A line
// for the same product and length is merged by adding quantities.
func (s *Service) AddItem(ctx context.Context, cartID, productID string, qty int, length *int) (*Cart, error) {
	if qty < 1 {
		return nil, &InvalidQuantityError{ProductID: productID, Quantity: qty}
	}

	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrProductUnavailable
	}

	price, err := product.ResolveUnitPrice(p, length)
	if err != nil {
		return nil, err
	}
	if price.Currency != c.Currency {
		return nil, &money.CurrencyMismatchError{Want: c.Currency, Got: price.Currency}
	}

	item := Item{
		ID:             s.newID(),
		CartID:         c.ID,
		ProductID:      p.ID,
		ProductName:    p.Name,
		Quantity:       qty,
		SelectedLength: length,
		UnitPrice:      price,
		AddedAt:        s.now().UTC(),
	}
	if err := s.carts.UpsertItem(ctx, item); err != nil {
		return nil, errors.Wrap(err, "add cart item")
	}
	return s.carts.Get(ctx, cartID)
}

// UpdateQuantity sets an item's quantity. Zero removes the item.
func (s *Service) UpdateQuantity(ctx context.Context, cartID, itemID string, qty int) (*Cart, error) {
	switch {
	case qty < 0:
		return nil, &InvalidQuantityError{ProductID: itemID, Quantity: qty}
	case qty == 0:
		return s.RemoveItem(ctx, cartID, itemID)
	}
	if err := s.carts.UpdateQuantity(ctx, cartID, itemID, qty); err != nil {
		return nil, err
	}
	return s.carts.Get(ctx, cartID)
}

// RemoveItem deletes an item from the cart.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) (*Cart, error) {
	if err := s.carts.RemoveItem(ctx, cartID, itemID); err != nil {
		return nil, err
	}
	return s.carts.Get(ctx, cartID)
}

// Clear removes every item, typically after the order is placed.
func (s *Service) Clear(ctx context.Context, cartID string) error {
	return s.carts.Clear(ctx, cartID)
}
