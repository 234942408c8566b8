package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/cart"
	"github.com/xenking/tresses/internal/domain/money"
)

const (
	createCartSQL = `INSERT INTO carts (id, currency, created_at, updated_at) VALUES ($1, $2, $3, $4)`

	getCartSQL = `SELECT id, currency, created_at, updated_at FROM carts WHERE id = $1`

	listCartItemsSQL = `SELECT id, cart_id, product_id, product_name, quantity, selected_length,
		unit_price, currency, added_at
		FROM cart_items WHERE cart_id = $1 ORDER BY added_at, id`

	// Merging keeps the original snapshot price; only the quantity grows.
	upsertCartItemSQL = `INSERT INTO cart_items
		(id, cart_id, product_id, product_name, quantity, selected_length, unit_price, currency, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cart_id, product_id, selected_length)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

	updateCartItemQtySQL = `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND id = $2`

	deleteCartItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	touchCartSQL = `UPDATE carts SET updated_at = now() WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Each
// mutation is one statement, so concurrent updates rely on row atomicity.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) Create(ctx context.Context, c *cart.Cart) error {
	if _, err := r.pool.Exec(ctx, createCartSQL, c.ID, c.Currency.String(), c.CreatedAt, c.UpdatedAt); err != nil {
		return fmt.Errorf("creating cart: %w", err)
	}
	return nil
}

// Get returns the cart and its items.
func (r *CartRepository) Get(ctx context.Context, id string) (*cart.Cart, error) {
	var (
		c        cart.Cart
		currency string
	)
	err := r.pool.QueryRow(ctx, getCartSQL, id).Scan(&c.ID, &currency, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart %q: %w", id, err)
	}
	c.Currency = money.Currency(currency)

	rows, err := r.pool.Query(ctx, listCartItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	c.Items, err = pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("scanning cart items: %w", err)
	}
	return &c, nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var (
		it       cart.Item
		length   int
		price    decimal.Decimal
		currency string
	)
	if err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.ProductName, &it.Quantity, &length,
		&price, &currency, &it.AddedAt); err != nil {
		return cart.Item{}, err
	}
	if length > 0 {
		it.SelectedLength = &length
	}
	it.UnitPrice = money.New(price, money.Currency(currency))
	return it, nil
}

func (r *CartRepository) UpsertItem(ctx context.Context, it cart.Item) error {
	length := 0
	if it.SelectedLength != nil {
		length = *it.SelectedLength
	}
	tag, err := r.pool.Exec(ctx, upsertCartItemSQL,
		it.ID, it.CartID, it.ProductID, it.ProductName, it.Quantity, length,
		it.UnitPrice.Amount, it.UnitPrice.Currency.String(), it.AddedAt)
	if err != nil {
		return fmt.Errorf("upserting cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return r.touch(ctx, it.CartID)
}

func (r *CartRepository) UpdateQuantity(ctx context.Context, cartID, itemID string, qty int) error {
	tag, err := r.pool.Exec(ctx, updateCartItemQtySQL, cartID, itemID, qty)
	if err != nil {
		return fmt.Errorf("updating cart item quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return r.touch(ctx, cartID)
}

func (r *CartRepository) RemoveItem(ctx context.Context, cartID, itemID string) error {
	tag, err := r.pool.Exec(ctx, deleteCartItemSQL, cartID, itemID)
	if err != nil {
		return fmt.Errorf("deleting cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return r.touch(ctx, cartID)
}

func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, cartID); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return r.touch(ctx, cartID)
}

func (r *CartRepository) touch(ctx context.Context, cartID string) error {
	if _, err := r.pool.Exec(ctx, touchCartSQL, cartID); err != nil {
		return fmt.Errorf("touching cart: %w", err)
	}
	return nil
}
