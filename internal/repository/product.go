package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/product"
)

const (
	productColumns = `id, slug, name, description, category, currency, base_price, compare_at_price,
		length_prices, image_thumbnail, image_mobile, image_tablet, image_desktop, active`

	listProductsSQL = `SELECT ` + productColumns + `
		FROM products WHERE active ORDER BY name, id`

	getProductByIDSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = $1 OR slug = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = ANY($1)`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			currency = EXCLUDED.currency,
			base_price = EXCLUDED.base_price,
			compare_at_price = EXCLUDED.compare_at_price,
			length_prices = EXCLUDED.length_prices,
			image_thumbnail = EXCLUDED.image_thumbnail,
			image_mobile = EXCLUDED.image_mobile,
			image_tablet = EXCLUDED.image_tablet,
			image_desktop = EXCLUDED.image_desktop,
			active = EXCLUDED.active`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all active products ordered by name.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier or slug.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts or replaces a catalog entry.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Slug, p.Name, p.Description, p.Category, p.Currency.String(), p.BasePrice, p.CompareAtPrice,
		encodeLengthPrices(p.LengthPrices),
		p.Image.Thumbnail, p.Image.Mobile, p.Image.Tablet, p.Image.Desktop, p.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p            product.Product
		currency     string
		compareAt    decimal.NullDecimal
		lengthPrices []byte
	)
	err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.Description, &p.Category, &currency, &p.BasePrice, &compareAt,
		&lengthPrices,
		&p.Image.Thumbnail, &p.Image.Mobile, &p.Image.Tablet, &p.Image.Desktop, &p.Active,
	)
	if err != nil {
		return p, err
	}
	p.Currency = money.Currency(currency)
	if compareAt.Valid {
		p.CompareAtPrice = &compareAt.Decimal
	}
	if p.LengthPrices, err = decodeLengthPrices(lengthPrices); err != nil {
		return p, fmt.Errorf("product %q: %w", p.ID, err)
	}
	return p, nil
}

// encodeLengthPrices renders {"<inches>": "<price>"} with sorted keys.
func encodeLengthPrices(prices map[int]decimal.Decimal) []byte {
	lengths := make([]int, 0, len(prices))
	for l := range prices {
		lengths = append(lengths, l)
	}
	sort.Ints(lengths)

	var e jx.Encoder
	e.ObjStart()
	for _, l := range lengths {
		e.FieldStart(strconv.Itoa(l))
		e.Str(prices[l].String())
	}
	e.ObjEnd()
	return e.Bytes()
}

// decodeLengthPrices accepts prices as JSON strings or numbers.
func decodeLengthPrices(data []byte) (map[int]decimal.Decimal, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out := map[int]decimal.Decimal{}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		length, err := strconv.Atoi(key)
		if err != nil {
			return errors.Errorf("length %q is not an integer", key)
		}
		var raw string
		switch d.Next() {
		case jx.String:
			raw, err = d.Str()
		case jx.Number:
			var n jx.Num
			n, err = d.Num()
			raw = n.String()
		default:
			return errors.Errorf("price for length %d must be a string or number", length)
		}
		if err != nil {
			return err
		}
		price, err := money.ParseAmount("length_prices."+key, raw)
		if err != nil {
			return err
		}
		out[length] = price
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode length prices")
	}
	return out, nil
}
