package product

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/money"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Slug        string
	Description string
	Category    string
	Currency    money.Currency
	BasePrice   decimal.Decimal
	// CompareAtPrice is the strike-through price shown next to BasePrice.
	CompareAtPrice *decimal.Decimal
	// LengthPrices maps a length in inches to the unit price for that length.
	LengthPrices map[int]decimal.Decimal
	Image        Image
	Active       bool
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string
	Mobile    string
	Tablet    string
	Desktop   string
}

// Lengths returns the lengths that carry their own price, ascending.
func (p *Product) Lengths() []int {
	out := make([]int, 0, len(p.LengthPrices))
	for l := range p.LengthPrices {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
