package main

import (
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/product"
)

// parseProducts reads the seed catalog. Prices are JSON strings so they reach
// decimal without a float round trip.
func parseProducts(data []byte) ([]product.Product, error) {
	var out []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		p := product.Product{Active: true}
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			return decodeProductField(d, key, &p)
		}); err != nil {
			return err
		}
		if p.ID == "" || p.Slug == "" || p.Currency == "" {
			return errors.Errorf("product %q: id, slug and currency are required", p.Name)
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeProductField(d *jx.Decoder, key string, p *product.Product) (err error) {
	switch key {
	case "id":
		p.ID, err = d.Str()
	case "slug":
		p.Slug, err = d.Str()
	case "name":
		p.Name, err = d.Str()
	case "description":
		p.Description, err = d.Str()
	case "category":
		p.Category, err = d.Str()
	case "currency":
		var s string
		if s, err = d.Str(); err != nil {
			return err
		}
		p.Currency, err = money.ParseCurrency(s)
	case "price":
		p.BasePrice, err = decodeAmount(d, "price")
	case "compare_at_price":
		var v decimal.Decimal
		if v, err = decodeAmount(d, "compare_at_price"); err != nil {
			return err
		}
		p.CompareAtPrice = &v
	case "length_prices":
		p.LengthPrices = make(map[int]decimal.Decimal)
		err = d.Obj(func(d *jx.Decoder, length string) error {
			inches, err := strconv.Atoi(length)
			if err != nil || inches < 1 {
				return errors.Errorf("length %q must be a positive integer", length)
			}
			price, err := decodeAmount(d, "length_prices."+length)
			if err != nil {
				return err
			}
			p.LengthPrices[inches] = price
			return nil
		})
	case "image":
		err = d.Obj(func(d *jx.Decoder, key string) (err error) {
			switch key {
			case "thumbnail":
				p.Image.Thumbnail, err = d.Str()
			case "mobile":
				p.Image.Mobile, err = d.Str()
			case "tablet":
				p.Image.Tablet, err = d.Str()
			case "desktop":
				p.Image.Desktop, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
	case "active":
		p.Active, err = d.Bool()
	default:
		err = d.Skip()
	}
	return err
}

func decodeAmount(d *jx.Decoder, field string) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Zero, err
	}
	v, err := money.ParseAmount(field, s)
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsNegative() {
		return decimal.Zero, &money.InvalidAmountError{Field: field, Value: s, Reason: "negative"}
	}
	return v, nil
}
