package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/cart"
	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/order"
	"github.com/xenking/tresses/internal/domain/product"
)

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

// Amounts are strings with two decimals so no float rounding reaches clients.
func encodeAmount(e *jx.Encoder, field string, d decimal.Decimal) {
	e.FieldStart(field)
	e.Str(d.StringFixed(2))
}

func encodeMoney(e *jx.Encoder, field string, m money.Money) {
	e.FieldStart(field)
	e.ObjStart()
	encodeAmount(e, "amount", m.Amount)
	e.FieldStart("currency")
	e.Str(m.Currency.String())
	e.ObjEnd()
}

func encodeTime(e *jx.Encoder, field string, t time.Time) {
	e.FieldStart(field)
	e.Str(t.UTC().Format(time.RFC3339))
}

func (h *Handler) imageURL(path string) string {
	if path == "" || h.cfg.ImageBaseURL == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimSuffix(h.cfg.ImageBaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// encodeProduct writes a catalog entry. resolved is set when the caller asked
// for the price of one length.
func (h *Handler) encodeProduct(e *jx.Encoder, p *product.Product, length *int, resolved *money.Money) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("slug")
	e.Str(p.Slug)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("category")
	e.Str(p.Category)
	encodeMoney(e, "price", money.New(p.BasePrice, p.Currency))
	if p.CompareAtPrice != nil {
		encodeMoney(e, "compare_at_price", money.New(*p.CompareAtPrice, p.Currency))
	}
	e.FieldStart("on_sale")
	e.Bool(p.Discounted())
	if p.Discounted() {
		encodeMoney(e, "savings", money.New(p.Savings(), p.Currency))
	}

	e.FieldStart("lengths")
	e.ArrStart()
	for _, l := range p.Lengths() {
		e.ObjStart()
		e.FieldStart("length")
		e.Int(l)
		encodeMoney(e, "price", money.New(p.LengthPrices[l], p.Currency))
		e.ObjEnd()
	}
	e.ArrEnd()

	if resolved != nil {
		if length != nil {
			e.FieldStart("selected_length")
			e.Int(*length)
		}
		encodeMoney(e, "unit_price", *resolved)
	}

	e.FieldStart("image")
	e.ObjStart()
	for _, f := range []struct{ key, path string }{
		{"thumbnail", p.Image.Thumbnail},
		{"mobile", p.Image.Mobile},
		{"tablet", p.Image.Tablet},
		{"desktop", p.Image.Desktop},
	} {
		e.FieldStart(f.key)
		e.Str(h.imageURL(f.path))
	}
	e.ObjEnd()
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, c *cart.Cart) error {
	subtotal, err := c.Subtotal()
	if err != nil {
		return err
	}
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("currency")
	e.Str(c.Currency.String())
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range c.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(it.ID)
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("product_name")
		e.Str(it.ProductName)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		if it.SelectedLength != nil {
			e.FieldStart("selected_length")
			e.Int(*it.SelectedLength)
		}
		encodeMoney(e, "unit_price", it.UnitPrice)
		encodeMoney(e, "line_total", it.LineTotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	encodeMoney(e, "subtotal", subtotal)
	encodeTime(e, "created_at", c.CreatedAt)
	encodeTime(e, "updated_at", c.UpdatedAt)
	e.ObjEnd()
	return nil
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("customer_email")
	e.Str(o.CustomerEmail)

	e.FieldStart("payment")
	e.ObjStart()
	e.FieldStart("provider")
	e.Str(o.Payment.Provider)
	e.FieldStart("reference")
	e.Str(o.Payment.Reference)
	e.FieldStart("status")
	e.Str(string(o.Payment.Status))
	if o.PaidAt != nil {
		encodeTime(e, "paid_at", *o.PaidAt)
	}
	e.ObjEnd()

	e.FieldStart("items")
	e.ArrStart()
	for _, l := range o.Snapshot.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(l.ProductID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		if l.SelectedLength != nil {
			e.FieldStart("selected_length")
			e.Int(*l.SelectedLength)
		}
		encodeMoney(e, "unit_price", l.UnitPrice)
		encodeMoney(e, "line_total", l.LineTotal())
		e.ObjEnd()
	}
	e.ArrEnd()

	if c := o.Snapshot.Coupon; c != nil {
		e.FieldStart("coupon")
		e.ObjStart()
		e.FieldStart("code")
		e.Str(c.Code)
		e.FieldStart("description")
		e.Str(c.Description)
		encodeMoney(e, "amount", c.Amount)
		e.ObjEnd()
	}

	t := o.Totals
	e.FieldStart("totals")
	e.ObjStart()
	encodeMoney(e, "subtotal", t.Subtotal)
	encodeMoney(e, "shipping", t.Shipping)
	encodeMoney(e, "tax", t.Tax)
	encodeMoney(e, "discount", t.Discount)
	encodeMoney(e, "total", t.Total)
	e.FieldStart("exchange_rate")
	e.Str(t.ExchangeRate.String())
	encodeMoney(e, "total_display", t.TotalDisplay)
	e.ObjEnd()

	a := o.ShippingAddress
	e.FieldStart("shipping_address")
	e.ObjStart()
	for _, f := range []struct{ key, v string }{
		{"name", a.Name}, {"line1", a.Line1}, {"line2", a.Line2}, {"city", a.City},
		{"state", a.State}, {"postal_code", a.PostalCode}, {"country", a.Country}, {"phone", a.Phone},
	} {
		if f.v == "" {
			continue
		}
		e.FieldStart(f.key)
		e.Str(f.v)
	}
	e.ObjEnd()

	encodeTime(e, "created_at", o.CreatedAt)
	encodeTime(e, "updated_at", o.UpdatedAt)
	e.ObjEnd()
}

func encodeRates(e *jx.Encoder, t *fx.Table, now time.Time, freshness time.Duration) {
	stale := make(map[money.Currency]bool)
	for _, w := range t.Stale(now, freshness) {
		stale[w.Currency] = true
	}

	e.ObjStart()
	e.FieldStart("base")
	e.Str(t.Base().String())
	encodeTime(e, "fetched_at", t.FetchedAt())
	e.FieldStart("rates")
	e.ArrStart()
	for _, r := range t.Rates() {
		e.ObjStart()
		e.FieldStart("currency")
		e.Str(r.CurrencyCode.String())
		e.FieldStart("rate")
		e.Str(r.RateFromBase.String())
		encodeTime(e, "updated_at", r.UpdatedAt)
		e.FieldStart("stale")
		e.Bool(stale[r.CurrencyCode])
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
