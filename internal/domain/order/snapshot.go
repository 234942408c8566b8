package order

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/tresses/internal/domain/money"
)

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// Snapshot freezes what was bought, at which price, when the order was placed.
type Snapshot struct {
	Version int
	Lines   []Line
	Coupon  *CouponSnapshot
}

// Line is one purchased product in the snapshot.
type Line struct {
	ProductID      string
	Name           string
	Quantity       int
	SelectedLength *int
	UnitPrice      money.Money
}

// LineTotal returns UnitPrice x Quantity.
func (l Line) LineTotal() money.Money {
	return l.UnitPrice.Mul(l.Quantity)
}

// CouponSnapshot records the coupon applied to the order.
type CouponSnapshot struct {
	Code        string
	Description string
	Amount      money.Money
}

// EncodeSnapshot serialises s as JSON for storage.
func EncodeSnapshot(s Snapshot) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("version")
	e.Int(s.Version)
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range s.Lines {
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
		e.ObjEnd()
	}
	e.ArrEnd()
	if c := s.Coupon; c != nil {
		e.FieldStart("coupon")
		e.ObjStart()
		e.FieldStart("code")
		e.Str(c.Code)
		e.FieldStart("description")
		e.Str(c.Description)
		encodeMoney(e, "amount", c.Amount)
		e.ObjEnd()
	}
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

func encodeMoney(e *jx.Encoder, field string, m money.Money) {
	e.FieldStart(field)
	e.ObjStart()
	e.FieldStart("amount")
	e.Str(m.Amount.String())
	e.FieldStart("currency")
	e.Str(m.Currency.String())
	e.ObjEnd()
}

// DecodeSnapshot parses a stored snapshot. Unknown versions, missing required
// fields and malformed amounts are errors.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "version":
			v, err := d.Int()
			s.Version = v
			return err
		case "lines":
			return d.Arr(func(d *jx.Decoder) error {
				l, err := decodeLine(d)
				if err != nil {
					return err
				}
				s.Lines = append(s.Lines, l)
				return nil
			})
		case "coupon":
			if d.Next() == jx.Null {
				return d.Null()
			}
			c, err := decodeCoupon(d)
			if err != nil {
				return err
			}
			s.Coupon = &c
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "decode order snapshot")
	}
	if s.Version != SnapshotVersion {
		return Snapshot{}, errors.Errorf("unsupported order snapshot version %d", s.Version)
	}
	return s, nil
}

func decodeLine(d *jx.Decoder) (Line, error) {
	var (
		l          Line
		hasProduct bool
		hasPrice   bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			l.ProductID, err = d.Str()
			hasProduct = true
		case "name":
			l.Name, err = d.Str()
		case "quantity":
			l.Quantity, err = d.Int()
		case "selected_length":
			var v int
			v, err = d.Int()
			l.SelectedLength = &v
		case "unit_price":
			l.UnitPrice, err = decodeMoney(d, "unit_price")
			hasPrice = true
		default:
			err = d.Skip()
		}
		return err
	})
	switch {
	case err != nil:
		return Line{}, err
	case !hasProduct:
		return Line{}, errors.New("line: product_id is required")
	case !hasPrice:
		return Line{}, errors.Errorf("line %s: unit_price is required", l.ProductID)
	case l.Quantity < 1:
		return Line{}, errors.Errorf("line %s: quantity must be at least 1", l.ProductID)
	}
	return l, nil
}

func decodeCoupon(d *jx.Decoder) (CouponSnapshot, error) {
	var c CouponSnapshot
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			c.Code, err = d.Str()
		case "description":
			c.Description, err = d.Str()
		case "amount":
			c.Amount, err = decodeMoney(d, "coupon.amount")
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && c.Code == "" {
		err = errors.New("coupon: code is required")
	}
	return c, err
}

func decodeMoney(d *jx.Decoder, field string) (money.Money, error) {
	var amount, currency string
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "amount":
			amount, err = d.Str()
		case "currency":
			currency, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return money.Money{}, err
	}
	v, err := money.ParseAmount(field, amount)
	if err != nil {
		return money.Money{}, err
	}
	c, err := money.ParseCurrency(currency)
	if err != nil {
		return money.Money{}, err
	}
	return money.New(v, c), nil
}
