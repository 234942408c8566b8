package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
)

// requestBody is a JSON object decoded field by field.
type requestBody interface {
	decodeField(d *jx.Decoder, key string) error
}

// bind decodes and validates the request body into body. On failure it
// writes a 400 response and returns false.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, body requestBody) bool {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return false
	}
	if err := jx.DecodeBytes(data).Obj(body.decodeField); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage reports the first failed rule using the JSON field name.
func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request"
	}
	fe := ve[0]
	field := jsonName(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be an email address"
	case "url":
		return field + " must be a URL"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

// jsonName turns a validator namespace such as "checkoutRequest.ShippingAddress.PostalCode"
// into "shipping_address.postal_code".
func jsonName(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, c := range s {
		if c >= 'A' && c <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			c += 'a' - 'A'
		}
		b.WriteRune(c)
	}
	return b.String()
}

func decodeOptionalInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type createCartRequest struct {
	Currency string `validate:"required,len=3"`
}

func (c *createCartRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "currency":
		c.Currency, err = d.Str()
	default:
		err = d.Skip()
	}
	return err
}

type addItemRequest struct {
	ProductID      string `validate:"required"`
	Quantity       int    `validate:"min=1"`
	SelectedLength *int   `validate:"omitempty,min=1"`
}

func (a *addItemRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "product_id":
		a.ProductID, err = d.Str()
	case "quantity":
		a.Quantity, err = d.Int()
	case "selected_length":
		a.SelectedLength, err = decodeOptionalInt(d)
	default:
		err = d.Skip()
	}
	return err
}

type updateItemRequest struct {
	Quantity *int `validate:"required,min=0"`
}

func (u *updateItemRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "quantity":
		u.Quantity, err = decodeOptionalInt(d)
	default:
		err = d.Skip()
	}
	return err
}

type addressRequest struct {
	Name       string `validate:"required"`
	Line1      string `validate:"required"`
	Line2      string
	City       string `validate:"required"`
	State      string
	PostalCode string
	Country    string `validate:"required,len=2"`
	Phone      string
}

func (a *addressRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "name":
		a.Name, err = d.Str()
	case "line1":
		a.Line1, err = d.Str()
	case "line2":
		a.Line2, err = d.Str()
	case "city":
		a.City, err = d.Str()
	case "state":
		a.State, err = d.Str()
	case "postal_code":
		a.PostalCode, err = d.Str()
	case "country":
		a.Country, err = d.Str()
	case "phone":
		a.Phone, err = d.Str()
	default:
		err = d.Skip()
	}
	return err
}

type checkoutRequest struct {
	CartID          string         `validate:"required"`
	CustomerEmail   string         `validate:"required,email"`
	ShippingAddress addressRequest `validate:"required"`
	CouponCode      string
	DisplayCurrency string `validate:"omitempty,len=3"`
	Provider        string `validate:"required"`
	SuccessURL      string `validate:"omitempty,url"`
	CancelURL       string `validate:"omitempty,url"`
}

func (c *checkoutRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "cart_id":
		c.CartID, err = d.Str()
	case "customer_email":
		c.CustomerEmail, err = d.Str()
	case "shipping_address":
		err = d.Obj(c.ShippingAddress.decodeField)
	case "coupon_code":
		c.CouponCode, err = d.Str()
	case "display_currency":
		c.DisplayCurrency, err = d.Str()
	case "provider":
		c.Provider, err = d.Str()
	case "success_url":
		c.SuccessURL, err = d.Str()
	case "cancel_url":
		c.CancelURL, err = d.Str()
	default:
		err = d.Skip()
	}
	return err
}

type statusRequest struct {
	Status string `validate:"required"`
}

func (s *statusRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "status":
		s.Status, err = d.Str()
	default:
		err = d.Skip()
	}
	return err
}
