package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/tresses/internal/domain/checkout"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/order"
)

// PlaceOrder turns a cart into an order and returns the provider redirect.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.bind(w, r, &req) {
		return
	}

	var display money.Currency
	if req.DisplayCurrency != "" {
		c, err := money.ParseCurrency(req.DisplayCurrency)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unsupported display_currency")
			return
		}
		display = c
	}

	a := req.ShippingAddress
	res, err := h.checkout.PlaceOrder(r.Context(), checkout.Request{
		CartID:        req.CartID,
		CustomerEmail: req.CustomerEmail,
		ShippingAddress: order.Address{
			Name:       a.Name,
			Line1:      a.Line1,
			Line2:      a.Line2,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
			Phone:      a.Phone,
		},
		CouponCode:      req.CouponCode,
		DisplayCurrency: display,
		Provider:        req.Provider,
		SuccessURL:      req.SuccessURL,
		CancelURL:       req.CancelURL,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		encodeOrder(e, res.Order)
		e.FieldStart("redirect_url")
		e.Str(res.RedirectURL)
		e.ObjEnd()
	})
}

// Webhook applies a signed payment notification. The raw body is passed on
// untouched because signatures cover the exact bytes.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}
	ev, err := h.checkout.HandleWebhook(r.Context(), chi.URLParam(r, "provider"), r.Header, body)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("received")
		e.Bool(true)
		e.FieldStart("event")
		e.Str(string(ev.Kind))
		e.ObjEnd()
	})
}
