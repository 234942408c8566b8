package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/tresses/internal/domain/cart"
	"github.com/xenking/tresses/internal/domain/money"
)

func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if !h.bind(w, r, &req) {
		return
	}
	currency, err := money.ParseCurrency(req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported currency")
		return
	}
	c, err := h.carts.Create(r.Context(), currency)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeCart(w, r, http.StatusCreated, c)
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), chi.URLParam(r, "cartId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeCart(w, r, http.StatusOK, c)
}

// AddCartItem adds a product at its resolved price; repeated adds of the same
// product and length merge into one line.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !h.bind(w, r, &req) {
		return
	}
	c, err := h.carts.AddItem(r.Context(), chi.URLParam(r, "cartId"), req.ProductID, req.Quantity, req.SelectedLength)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeCart(w, r, http.StatusOK, c)
}

// UpdateCartItem sets a line's quantity; zero removes the line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if !h.bind(w, r, &req) {
		return
	}
	c, err := h.carts.UpdateQuantity(r.Context(), chi.URLParam(r, "cartId"), chi.URLParam(r, "itemId"), *req.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeCart(w, r, http.StatusOK, c)
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), chi.URLParam(r, "cartId"), chi.URLParam(r, "itemId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeCart(w, r, http.StatusOK, c)
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, status int, c *cart.Cart) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	if err := encodeCart(e, c); err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
