package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/product"
)

// ListProducts returns every active product.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range products {
			h.encodeProduct(e, &products[i], nil, nil)
		}
		e.ArrEnd()
	})
}

// GetProduct returns one product by id or slug. With ?length= it also
// reports the resolved unit price for that length.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	var length *int
	if raw := r.URL.Query().Get("length"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "length must be a positive integer")
			return
		}
		length = &v
	}

	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if !p.Active {
		fail(w, r, product.ErrNotFound)
		return
	}

	var resolved *money.Money
	if length != nil {
		price, err := product.ResolveUnitPrice(p, length)
		if err != nil {
			fail(w, r, err)
			return
		}
		resolved = &price
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(e, p, length, resolved)
	})
}
