package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// ListRates returns the active rate table with a stale flag per currency.
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	table, err := h.rates.Load(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	now := h.now()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeRates(e, table, now, h.cfg.RateFreshness)
	})
}
