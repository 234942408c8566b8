package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// APIKeyHeader carries back-office API keys. "Authorization: Bearer <key>"
// is accepted too.
const APIKeyHeader = "X-API-Key"

func apiKey(r *http.Request) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		return k
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// RequireScope admits requests whose API key grants scope.
func (h *Handler) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := h.auth.Authenticate(r.Context(), apiKey(r))
			if err != nil {
				fail(w, r, err)
				return
			}
			if !info.HasScope(scope) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			ctx := zctx.With(r.Context(), zap.String("api_key_id", info.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
