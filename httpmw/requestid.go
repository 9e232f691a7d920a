package httpmw

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Keksclan/goRawrStash/contextx"
)

// RequestID makes sure every request has an ID. A well-formed incoming
// X-Request-Id is kept, otherwise one is generated. The ID is echoed in the response and
// stored both in contextx and in chi's request ID slot, so chi's own
// middleware sees the same value.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(contextx.RequestIDHeader)
		if !contextx.ValidRequestID(id) {
			id = contextx.NewRequestID()
		}
		ctx := contextx.WithRequestID(r.Context(), id)
		ctx = context.WithValue(ctx, middleware.RequestIDKey, id)
		w.Header().Set(contextx.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
