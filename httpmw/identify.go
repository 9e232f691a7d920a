package httpmw

import (
	"net/http"

	"github.com/Keksclan/goRawrStash/auth"
	"github.com/Keksclan/goRawrStash/contextx"
)

// Identify calls fn for every request and stores the resulting actor in the
// request context, where RateLimit picks it up. A hook error answers 401.
func Identify(fn auth.HTTPFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok, err := fn(r)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "Unauthenticated")
				return
			}
			if ok {
				r = r.WithContext(contextx.WithActor(r.Context(), a))
			}
			next.ServeHTTP(w, r)
		})
	}
}
