// Package httpmw holds the net/http middleware of the service: fixed-window
// rate limiting, request IDs and zap access logging. Every constructor
// returns a func(http.Handler) http.Handler so it plugs into chi's Use.
package httpmw

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Keksclan/goRawrStash/clientip"
	"github.com/Keksclan/goRawrStash/contextx"
	"github.com/Keksclan/goRawrStash/ratelimit"
)

// RateLimit counts every request against the limiter p picks for its path.
// Limited requests always carry the X-RateLimit-* headers; a denied request
// gets 429 with Retry-After and a JSON error body and never reaches next.
// ips may be nil, in which case RemoteAddr is the client. gate is an
// optional process-wide token bucket checked first. The matched policy group
// is stored with contextx.WithLimitGroup for next.
func RateLimit(p *ratelimit.Policies, ips *clientip.Resolver, gate *ratelimit.TokenBucket) func(http.Handler) http.Handler {
	if ips == nil {
		ips = &clientip.Resolver{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate != nil && !gate.Allow() {
				w.Header().Set(ratelimit.HeaderRetryAfter,
					strconv.Itoa(ratelimit.RetryAfterSeconds(gate.RetryAfter())))
				respondWithError(w, http.StatusTooManyRequests, "Server is busy")
				return
			}

			group, lim := p.Lookup(r.URL.Path)
			if group != "" {
				r = r.WithContext(contextx.WithLimitGroup(r.Context(), group))
			}
			if lim == nil {
				next.ServeHTTP(w, r)
				return
			}

			// Store errors fail open and are logged by the limiter.
			res, _ := lim.Allow(r.Context(), identify(r, ips))
			for k, v := range res.Headers() {
				w.Header().Set(k, v)
			}
			if !res.Allowed {
				respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identify picks the rate-limit identifier: the authenticated subject when
// present, the client address otherwise.
func identify(r *http.Request, ips *clientip.Resolver) string {
	if a, ok := contextx.ActorFromContext(r.Context()); ok {
		if key, ok := a.RateKey(); ok {
			return key
		}
	}
	if addr, ok := ips.FromHTTP(r); ok {
		return addr.String()
	}
	return "unknown"
}

type errorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{Error: true, Message: message, Code: code})
}
