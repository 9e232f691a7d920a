package contextx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// RequestIDHeader is the header (HTTP) and metadata key (gRPC) that carries
// a request ID in both directions.
const RequestIDHeader = "X-Request-Id"

// maxRequestIDLen bounds IDs accepted from clients.
const maxRequestIDLen = 64

// ValidRequestID reports whether an ID received from a client may be
// propagated: 1 to 64 characters of letters, digits, '-', '_' and '.'.
func ValidRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// NewRequestID generates a random hex-encoded request identifier.
func NewRequestID() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

// WithRequestID returns a derived context that carries the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID stored in ctx.
// It returns an empty string when no request ID is present.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
