// Package contextx carries per-request values through a context.Context:
// the identified caller, the request ID and the rate-limit group a request
// was counted against.
package contextx

import "context"

type contextKey int

const (
	actorKey contextKey = iota
	requestIDKey
	limitGroupKey
)

// Actor is the identified caller of a request, set by an identity hook.
type Actor struct {
	Subject string
	UserID  int64
	Scopes  []string
}

// RateKey returns the rate-limit identifier for the actor. ok is false for
// an actor without a subject, which is then limited by client address.
func (a Actor) RateKey() (key string, ok bool) {
	if a.Subject == "" {
		return "", false
	}
	return "actor:" + a.Subject, true
}

// WithActor returns a derived context that carries a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext extracts the Actor stored in ctx.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

// WithLimitGroup records the policy group whose limiter counted the request.
func WithLimitGroup(ctx context.Context, group string) context.Context {
	return context.WithValue(ctx, limitGroupKey, group)
}

// LimitGroup returns the group set by WithLimitGroup, or "".
func LimitGroup(ctx context.Context) string {
	g, _ := ctx.Value(limitGroupKey).(string)
	return g
}
