package core

import (
	"cmp"
	"slices"

	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrStash/interceptors"
)

// middleware represents a single interceptor pair (unary + stream) with a
// deterministic execution order. Lower Order values run first.
type middleware struct {
	Unary  grpc.UnaryServerInterceptor
	Stream grpc.StreamServerInterceptor
	Order  int
}

// MiddlewareBuilder collects middleware entries and produces sorted interceptor
// slices ready for chaining. The zero value is ready to use.
type MiddlewareBuilder struct {
	entries []middleware
}

// Add registers a middleware entry with the given order.
// Either interceptor may be nil if only one direction is needed.
func (b *MiddlewareBuilder) Add(order int, unary grpc.UnaryServerInterceptor, stream grpc.StreamServerInterceptor) {
	b.entries = append(b.entries, middleware{
		Unary:  unary,
		Stream: stream,
		Order:  order,
	})
}

// Clone returns an independent copy, so a shared base set of entries can be
// extended per server.
func (b *MiddlewareBuilder) Clone() MiddlewareBuilder {
	return MiddlewareBuilder{entries: slices.Clone(b.entries)}
}

// Len returns the number of registered entries.
func (b *MiddlewareBuilder) Len() int { return len(b.entries) }

// Build returns the unary and stream interceptors sorted by Order. Entries
// with equal Order keep their registration order. The builder itself is
// left untouched.
func (b *MiddlewareBuilder) Build() ([]grpc.UnaryServerInterceptor, []grpc.StreamServerInterceptor) {
	sorted := slices.Clone(b.entries)
	slices.SortStableFunc(sorted, func(a, c middleware) int {
		return cmp.Compare(a.Order, c.Order)
	})

	var unary []grpc.UnaryServerInterceptor
	var stream []grpc.StreamServerInterceptor

	for _, m := range sorted {
		if m.Unary != nil {
			unary = append(unary, m.Unary)
		}
		if m.Stream != nil {
			stream = append(stream, m.Stream)
		}
	}

	return unary, stream
}

// ServerOptions chains the sorted interceptors into grpc.ServerOption
// values for grpc.NewServer. Directions with no interceptors add no option.
func (b *MiddlewareBuilder) ServerOptions() []grpc.ServerOption {
	unary, stream := b.Build()

	var opts []grpc.ServerOption
	if u := interceptors.ChainUnary(unary...); u != nil {
		opts = append(opts, grpc.UnaryInterceptor(u))
	}
	if s := interceptors.ChainStream(stream...); s != nil {
		opts = append(opts, grpc.StreamInterceptor(s))
	}
	return opts
}
