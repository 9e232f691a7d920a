package core

import (
	"context"
	"slices"
	"testing"

	"google.golang.org/grpc"
)

// run executes unary interceptors in slice order around a handler.
func run(t *testing.T, unary []grpc.UnaryServerInterceptor, log *[]string) {
	t.Helper()
	handler := func(_ context.Context, req any) (any, error) {
		*log = append(*log, "handler")
		return req, nil
	}

	curr := handler
	for i := len(unary) - 1; i >= 0; i-- {
		next := curr
		ic := unary[i]
		curr = func(ctx context.Context, req any) (any, error) {
			return ic(ctx, req, &grpc.UnaryServerInfo{}, next)
		}
	}
	if _, err := curr(t.Context(), "req"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func tagger(log *[]string) func(string) grpc.UnaryServerInterceptor {
	return func(tag string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			*log = append(*log, tag)
			return handler(ctx, req)
		}
	}
}

func TestMiddlewareOrderDeterminesExecution(t *testing.T) {
	var log []string
	mk := tagger(&log)

	var b MiddlewareBuilder
	// Register in reverse order; Order values should sort them correctly.
	b.Add(300, mk("C"), nil)
	b.Add(100, mk("A"), nil)
	b.Add(200, mk("B"), nil)

	unary, stream := b.Build()
	if len(stream) != 0 {
		t.Fatalf("expected no stream interceptors, got %d", len(stream))
	}
	run(t, unary, &log)

	want := []string{"A", "B", "C", "handler"}
	if !slices.Equal(log, want) {
		t.Fatalf("got %v, want %v", log, want)
	}
}

func TestMiddlewareOrderStableForSameOrder(t *testing.T) {
	var log []string
	mk := tagger(&log)

	var b MiddlewareBuilder
	b.Add(100, mk("first"), nil)
	b.Add(100, mk("second"), nil)
	b.Add(100, mk("third"), nil)

	unary, _ := b.Build()
	run(t, unary, &log)

	want := []string{"first", "second", "third", "handler"}
	if !slices.Equal(log, want) {
		t.Fatalf("got %v, want %v", log, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	var log []string
	mk := tagger(&log)

	var base MiddlewareBuilder
	base.Add(1000, mk("user"), nil)

	a := base.Clone()
	a.Add(100, mk("recovery"), nil)
	b := base.Clone()
	b.Add(100, mk("recovery"), nil)

	if base.Len() != 1 || a.Len() != 2 || b.Len() != 2 {
		t.Fatalf("got lens base=%d a=%d b=%d", base.Len(), a.Len(), b.Len())
	}

	unary, _ := a.Build()
	run(t, unary, &log)
	want := []string{"recovery", "user", "handler"}
	if !slices.Equal(log, want) {
		t.Fatalf("got %v, want %v", log, want)
	}
}

func TestServerOptions(t *testing.T) {
	var empty MiddlewareBuilder
	if opts := empty.ServerOptions(); len(opts) != 0 {
		t.Fatalf("expected no options, got %d", len(opts))
	}

	var log []string
	var b MiddlewareBuilder
	b.Add(10, tagger(&log)("x"), nil)
	if opts := b.ServerOptions(); len(opts) != 1 {
		t.Fatalf("expected only the unary option, got %d", len(opts))
	}
}
