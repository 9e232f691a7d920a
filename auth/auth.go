// Package auth defines the identity hooks that attach an authenticated
// [contextx.Actor] to a request. The rate limiter keys authenticated callers
// by actor subject and everyone else by client address, so an identity hook
// is what lets a logged-in user keep their own window behind a shared NAT.
//
// The library does NOT parse tokens; that is the responsibility of the
// hook implementation.
package auth

import (
	"context"
	"net/http"

	"google.golang.org/grpc/metadata"

	"github.com/Keksclan/goRawrStash/contextx"
)

// Func identifies the caller of a gRPC request from its full method name and
// incoming metadata. ok=false leaves the request anonymous; a non-nil error
// rejects it.
type Func func(ctx context.Context, fullMethod string, md metadata.MD) (a contextx.Actor, ok bool, err error)

// HTTPFunc identifies the caller of an HTTP request. Results mean the same
// as for Func.
type HTTPFunc func(r *http.Request) (a contextx.Actor, ok bool, err error)
