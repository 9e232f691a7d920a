// Package ping provides the stash.Ping health RPC. A Ping answers with the
// serving state of the cache layer: whether it is backed by Redis or by the
// in-process store, and how many entries that store holds.
//
// The service is registered through a hand-written [grpc.ServiceDesc], so no
// protobuf code generation is needed; see codec.go for the wire format.
//
// Importing this package replaces grpc's registered "proto" codec for the
// whole process, for servers and clients alike. The replacement encodes
// PingRequest and PingResponse as JSON and hands every other
// protobuf-go (APIv2) message to the standard proto encoding. Legacy
// APIv1-only messages that do not implement proto.Message are rejected with
// an error, so a process that still uses them must not import ping.
package ping

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrStash/conn"
)

// FullMethod is the full gRPC method name of the Ping RPC.
const FullMethod = "/stash.Ping/Ping"

// PingRequest is the input for the Ping method.
type PingRequest struct {
	Message string `json:"message"`
}

// PingResponse is the output of the Ping method.
type PingResponse struct {
	Message        string `json:"message"`
	CacheMode      string `json:"cache_mode"`
	StoreEntries   int    `json:"store_entries"`
	ServerTimeUnix int64  `json:"server_time_unix"`
}

// Status is the serving state reported by a Ping.
type Status struct {
	Mode         conn.Mode
	StoreEntries int
}

// StatusFunc returns the current Status. It is called once per Ping.
type StatusFunc func() Status

// Handler is the interface that a Ping service implementation must satisfy.
type Handler interface {
	Ping(ctx context.Context, req *PingRequest) (*PingResponse, error)
}

// NewHandler returns a Handler that echoes the request message next to the
// status and the current server time.
func NewHandler(status StatusFunc) Handler { return handler{status: status} }

type handler struct {
	status StatusFunc
}

func (h handler) Ping(_ context.Context, req *PingRequest) (*PingResponse, error) {
	st := h.status()
	return &PingResponse{
		Message:        req.Message,
		CacheMode:      st.Mode.String(),
		StoreEntries:   st.StoreEntries,
		ServerTimeUnix: time.Now().Unix(),
	}, nil
}

// ServiceDesc is the grpc.ServiceDesc for the stash.Ping service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "stash.Ping",
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: pingHandler},
	},
	Metadata: "stash/ping.proto",
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(PingRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.Ping(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod}
	return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
		return h.Ping(ctx, r.(*PingRequest))
	})
}

// Register registers a Ping service implementation on s.
func Register(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}
