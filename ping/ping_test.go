package ping_test

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/Keksclan/goRawrStash/conn"
	"github.com/Keksclan/goRawrStash/ping"
)

const bufSize = 1024 * 1024

func fixed(mode conn.Mode, entries int) ping.StatusFunc {
	return func() ping.Status { return ping.Status{Mode: mode, StoreEntries: entries} }
}

func startServer(t *testing.T, mode conn.Mode) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	s := grpc.NewServer()
	ping.Register(s, ping.NewHandler(fixed(mode, 3)))
	t.Cleanup(func() { s.Stop() })
	go func() { _ = s.Serve(lis) }()
	return lis
}

func dial(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	cc, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { cc.Close() })
	return cc
}

func TestRegisterService(t *testing.T) {
	s := grpc.NewServer()
	ping.Register(s, ping.NewHandler(fixed(conn.Connected, 0)))
	si, ok := s.GetServiceInfo()["stash.Ping"]
	if !ok {
		t.Fatal("stash.Ping service not registered")
	}
	if len(si.Methods) != 1 || si.Methods[0].Name != "Ping" {
		t.Fatalf("unexpected methods %v", si.Methods)
	}
}

func TestPingViaBufconn(t *testing.T) {
	cc := dial(t, startServer(t, conn.Degraded))

	req := &ping.PingRequest{Message: "hello"}
	resp := new(ping.PingResponse)
	if err := cc.Invoke(t.Context(), ping.FullMethod, req, resp); err != nil {
		t.Fatalf("Ping RPC failed: %v", err)
	}
	if resp.Message != "hello" {
		t.Fatalf("got message %q, want %q", resp.Message, "hello")
	}
	if resp.CacheMode != "degraded" || resp.StoreEntries != 3 {
		t.Fatalf("got cache mode %q with %d entries, want degraded with 3", resp.CacheMode, resp.StoreEntries)
	}
	if diff := time.Now().Unix() - resp.ServerTimeUnix; diff < 0 || diff > 5 {
		t.Fatalf("ServerTimeUnix is not recent: %d (diff %d)", resp.ServerTimeUnix, diff)
	}
}

func TestPingEmptyMessage(t *testing.T) {
	cc := dial(t, startServer(t, conn.Connected))

	resp := new(ping.PingResponse)
	if err := cc.Invoke(t.Context(), ping.FullMethod, &ping.PingRequest{}, resp); err != nil {
		t.Fatalf("Ping RPC failed: %v", err)
	}
	if resp.Message != "" || resp.CacheMode != "connected" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCodecDelegatesProtoMessages(t *testing.T) {
	codec := encoding.GetCodec("proto")
	if codec == nil {
		t.Fatal("no proto codec registered")
	}
	b, err := codec.Marshal(wrapperspb.String("x"))
	if err != nil {
		t.Fatalf("marshal proto: %v", err)
	}
	var out wrapperspb.StringValue
	if err := codec.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal proto: %v", err)
	}
	if out.GetValue() != "x" {
		t.Fatalf("got %q, want %q", out.GetValue(), "x")
	}
	if _, err := codec.Marshal(struct{}{}); err == nil {
		t.Fatal("expected an error for an unsupported type")
	}
}

func TestImportReplacesGlobalProtoCodec(t *testing.T) {
	codec := encoding.GetCodec("proto")
	b, err := codec.Marshal(&ping.PingRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("marshal ping: %v", err)
	}
	if string(b) != `{"message":"hi"}` {
		t.Fatalf("got %s, want the JSON encoding", b)
	}
	var out ping.PingRequest
	if err := codec.Unmarshal(b, &out); err != nil || out.Message != "hi" {
		t.Fatalf("unmarshal ping: %+v err=%v", out, err)
	}
}
