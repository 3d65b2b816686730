package grpcx

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func TestHealthFollowsReadiness(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv, hs := NewHealthServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	var healthy atomic.Bool
	check := runtime.ReadyCheck{Name: "store", Check: func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("unavailable")
	}}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go WatchReadiness(ctx, nil, hs, "booking", 20*time.Millisecond, check)

	conn, err := Dial(context.Background(), lis.Addr().String(), DialOptions{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	waitFor := func(want healthpb.HealthCheckResponse_ServingStatus) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "booking"})
			if err == nil && resp.GetStatus() == want {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("health never reached %v", want)
	}

	waitFor(healthpb.HealthCheckResponse_NOT_SERVING)
	healthy.Store(true)
	waitFor(healthpb.HealthCheckResponse_SERVING)
}

func TestRequestIDInterceptors(t *testing.T) {
	var got string
	handler := func(ctx context.Context, _ any) (any, error) {
		got = RequestIDFromContext(ctx)
		return nil, nil
	}

	srvIntercept := UnaryServerRequestIDInterceptor()
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "req-42"))
	if _, err := srvIntercept(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/x"}, handler); err != nil {
		t.Fatalf("server interceptor: %v", err)
	}
	if got != "req-42" {
		t.Fatalf("expected incoming id, got %q", got)
	}

	var outgoing string
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
			outgoing = vals[0]
		}
		return nil
	}
	clientCtx := WithRequestID(context.Background(), "req-7")
	if err := UnaryClientRequestIDInterceptor()(clientCtx, "/x", nil, nil, nil, invoker); err != nil {
		t.Fatalf("client interceptor: %v", err)
	}
	if outgoing != "req-7" {
		t.Fatalf("expected propagated id, got %q", outgoing)
	}
}
