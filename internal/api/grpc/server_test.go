package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/interceptors"
	"github.com/Dhoini/ekaty/internal/middleware"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startTestServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	log := logger.NewNop()
	tokens := middleware.NewTokenManager(config.AuthConfig{JWTSecret: "grpc-test", TokenTTL: time.Hour})
	srv := NewServer(config.GRPCConfig{Port: "0"}, interceptors.NewAuthInterceptor(log, tokens), log)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	opts := DefaultClientOptions()
	opts.Address = "passthrough:///bufnet"
	opts.KeepAlive = false
	opts.DialOptions = []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	}
	client, err := NewClient(opts, log)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return srv, client
}

func TestServer_HealthFollowsChecks(t *testing.T) {
	srv, client := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv.SetServing(true)
	st, err := client.Probe(ctx, ServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, st)

	watchCtx, stopWatch := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		srv.WatchHealth(watchCtx, time.Hour, func(context.Context) error { return assert.AnError })
		close(done)
	}()
	assert.Eventually(t, func() bool {
		st, err := client.Probe(ctx, "")
		return err == nil && st == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)
	stopWatch()
	<-done
}
