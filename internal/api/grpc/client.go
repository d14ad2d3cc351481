package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/Dhoini/ekaty/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// Client представляет gRPC клиент
type Client struct {
	conn *grpc.ClientConn
	log  *logger.Logger
}

// ClientOptions настройки для gRPC клиента
type ClientOptions struct {
	Address          string
	UseTLS           bool
	KeepAlive        bool
	KeepAliveTime    time.Duration
	KeepAliveTimeout time.Duration
	// DialOptions дополняют опции по умолчанию, например для bufconn в тестах
	DialOptions []grpc.DialOption
}

// DefaultClientOptions возвращает настройки по умолчанию
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		Address:          "localhost:50051",
		KeepAlive:        true,
		KeepAliveTime:    time.Minute,
		KeepAliveTimeout: 20 * time.Second,
	}
}

// NewClient создает новый gRPC клиент. Соединение устанавливается лениво при первом вызове.
func NewClient(opts *ClientOptions, log *logger.Logger) (*Client, error) {
	var dialOpts []grpc.DialOption
	if opts.UseTLS {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if opts.KeepAlive {
		dialOpts = append(dialOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                opts.KeepAliveTime,
			Timeout:             opts.KeepAliveTimeout,
			PermitWithoutStream: true,
		}))
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(opts.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", opts.Address, err)
	}
	log.Debugw("gRPC client created", "address", opts.Address)
	return &Client{conn: conn, log: log}, nil
}

// Probe запрашивает статус health-check сервиса; пустое имя означает сервер целиком
func (c *Client) Probe(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus(), nil
}

// Close закрывает соединение с gRPC сервером
func (c *Client) Close() error {
	if c.conn != nil {
		c.log.Debugw("Closing gRPC client connection")
		return c.conn.Close()
	}
	return nil
}

// Conn возвращает gRPC соединение
func (c *Client) Conn() *grpc.ClientConn {
	return c.conn
}
