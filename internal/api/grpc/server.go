package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/interceptors"
	"github.com/Dhoini/ekaty/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName имя сервиса в протоколе health-check
const ServiceName = "ekaty.API"

// Server gRPC сервер служебного API: health-check и reflection
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	addr       string
	log        *logger.Logger
}

// NewServer создает новый gRPC сервер
func NewServer(cfg config.GRPCConfig, auth *interceptors.AuthInterceptor, log *logger.Logger) *Server {
	kaParams := keepalive.ServerParameters{
		MaxConnectionIdle:     5 * time.Minute,
		MaxConnectionAge:      time.Hour,
		MaxConnectionAgeGrace: 5 * time.Minute,
		Time:                  2 * time.Minute,
		Timeout:               20 * time.Second,
	}
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(kaParams),
		grpc.ChainUnaryInterceptor(interceptors.Logging(log), auth.Unary()),
		grpc.ChainStreamInterceptor(auth.Stream()),
	}
	grpcServer := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)

	return &Server{
		grpcServer: grpcServer,
		health:     hs,
		addr:       ":" + cfg.Port,
		log:        log,
	}
}

// SetServing переключает статус health-check для всего сервера и ServiceName
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// WatchHealth периодически выполняет check и обновляет статус, пока не отменен ctx
func (s *Server) WatchHealth(ctx context.Context, interval time.Duration, check func(context.Context) error) {
	probe := func() {
		cctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		err := check(cctx)
		if err != nil {
			s.log.Warnw("Dependency check failed, gRPC health is NOT_SERVING", "error", err)
		}
		s.SetServing(err == nil)
	}
	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// Start запускает gRPC сервер на порту из конфигурации
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(listener)
}

// Serve обслуживает соединения на готовом listener
func (s *Server) Serve(listener net.Listener) error {
	s.log.Infow("Starting gRPC server", "addr", listener.Addr().String())
	if err := s.grpcServer.Serve(listener); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop останавливает gRPC сервер
func (s *Server) Stop() {
	s.log.Infow("Stopping gRPC server")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
