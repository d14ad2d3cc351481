package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcapi "github.com/Dhoini/ekaty/internal/api/grpc"
	"github.com/Dhoini/ekaty/internal/api/rest"
	"github.com/Dhoini/ekaty/internal/app"
	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/interceptors"
	"github.com/Dhoini/ekaty/internal/metrics"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	systemMetricsInterval = 15 * time.Second
	healthWatchInterval   = 10 * time.Second
)

func main() {
	// Контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.New(logger.INFO).Fatalw("Failed to load configuration", "error", err)
	}
	log := app.NewLogger(cfg)
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatalw("Invalid configuration", "error", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Infow("eKaty API starting up", "env", cfg.App.Env)

	application, err := app.New(ctx, cfg, log, app.Options{Migrate: !cfg.IsProduction(), Producer: true})
	if err != nil {
		log.Fatalw("Failed to initialize application", "error", err)
	}
	defer application.Close()

	// Системные метрики
	systemMetrics := metrics.NewSystemMetrics(application.Registry, application.PoolStats(), log)
	go systemMetrics.Run(ctx, systemMetricsInterval)

	// HTTP
	router := rest.SetupRouter(application.RouterDeps())
	httpServer := rest.NewServer(router, cfg.Server, log)
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Errorw("HTTP server error", "error", err)
			stop()
		}
	}()

	// gRPC: проверка здоровья и служебные методы для администраторов
	authInterceptor := interceptors.NewAuthInterceptor(log, application.Tokens)
	grpcServer := grpcapi.NewServer(cfg.GRPC, authInterceptor, log)
	go grpcServer.WatchHealth(ctx, healthWatchInterval, application.Ping)
	go func() {
		if err := grpcServer.Start(); err != nil {
			log.Errorw("gRPC server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infow("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	grpcServer.SetServing(false)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	} else {
		log.Infow("HTTP server gracefully stopped")
	}
	grpcServer.Stop()

	log.Infow("Cleanup finished")
}
