package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dhoini/ekaty/internal/app"
	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/kafka"
	"github.com/Dhoini/ekaty/internal/metrics"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const systemMetricsInterval = 30 * time.Second

// Фоновый процесс: сохраняет события аналитики из Kafka и периодически
// синхронизирует каталог с Google Places
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.New(logger.INFO).Fatalw("Failed to load configuration", "error", err)
	}
	log := app.NewLogger(cfg).Named("worker")
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatalw("Invalid configuration", "error", err)
	}

	application, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatalw("Failed to initialize application", "error", err)
	}
	defer application.Close()

	g, gctx := errgroup.WithContext(ctx)

	systemMetrics := metrics.NewSystemMetrics(application.Registry, application.PoolStats(), log)
	g.Go(func() error {
		systemMetrics.Run(gctx, systemMetricsInterval)
		return nil
	})

	if application.Kafka.Enabled() {
		if err := kafka.EnsureTopics(ctx, application.Kafka, log); err != nil {
			log.Warnw("Failed to ensure Kafka topics", "error", err)
		}
		consumer, err := kafka.NewAnalyticsConsumer(application.Kafka, application.Services.Analytics.Sink, log.Named("kafka"))
		if err != nil {
			log.Fatalw("Failed to create analytics consumer", "error", err)
		}
		defer func() {
			if err := consumer.Close(); err != nil {
				log.Errorw("Failed to close analytics consumer", "error", err)
			}
		}()
		g.Go(func() error { return consumer.Run(gctx) })
	} else {
		log.Warnw("Kafka brokers are not configured, analytics consumer is disabled")
	}

	if cfg.Places.SyncInterval > 0 && application.Places != nil {
		g.Go(func() error {
			syncPlaces(gctx, application.Services.Import, cfg.Places.SyncInterval, log)
			return nil
		})
	} else {
		log.Infow("Places sync is disabled")
	}

	log.Infow("Worker started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("Worker stopped with error", "error", err)
		return
	}
	log.Infow("Worker stopped")
}

// syncPlaces обновляет каталог из Places с интервалом до отмены ctx
func syncPlaces(ctx context.Context, svc service.ImportService, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := svc.SyncPlaces(ctx)
			if err != nil {
				if errors.Is(err, domain.ErrNotConfigured) {
					return
				}
				log.Errorw("Places sync failed", "error", err)
				continue
			}
			log.Infow("Places sync completed", "updated", report.Updated, "failed", report.Failed)
		}
	}
}
