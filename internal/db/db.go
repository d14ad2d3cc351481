package db

import (
	"context"
	"fmt"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/migrations"
	"github.com/Dhoini/ekaty/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DBClient клиент базы партнеров (лиды, кампании, тарифы).
// Работает с PostgreSQL через pgx или с локальным файлом SQLite.
type DBClient struct {
	db     *sqlx.DB
	driver string
	log    *zap.Logger
}

// NewDBClient подключается к базе партнеров; migrate применяет миграции
func NewDBClient(ctx context.Context, cfg config.PartnersConfig, log *logger.Logger, migrate bool) (*DBClient, error) {
	zl := log.Zap().Named("partners-db")

	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	db, err := sqlx.ConnectContext(ctx, driver, cfg.DSN)
	if err != nil {
		zl.Error("Failed to connect to database", zap.String("driver", driver), zap.Error(err))
		return nil, fmt.Errorf("failed to connect to partners database: %w", err)
	}
	if driver == "sqlite" {
		// SQLite не допускает параллельной записи из нескольких соединений
		db.SetMaxOpenConns(1)
	}

	if migrate {
		if err := migrations.UpPartners(ctx, db.DB, driver, log); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	zl.Info("Connected to partners database", zap.String("driver", driver))
	return &DBClient{db: db, driver: driver, log: zl}, nil
}

// DB возвращает подключение sqlx
func (dc *DBClient) DB() *sqlx.DB {
	return dc.db
}

// Close закрывает соединение с базой данных.
func (dc *DBClient) Close() error {
	err := dc.db.Close()
	if err != nil {
		dc.log.Error("Failed to close database connection", zap.Error(err))
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}
