// Package migrations содержит SQL-миграции основной базы и базы партнеров
// и применяет их через goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed core/*.sql partners/*.sql
var embedded embed.FS

// ErrUnsupportedDriver драйвер базы партнеров не поддерживается
var ErrUnsupportedDriver = errors.New("migrations: unsupported driver")

// UpCore применяет миграции основной базы PostgreSQL
func UpCore(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	// goose работает через database/sql, поэтому оборачиваем пул pgx
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.Errorw("Failed to close migration connection", "error", err)
		}
	}()
	return up(ctx, goose.DialectPostgres, db, "core", log)
}

// UpPartners применяет миграции базы партнеров. driver: pgx или sqlite.
func UpPartners(ctx context.Context, db *sql.DB, driver string, log *logger.Logger) error {
	dialect, err := DialectFor(driver)
	if err != nil {
		return err
	}
	return up(ctx, dialect, db, "partners", log)
}

// DialectFor возвращает диалект goose для имени драйвера database/sql
func DialectFor(driver string) (goose.Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return goose.DialectPostgres, nil
	case "sqlite", "sqlite3":
		return goose.DialectSQLite3, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
}

func up(ctx context.Context, dialect goose.Dialect, db *sql.DB, dir string, log *logger.Logger) error {
	fsys, err := fs.Sub(embedded, dir)
	if err != nil {
		return fmt.Errorf("migrations: open %s: %w", dir, err)
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("migrations: create provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrations: apply %s: %w", dir, err)
	}
	for _, r := range results {
		log.Infow("Applied migration", "set", dir, "version", r.Source.Version, "duration", r.Duration)
	}
	if len(results) == 0 {
		log.Debugw("Schema is up to date", "set", dir)
	}
	return nil
}
