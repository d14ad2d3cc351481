package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnalyticsRepository реализация хранилища аналитики через PostgreSQL
type AnalyticsRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewAnalyticsRepository создает репозиторий аналитики
func NewAnalyticsRepository(db *pgxpool.Pool, log *logger.Logger) *AnalyticsRepository {
	return &AnalyticsRepository{db: db, log: log}
}

var _ repository.AnalyticsRepository = (*AnalyticsRepository)(nil)

// InsertEvents записывает пачку событий через COPY
func (r *AnalyticsRepository) InsertEvents(ctx context.Context, events []domain.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(events))
	for i := range events {
		e := &events[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		props := e.Properties
		if props == nil {
			props = map[string]string{}
		}
		rows = append(rows, []any{e.ID, e.Name, e.UserID, e.SessionID, e.RestaurantID, props, e.CreatedAt})
	}

	n, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"analytics_events"},
		[]string{"id", "name", "user_id", "session_id", "restaurant_id", "properties", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return mapError(err, "insert analytics events")
	}
	r.log.Debugw("Analytics events stored", "count", n)
	return nil
}

// ListEvents возвращает события по фильтру в хронологическом порядке
func (r *AnalyticsRepository) ListEvents(ctx context.Context, f domain.AnalyticsFilter) ([]domain.AnalyticsEvent, error) {
	w := &whereBuilder{}
	w.add("created_at >= ?", f.From)
	w.add("created_at < ?", f.To)
	if f.Name != "" {
		w.add("name = ?", f.Name)
	}
	if f.RestaurantID != nil {
		w.add("restaurant_id = ?", *f.RestaurantID)
	}
	args := append(w.args, limitOrAll(f.Limit))
	query := fmt.Sprintf(`
		SELECT id, name, user_id, session_id, restaurant_id, properties, created_at
		FROM analytics_events%s ORDER BY created_at ASC LIMIT $%d`, w.sql(), len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list analytics events")
	}
	defer rows.Close()

	var out []domain.AnalyticsEvent
	for rows.Next() {
		var e domain.AnalyticsEvent
		if err := rows.Scan(&e.ID, &e.Name, &e.UserID, &e.SessionID, &e.RestaurantID, &e.Properties, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analytics event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByName количество событий по именам за период
func (r *AnalyticsRepository) CountByName(ctx context.Context, from, to time.Time) ([]domain.NameCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT name, count(*) FROM analytics_events
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY name ORDER BY count(*) DESC, name ASC`, from, to)
	if err != nil {
		return nil, mapError(err, "count events by name")
	}
	defer rows.Close()

	var out []domain.NameCount
	for rows.Next() {
		var nc domain.NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan name count: %w", err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

// DailyCounts количество событий по дням (UTC)
func (r *AnalyticsRepository) DailyCounts(ctx context.Context, from, to time.Time) ([]domain.DailyCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, count(*)
		FROM analytics_events
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY day ORDER BY day ASC`, from, to)
	if err != nil {
		return nil, mapError(err, "count events by day")
	}
	defer rows.Close()

	var out []domain.DailyCount
	for rows.Next() {
		var dc domain.DailyCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		dc.Day = dc.Day.UTC()
		out = append(out, dc)
	}
	return out, rows.Err()
}

// TopRestaurants рестораны с наибольшим числом событий eventName
func (r *AnalyticsRepository) TopRestaurants(ctx context.Context, eventName string, from, to time.Time, limit int) ([]domain.RestaurantCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT e.restaurant_id, COALESCE(r.name, ''), count(*) AS n
		FROM analytics_events e LEFT JOIN restaurants r ON r.id = e.restaurant_id
		WHERE e.name = $1 AND e.restaurant_id IS NOT NULL AND e.created_at >= $2 AND e.created_at < $3
		GROUP BY e.restaurant_id, r.name
		ORDER BY n DESC, r.name ASC
		LIMIT $4`, eventName, from, to, limitOrAll(limit))
	if err != nil {
		return nil, mapError(err, "top restaurants")
	}
	defer rows.Close()

	var out []domain.RestaurantCount
	for rows.Next() {
		var rc domain.RestaurantCount
		if err := rows.Scan(&rc.RestaurantID, &rc.Name, &rc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan restaurant count: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// CountForRestaurant количество событий eventName по ресторану за период
func (r *AnalyticsRepository) CountForRestaurant(ctx context.Context, eventName string, restaurantID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM analytics_events
		WHERE name = $1 AND restaurant_id = $2 AND created_at >= $3 AND created_at < $4`,
		eventName, restaurantID, from, to).Scan(&n)
	if err != nil {
		return 0, mapError(err, "count restaurant events")
	}
	return n, nil
}

// UpsertLaunchMetric сохраняет метрику запуска; одна запись на имя и день
func (r *AnalyticsRepository) UpsertLaunchMetric(ctx context.Context, m *domain.LaunchMetric) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO launch_metrics (id, name, value, day, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (name, day) DO UPDATE SET value = EXCLUDED.value, notes = EXCLUDED.notes
		RETURNING id, created_at`,
		m.ID, m.Name, m.Value, m.Day, m.Notes).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return mapError(err, "upsert launch metric")
	}
	return nil
}

// ListLaunchMetrics метрики запуска за период
func (r *AnalyticsRepository) ListLaunchMetrics(ctx context.Context, from, to time.Time) ([]domain.LaunchMetric, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, value, day, notes, created_at FROM launch_metrics
		WHERE day >= $1::date AND day < $2::date
		ORDER BY day ASC, name ASC`, from, to)
	if err != nil {
		return nil, mapError(err, "list launch metrics")
	}
	defer rows.Close()

	var out []domain.LaunchMetric
	for rows.Next() {
		var m domain.LaunchMetric
		if err := rows.Scan(&m.ID, &m.Name, &m.Value, &m.Day, &m.Notes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan launch metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
