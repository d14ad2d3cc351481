package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReviewRepository реализация репозитория отзывов через PostgreSQL
type ReviewRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewReviewRepository создает репозиторий отзывов
func NewReviewRepository(db *pgxpool.Pool, log *logger.Logger) *ReviewRepository {
	return &ReviewRepository{db: db, log: log}
}

var _ repository.ReviewRepository = (*ReviewRepository)(nil)

// Upsert создает отзыв или заменяет существующий отзыв пользователя о ресторане
func (r *ReviewRepository) Upsert(ctx context.Context, review *domain.Review) (bool, error) {
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	now := time.Now().UTC()

	// xmax = 0 только у только что вставленной строки
	query := `
		INSERT INTO reviews (id, restaurant_id, user_id, rating, title, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (user_id, restaurant_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted
	`
	var created bool
	err := r.db.QueryRow(ctx, query,
		review.ID, review.RestaurantID, review.UserID, review.Rating, review.Title, review.Body, now,
	).Scan(&review.ID, &review.CreatedAt, &review.UpdatedAt, &created)
	if err != nil {
		return false, mapError(err, "upsert review")
	}
	return created, nil
}

// GetByID возвращает отзыв по ID
func (r *ReviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	var rev domain.Review
	err := r.db.QueryRow(ctx, `
		SELECT rv.id, rv.restaurant_id, rv.user_id, u.name, rv.rating, rv.title, rv.body, rv.created_at, rv.updated_at
		FROM reviews rv JOIN users u ON u.id = rv.user_id
		WHERE rv.id = $1`, id,
	).Scan(&rev.ID, &rev.RestaurantID, &rev.UserID, &rev.UserName, &rev.Rating, &rev.Title, &rev.Body, &rev.CreatedAt, &rev.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "get review")
	}
	return &rev, nil
}

// Delete удаляет отзыв
func (r *ReviewRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "delete review")
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByRestaurant возвращает отзывы ресторана, новые первыми
func (r *ReviewRepository) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, limit, offset int) ([]domain.Review, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM reviews WHERE restaurant_id = $1`, restaurantID).Scan(&total); err != nil {
		return nil, 0, mapError(err, "count reviews")
	}

	rows, err := r.db.Query(ctx, `
		SELECT rv.id, rv.restaurant_id, rv.user_id, u.name, rv.rating, rv.title, rv.body, rv.created_at, rv.updated_at
		FROM reviews rv JOIN users u ON u.id = rv.user_id
		WHERE rv.restaurant_id = $1
		ORDER BY rv.created_at DESC
		LIMIT $2 OFFSET $3`, restaurantID, limitOrAll(limit), offset)
	if err != nil {
		return nil, 0, mapError(err, "list reviews")
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var rev domain.Review
		if err := rows.Scan(&rev.ID, &rev.RestaurantID, &rev.UserID, &rev.UserName, &rev.Rating,
			&rev.Title, &rev.Body, &rev.CreatedAt, &rev.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan review: %w", err)
		}
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating reviews: %w", err)
	}
	return out, total, nil
}

// Stats считает количество и средний рейтинг отзывов ресторана
func (r *ReviewRepository) Stats(ctx context.Context, restaurantID uuid.UUID) (domain.ReviewStats, error) {
	var stats domain.ReviewStats
	err := r.db.QueryRow(ctx,
		`SELECT count(*), COALESCE(avg(rating), 0)::float8 FROM reviews WHERE restaurant_id = $1`, restaurantID,
	).Scan(&stats.Count, &stats.Average)
	if err != nil {
		return stats, mapError(err, "review stats")
	}
	return stats, nil
}

// CountSince количество отзывов ресторана начиная с момента since
func (r *ReviewRepository) CountSince(ctx context.Context, restaurantID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM reviews WHERE restaurant_id = $1 AND created_at >= $2`, restaurantID, since,
	).Scan(&n)
	if err != nil {
		return 0, mapError(err, "count reviews")
	}
	return n, nil
}

// Count общее количество отзывов
func (r *ReviewRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM reviews`).Scan(&n); err != nil {
		return 0, mapError(err, "count reviews")
	}
	return n, nil
}

// FavoriteRepository реализация избранного через PostgreSQL
type FavoriteRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewFavoriteRepository создает репозиторий избранного
func NewFavoriteRepository(db *pgxpool.Pool, log *logger.Logger) *FavoriteRepository {
	return &FavoriteRepository{db: db, log: log}
}

var _ repository.FavoriteRepository = (*FavoriteRepository)(nil)

// Add добавляет ресторан в избранное; повторное добавление не ошибка
func (r *FavoriteRepository) Add(ctx context.Context, userID, restaurantID uuid.UUID) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM restaurants WHERE id = $1)`, restaurantID).Scan(&exists); err != nil {
		return false, mapError(err, "check restaurant")
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO favorites (user_id, restaurant_id, created_at) VALUES ($1, $2, now())
		ON CONFLICT (user_id, restaurant_id) DO NOTHING`, userID, restaurantID)
	if err != nil {
		return false, mapError(err, "add favorite")
	}
	return tag.RowsAffected() == 1, nil
}

// Remove удаляет ресторан из избранного
func (r *FavoriteRepository) Remove(ctx context.Context, userID, restaurantID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM favorites WHERE user_id = $1 AND restaurant_id = $2`, userID, restaurantID); err != nil {
		return mapError(err, "remove favorite")
	}
	return nil
}

// ListByUser возвращает избранные рестораны пользователя, последние добавленные первыми
func (r *FavoriteRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Restaurant, error) {
	query := `
		SELECT ` + prefixed("r", restaurantColumns) + `
		FROM favorites f JOIN restaurants r ON r.id = f.restaurant_id
		WHERE f.user_id = $1
		ORDER BY f.created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err, "list favorites")
	}
	defer rows.Close()

	var out []domain.Restaurant
	for rows.Next() {
		rest, err := scanRestaurant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan restaurant: %w", err)
		}
		out = append(out, *rest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating favorites: %w", err)
	}
	return out, nil
}

// CountSince количество добавлений ресторана в избранное начиная с since
func (r *FavoriteRepository) CountSince(ctx context.Context, restaurantID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM favorites WHERE restaurant_id = $1 AND created_at >= $2`, restaurantID, since,
	).Scan(&n)
	if err != nil {
		return 0, mapError(err, "count favorites")
	}
	return n, nil
}

// Count общее количество записей избранного
func (r *FavoriteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM favorites`).Scan(&n); err != nil {
		return 0, mapError(err, "count favorites")
	}
	return n, nil
}
