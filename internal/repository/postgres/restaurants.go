package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/geo"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RestaurantRepository реализация каталога ресторанов через PostgreSQL
type RestaurantRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewRestaurantRepository создает репозиторий ресторанов
func NewRestaurantRepository(db *pgxpool.Pool, log *logger.Logger) *RestaurantRepository {
	return &RestaurantRepository{db: db, log: log}
}

var _ repository.RestaurantRepository = (*RestaurantRepository)(nil)

const restaurantColumns = `id, name, slug, description, cuisine, address, city, state, zip, phone, website,
	latitude, longitude, price_level, rating, rating_count, user_rating, user_review_count,
	google_place_id, image_url, featured, active, owner_id, tier, created_at, updated_at`

func scanRestaurant(row rowScanner) (*domain.Restaurant, error) {
	var rest domain.Restaurant
	var placeID *string
	err := row.Scan(
		&rest.ID, &rest.Name, &rest.Slug, &rest.Description, &rest.Cuisine, &rest.Address,
		&rest.City, &rest.State, &rest.Zip, &rest.Phone, &rest.Website,
		&rest.Latitude, &rest.Longitude, &rest.PriceLevel, &rest.Rating, &rest.RatingCount,
		&rest.UserRating, &rest.UserReviewCount, &placeID, &rest.ImageURL,
		&rest.Featured, &rest.Active, &rest.OwnerID, &rest.Tier, &rest.CreatedAt, &rest.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rest.GooglePlaceID = derefString(placeID)
	return &rest, nil
}

// Create добавляет ресторан в каталог
func (r *RestaurantRepository) Create(ctx context.Context, rest *domain.Restaurant) error {
	if rest.ID == uuid.Nil {
		rest.ID = uuid.New()
	}
	if rest.Tier == "" {
		rest.Tier = domain.TierFree
	}
	now := time.Now().UTC()
	rest.CreatedAt, rest.UpdatedAt = now, now

	query := `
		INSERT INTO restaurants (` + restaurantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26)
	`
	_, err := r.db.Exec(ctx, query,
		rest.ID, rest.Name, rest.Slug, rest.Description, rest.Cuisine, rest.Address,
		rest.City, rest.State, rest.Zip, rest.Phone, rest.Website,
		rest.Latitude, rest.Longitude, rest.PriceLevel, rest.Rating, rest.RatingCount,
		rest.UserRating, rest.UserReviewCount, nullString(rest.GooglePlaceID), rest.ImageURL,
		rest.Featured, rest.Active, rest.OwnerID, rest.Tier, rest.CreatedAt, rest.UpdatedAt,
	)
	if err != nil {
		return mapError(err, "create restaurant")
	}
	r.log.Debugw("Restaurant created", "restaurantID", rest.ID, "slug", rest.Slug)
	return nil
}

// Update сохраняет изменения карточки ресторана
func (r *RestaurantRepository) Update(ctx context.Context, rest *domain.Restaurant) error {
	rest.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE restaurants SET
			name = $2, slug = $3, description = $4, cuisine = $5, address = $6, city = $7,
			state = $8, zip = $9, phone = $10, website = $11, latitude = $12, longitude = $13,
			price_level = $14, rating = $15, rating_count = $16, google_place_id = $17,
			image_url = $18, featured = $19, active = $20, owner_id = $21, tier = $22, updated_at = $23
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		rest.ID, rest.Name, rest.Slug, rest.Description, rest.Cuisine, rest.Address, rest.City,
		rest.State, rest.Zip, rest.Phone, rest.Website, rest.Latitude, rest.Longitude,
		rest.PriceLevel, rest.Rating, rest.RatingCount, nullString(rest.GooglePlaceID),
		rest.ImageURL, rest.Featured, rest.Active, rest.OwnerID, rest.Tier, rest.UpdatedAt,
	)
	if err != nil {
		return mapError(err, "update restaurant")
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete удаляет ресторан; отзывы и избранное удаляются каскадно
func (r *RestaurantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM restaurants WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "delete restaurant")
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *RestaurantRepository) getOne(ctx context.Context, where string, arg any) (*domain.Restaurant, error) {
	query := `SELECT ` + restaurantColumns + ` FROM restaurants WHERE ` + where
	rest, err := scanRestaurant(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapError(err, "get restaurant")
	}
	return rest, nil
}

// GetByID возвращает ресторан по ID
func (r *RestaurantRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Restaurant, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetBySlug возвращает ресторан по slug
func (r *RestaurantRepository) GetBySlug(ctx context.Context, slug string) (*domain.Restaurant, error) {
	return r.getOne(ctx, "slug = $1", slug)
}

// GetByPlaceID возвращает ресторан по Google Place ID
func (r *RestaurantRepository) GetByPlaceID(ctx context.Context, placeID string) (*domain.Restaurant, error) {
	if placeID == "" {
		return nil, repository.ErrNotFound
	}
	return r.getOne(ctx, "google_place_id = $1", placeID)
}

// SlugExists проверяет занятость slug
func (r *RestaurantRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM restaurants WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, mapError(err, "check slug")
	}
	return exists, nil
}

// whereBuilder собирает условие WHERE с позиционными параметрами
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func restaurantWhere(f domain.RestaurantFilter) *whereBuilder {
	w := &whereBuilder{}
	if !f.IncludeHidden {
		w.add("active")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		w.add("(name ILIKE ? OR description ILIKE ? OR cuisine ILIKE ?)", "%"+q+"%", "%"+q+"%", "%"+q+"%")
	}
	if f.Cuisine != "" {
		w.add("lower(cuisine) = lower(?)", f.Cuisine)
	}
	if f.MinRating > 0 {
		w.add("rating >= ?", f.MinRating)
	}
	if len(f.PriceLevels) > 0 {
		w.add("price_level = ANY(?)", f.PriceLevels)
	}
	if f.FeaturedOnly {
		w.add("featured")
	}
	if len(f.ExcludeIDs) > 0 {
		w.add("NOT (id = ANY(?))", f.ExcludeIDs)
	}
	if f.OwnerID != nil {
		w.add("owner_id = ?", *f.OwnerID)
	}
	if f.HasPlaceIDOnly {
		w.add("google_place_id IS NOT NULL")
	}
	if f.Bounds != nil {
		w.add("latitude BETWEEN ? AND ?", f.Bounds.MinLat, f.Bounds.MaxLat)
		w.add("longitude BETWEEN ? AND ?", f.Bounds.MinLng, f.Bounds.MaxLng)
	}
	if f.Origin != nil && f.RadiusMiles > 0 {
		box := geo.BoundingBox(*f.Origin, f.RadiusMiles)
		w.add("latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat)
		w.add("longitude BETWEEN ? AND ?", box.MinLng, box.MaxLng)
	}
	return w
}

func orderBy(order domain.SortOrder) string {
	switch order {
	case domain.SortRating:
		return " ORDER BY rating DESC, lower(name) ASC"
	case domain.SortName:
		return " ORDER BY lower(name) ASC"
	case domain.SortNewest:
		return " ORDER BY created_at DESC, lower(name) ASC"
	default:
		return " ORDER BY featured DESC, rating DESC, lower(name) ASC"
	}
}

// Search ищет рестораны по фильтру. При заданной точке отсчета возвращает
// всех кандидатов из ограничивающего прямоугольника без пагинации.
func (r *RestaurantRepository) Search(ctx context.Context, f domain.RestaurantFilter) ([]domain.Restaurant, int, error) {
	w := restaurantWhere(f)

	query := `SELECT ` + restaurantColumns + ` FROM restaurants` + w.sql()
	args := w.args
	var total int
	if f.Origin == nil {
		if err := r.db.QueryRow(ctx, `SELECT count(*) FROM restaurants`+w.sql(), w.args...).Scan(&total); err != nil {
			return nil, 0, mapError(err, "count restaurants")
		}
		query += orderBy(f.Sort)
		if f.Limit > 0 {
			args = append(args, f.Limit)
			query += fmt.Sprintf(" LIMIT $%d", len(args))
		}
		if f.Offset > 0 {
			args = append(args, f.Offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err, "search restaurants")
	}
	defer rows.Close()

	var out []domain.Restaurant
	for rows.Next() {
		rest, err := scanRestaurant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan restaurant: %w", err)
		}
		out = append(out, *rest)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating restaurants: %w", err)
	}
	if f.Origin != nil {
		total = len(out)
	}
	return out, total, nil
}

// UpdateReviewStats сохраняет агрегаты пользовательских отзывов
func (r *RestaurantRepository) UpdateReviewStats(ctx context.Context, id uuid.UUID, stats domain.ReviewStats) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE restaurants SET user_rating = $2, user_review_count = $3, updated_at = now() WHERE id = $1`,
		id, stats.Average, stats.Count)
	if err != nil {
		return mapError(err, "update review stats")
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdatePartnerState зеркалирует тариф владельца; nil ownerID оставляет владельца без изменений
func (r *RestaurantRepository) UpdatePartnerState(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID, tier domain.Tier, featured bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE restaurants
		SET owner_id = COALESCE($2, owner_id), tier = $3, featured = $4, updated_at = now()
		WHERE id = $1`,
		id, ownerID, tier, featured)
	if err != nil {
		return mapError(err, "update partner state")
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Count количество активных ресторанов
func (r *RestaurantRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM restaurants WHERE active`).Scan(&n); err != nil {
		return 0, mapError(err, "count restaurants")
	}
	return n, nil
}
