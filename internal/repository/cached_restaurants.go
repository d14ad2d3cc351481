package repository

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
)

// CachedRestaurantRepository кеширует чтение каталога поверх основного хранилища.
// Любая запись сбрасывает кеш карточки и повышает поколение кеша поиска.
type CachedRestaurantRepository struct {
	RestaurantRepository
	cache Cache
	log   *logger.Logger
}

// NewCachedRestaurantRepository оборачивает репозиторий ресторанов кешем
func NewCachedRestaurantRepository(repo RestaurantRepository, cache Cache, log *logger.Logger) *CachedRestaurantRepository {
	return &CachedRestaurantRepository{RestaurantRepository: repo, cache: cache, log: log}
}

var _ RestaurantRepository = (*CachedRestaurantRepository)(nil)

type cachedSearch struct {
	Items []domain.Restaurant `json:"items"`
	Total int                 `json:"total"`
}

func restaurantKey(id uuid.UUID) string { return restaurantKeyPrefix + id.String() }

func restaurantSlugKey(slug string) string { return restaurantKeyPrefix + "slug:" + slug }

// GetByID возвращает ресторан из кеша или из хранилища
func (r *CachedRestaurantRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Restaurant, error) {
	if rest := r.readRestaurant(ctx, restaurantKey(id)); rest != nil {
		return rest, nil
	}
	rest, err := r.RestaurantRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.writeRestaurant(ctx, rest)
	return rest, nil
}

// GetBySlug возвращает ресторан по slug из кеша или из хранилища
func (r *CachedRestaurantRepository) GetBySlug(ctx context.Context, slug string) (*domain.Restaurant, error) {
	if rest := r.readRestaurant(ctx, restaurantSlugKey(slug)); rest != nil {
		return rest, nil
	}
	rest, err := r.RestaurantRepository.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	r.writeRestaurant(ctx, rest)
	return rest, nil
}

// Search кеширует результаты поиска в пределах текущего поколения
func (r *CachedRestaurantRepository) Search(ctx context.Context, f domain.RestaurantFilter) ([]domain.Restaurant, int, error) {
	key, err := r.searchKey(ctx, f)
	if err == nil {
		if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
			var cached cachedSearch
			if json.Unmarshal(data, &cached) == nil {
				return cached.Items, cached.Total, nil
			}
		}
	}

	items, total, err := r.RestaurantRepository.Search(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if key != "" {
		if data, err := json.Marshal(cachedSearch{Items: items, Total: total}); err == nil {
			if err := r.cache.Set(ctx, key, data, 0); err != nil {
				r.log.Warnw("Failed to cache search result", "error", err)
			}
		}
	}
	return items, total, nil
}

func (r *CachedRestaurantRepository) searchKey(ctx context.Context, f domain.RestaurantFilter) (string, error) {
	gen := "0"
	data, ok, err := r.cache.Get(ctx, searchGenerationKey)
	if err != nil {
		return "", err
	}
	if ok {
		gen = string(data)
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(raw)
	return fmt.Sprintf("%sv%s:%s", searchKeyPrefix, gen, hex.EncodeToString(sum[:])), nil
}

func (r *CachedRestaurantRepository) readRestaurant(ctx context.Context, key string) *domain.Restaurant {
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil
	}
	var rest domain.Restaurant
	if err := json.Unmarshal(data, &rest); err != nil {
		r.log.Warnw("Dropping malformed cache entry", "key", key, "error", err)
		_ = r.cache.Delete(ctx, key)
		return nil
	}
	return &rest
}

func (r *CachedRestaurantRepository) writeRestaurant(ctx context.Context, rest *domain.Restaurant) {
	data, err := json.Marshal(rest)
	if err != nil {
		return
	}
	for _, key := range []string{restaurantKey(rest.ID), restaurantSlugKey(rest.Slug)} {
		if err := r.cache.Set(ctx, key, data, 0); err != nil {
			r.log.Warnw("Failed to cache restaurant", "restaurantID", rest.ID, "error", err)
			return
		}
	}
}

// invalidate сбрасывает кеш карточки и поиска
func (r *CachedRestaurantRepository) invalidate(ctx context.Context, id uuid.UUID, slugs ...string) {
	keys := []string{restaurantKey(id)}
	for _, s := range slugs {
		if s != "" {
			keys = append(keys, restaurantSlugKey(s))
		}
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.log.Warnw("Failed to invalidate restaurant cache", "restaurantID", id, "error", err)
	}
	if gen, err := r.cache.Incr(ctx, searchGenerationKey); err != nil {
		r.log.Warnw("Failed to bump search cache generation", "error", err)
	} else {
		r.log.Debugw("Search cache generation bumped", "generation", strconv.FormatInt(gen, 10))
	}
}

// cachedSlug возвращает slug ресторана до изменения, чтобы сбросить старый ключ
func (r *CachedRestaurantRepository) cachedSlug(ctx context.Context, id uuid.UUID) string {
	if rest, err := r.RestaurantRepository.GetByID(ctx, id); err == nil {
		return rest.Slug
	}
	return ""
}

// Create добавляет ресторан и сбрасывает кеш поиска
func (r *CachedRestaurantRepository) Create(ctx context.Context, rest *domain.Restaurant) error {
	if err := r.RestaurantRepository.Create(ctx, rest); err != nil {
		return err
	}
	r.invalidate(ctx, rest.ID, rest.Slug)
	return nil
}

// Update сохраняет ресторан и сбрасывает кеш
func (r *CachedRestaurantRepository) Update(ctx context.Context, rest *domain.Restaurant) error {
	oldSlug := r.cachedSlug(ctx, rest.ID)
	if err := r.RestaurantRepository.Update(ctx, rest); err != nil {
		return err
	}
	r.invalidate(ctx, rest.ID, oldSlug, rest.Slug)
	return nil
}

// Delete удаляет ресторан и сбрасывает кеш
func (r *CachedRestaurantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	oldSlug := r.cachedSlug(ctx, id)
	if err := r.RestaurantRepository.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id, oldSlug)
	return nil
}

// UpdateReviewStats сохраняет агрегаты отзывов и сбрасывает кеш
func (r *CachedRestaurantRepository) UpdateReviewStats(ctx context.Context, id uuid.UUID, stats domain.ReviewStats) error {
	oldSlug := r.cachedSlug(ctx, id)
	if err := r.RestaurantRepository.UpdateReviewStats(ctx, id, stats); err != nil {
		return err
	}
	r.invalidate(ctx, id, oldSlug)
	return nil
}

// UpdatePartnerState зеркалирует тариф и сбрасывает кеш
func (r *CachedRestaurantRepository) UpdatePartnerState(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID, tier domain.Tier, featured bool) error {
	oldSlug := r.cachedSlug(ctx, id)
	if err := r.RestaurantRepository.UpdatePartnerState(ctx, id, ownerID, tier, featured); err != nil {
		return err
	}
	r.invalidate(ctx, id, oldSlug)
	return nil
}
