package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/google/uuid"
)

// ReviewRepository реализация repository.ReviewRepository в памяти
type ReviewRepository struct{ s *Store }

// Reviews возвращает репозиторий отзывов
func (s *Store) Reviews() *ReviewRepository { return &ReviewRepository{s: s} }

var _ repository.ReviewRepository = (*ReviewRepository)(nil)

func (r *ReviewRepository) Upsert(ctx context.Context, review *domain.Review) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	for id, existing := range r.s.reviews {
		if existing.UserID == review.UserID && existing.RestaurantID == review.RestaurantID {
			review.ID = id
			review.CreatedAt = existing.CreatedAt
			review.UpdatedAt = now
			r.s.reviews[id] = *review
			return false, nil
		}
	}
	ensureID(&review.ID)
	review.CreatedAt, review.UpdatedAt = now, now
	r.s.reviews[review.ID] = *review
	return true, nil
}

func (r *ReviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rev, ok := r.s.reviews[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rev, nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reviews[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.reviews, id)
	return nil
}

func (r *ReviewRepository) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, limit, offset int) ([]domain.Review, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Review
	for _, rev := range r.s.reviews {
		if rev.RestaurantID == restaurantID {
			if u, ok := r.s.users[rev.UserID]; ok {
				rev.UserName = u.Name
			}
			out = append(out, rev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, offset), len(out), nil
}

func (r *ReviewRepository) Stats(ctx context.Context, restaurantID uuid.UUID) (domain.ReviewStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var stats domain.ReviewStats
	sum := 0
	for _, rev := range r.s.reviews {
		if rev.RestaurantID == restaurantID {
			stats.Count++
			sum += rev.Rating
		}
	}
	if stats.Count > 0 {
		stats.Average = float64(sum) / float64(stats.Count)
	}
	return stats, nil
}

func (r *ReviewRepository) CountSince(ctx context.Context, restaurantID uuid.UUID, since time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, rev := range r.s.reviews {
		if rev.RestaurantID == restaurantID && !rev.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *ReviewRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.reviews), nil
}

// FavoriteRepository реализация repository.FavoriteRepository в памяти
type FavoriteRepository struct{ s *Store }

// Favorites возвращает репозиторий избранного
func (s *Store) Favorites() *FavoriteRepository { return &FavoriteRepository{s: s} }

var _ repository.FavoriteRepository = (*FavoriteRepository)(nil)

func (r *FavoriteRepository) Add(ctx context.Context, userID, restaurantID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.restaurants[restaurantID]; !ok {
		return false, repository.ErrNotFound
	}
	key := favoriteKey{userID: userID, restaurantID: restaurantID}
	if _, ok := r.s.favorites[key]; ok {
		return false, nil
	}
	r.s.favorites[key] = r.s.now()
	return true, nil
}

func (r *FavoriteRepository) Remove(ctx context.Context, userID, restaurantID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.favorites, favoriteKey{userID: userID, restaurantID: restaurantID})
	return nil
}

func (r *FavoriteRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Restaurant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	type fav struct {
		rest domain.Restaurant
		at   time.Time
	}
	var favs []fav
	for k, at := range r.s.favorites {
		if k.userID != userID {
			continue
		}
		if rest, ok := r.s.restaurants[k.restaurantID]; ok {
			favs = append(favs, fav{rest: rest, at: at})
		}
	}
	sort.Slice(favs, func(i, j int) bool { return favs[i].at.After(favs[j].at) })
	out := make([]domain.Restaurant, 0, len(favs))
	for _, f := range favs {
		out = append(out, f.rest)
	}
	return out, nil
}

func (r *FavoriteRepository) CountSince(ctx context.Context, restaurantID uuid.UUID, since time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for k, at := range r.s.favorites {
		if k.restaurantID == restaurantID && !at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *FavoriteRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.favorites), nil
}
