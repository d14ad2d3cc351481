package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/geo"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/google/uuid"
)

// RestaurantRepository реализация repository.RestaurantRepository в памяти
type RestaurantRepository struct{ s *Store }

// Restaurants возвращает репозиторий ресторанов
func (s *Store) Restaurants() *RestaurantRepository { return &RestaurantRepository{s: s} }

var _ repository.RestaurantRepository = (*RestaurantRepository)(nil)

func (r *RestaurantRepository) Create(ctx context.Context, rest *domain.Restaurant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.restaurants {
		if existing.Slug == rest.Slug {
			return repository.ErrDuplicate
		}
		if rest.GooglePlaceID != "" && existing.GooglePlaceID == rest.GooglePlaceID {
			return repository.ErrDuplicate
		}
	}
	ensureID(&rest.ID)
	now := r.s.now()
	rest.CreatedAt, rest.UpdatedAt = now, now
	if rest.Tier == "" {
		rest.Tier = domain.TierFree
	}
	r.s.restaurants[rest.ID] = *rest
	return nil
}

func (r *RestaurantRepository) Update(ctx context.Context, rest *domain.Restaurant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.restaurants[rest.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, existing := range r.s.restaurants {
		if id != rest.ID && existing.Slug == rest.Slug {
			return repository.ErrDuplicate
		}
	}
	rest.UpdatedAt = r.s.now()
	r.s.restaurants[rest.ID] = *rest
	return nil
}

func (r *RestaurantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.restaurants[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.restaurants, id)
	for k := range r.s.favorites {
		if k.restaurantID == id {
			delete(r.s.favorites, k)
		}
	}
	for rid, rev := range r.s.reviews {
		if rev.RestaurantID == id {
			delete(r.s.reviews, rid)
		}
	}
	return nil
}

func (r *RestaurantRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Restaurant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rest, ok := r.s.restaurants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rest, nil
}

func (r *RestaurantRepository) GetBySlug(ctx context.Context, slug string) (*domain.Restaurant, error) {
	return r.find(func(rest domain.Restaurant) bool { return rest.Slug == slug })
}

func (r *RestaurantRepository) GetByPlaceID(ctx context.Context, placeID string) (*domain.Restaurant, error) {
	if placeID == "" {
		return nil, repository.ErrNotFound
	}
	return r.find(func(rest domain.Restaurant) bool { return rest.GooglePlaceID == placeID })
}

func (r *RestaurantRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	_, err := r.GetBySlug(ctx, slug)
	if err == repository.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *RestaurantRepository) find(match func(domain.Restaurant) bool) (*domain.Restaurant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, rest := range r.s.restaurants {
		if match(rest) {
			return &rest, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *RestaurantRepository) Search(ctx context.Context, f domain.RestaurantFilter) ([]domain.Restaurant, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	excluded := make(map[uuid.UUID]struct{}, len(f.ExcludeIDs))
	for _, id := range f.ExcludeIDs {
		excluded[id] = struct{}{}
	}
	var box *domain.GeoBounds
	if f.Origin != nil && f.RadiusMiles > 0 {
		b := geo.BoundingBox(*f.Origin, f.RadiusMiles)
		box = &b
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))

	var out []domain.Restaurant
	for _, rest := range r.s.restaurants {
		if !f.IncludeHidden && !rest.Active {
			continue
		}
		if _, skip := excluded[rest.ID]; skip {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(rest.Name+" "+rest.Description+" "+rest.Cuisine), query) {
			continue
		}
		if f.Cuisine != "" && !strings.EqualFold(rest.Cuisine, f.Cuisine) {
			continue
		}
		if f.MinRating > 0 && rest.Rating < f.MinRating {
			continue
		}
		if len(f.PriceLevels) > 0 && !containsInt(f.PriceLevels, rest.PriceLevel) {
			continue
		}
		if f.FeaturedOnly && !rest.Featured {
			continue
		}
		if f.OwnerID != nil && (rest.OwnerID == nil || *rest.OwnerID != *f.OwnerID) {
			continue
		}
		if f.HasPlaceIDOnly && rest.GooglePlaceID == "" {
			continue
		}
		if f.Bounds != nil && !f.Bounds.Contains(rest.Latitude, rest.Longitude) {
			continue
		}
		if box != nil && !box.Contains(rest.Latitude, rest.Longitude) {
			continue
		}
		out = append(out, rest)
	}

	if f.Origin != nil {
		return out, len(out), nil
	}

	sortRestaurants(out, f.Sort)
	total := len(out)
	return paginate(out, f.Limit, f.Offset), total, nil
}

func sortRestaurants(items []domain.Restaurant, order domain.SortOrder) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch order {
		case domain.SortRating:
			if a.Rating != b.Rating {
				return a.Rating > b.Rating
			}
		case domain.SortName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case domain.SortNewest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		default:
			if a.Featured != b.Featured {
				return a.Featured
			}
			if a.Rating != b.Rating {
				return a.Rating > b.Rating
			}
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

func (r *RestaurantRepository) UpdateReviewStats(ctx context.Context, id uuid.UUID, stats domain.ReviewStats) error {
	return r.update(id, func(rest *domain.Restaurant) {
		rest.UserRating = stats.Average
		rest.UserReviewCount = stats.Count
	})
}

func (r *RestaurantRepository) UpdatePartnerState(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID, tier domain.Tier, featured bool) error {
	return r.update(id, func(rest *domain.Restaurant) {
		if ownerID != nil {
			rest.OwnerID = ownerID
		}
		rest.Tier = tier
		rest.Featured = featured
	})
}

func (r *RestaurantRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, rest := range r.s.restaurants {
		if rest.Active {
			n++
		}
	}
	return n, nil
}

func (r *RestaurantRepository) update(id uuid.UUID, fn func(*domain.Restaurant)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rest, ok := r.s.restaurants[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&rest)
	rest.UpdatedAt = r.s.now()
	r.s.restaurants[id] = rest
	return nil
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
