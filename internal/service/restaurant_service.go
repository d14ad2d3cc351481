package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/geo"
	"github.com/Dhoini/ekaty/internal/metrics"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	maxMapPins         = 500
	maxSlugAttempts    = 50
)

// RestaurantService каталог ресторанов: поиск, карта, рулетка и администрирование
type RestaurantService interface {
	Search(ctx context.Context, filter domain.RestaurantFilter) (*domain.SearchResult, error)
	// GetByID и GetBySlug не возвращают скрытые рестораны, пока includeHidden не задан
	GetByID(ctx context.Context, id uuid.UUID, includeHidden bool) (*domain.Restaurant, error)
	GetBySlug(ctx context.Context, slug string, includeHidden bool) (*domain.Restaurant, error)
	// MapPins возвращает облегченные карточки ресторанов внутри прямоугольника
	MapPins(ctx context.Context, bounds *domain.GeoBounds, cuisine string) ([]domain.MapPin, error)
	// Roulette выбирает случайный ресторан по условиям
	Roulette(ctx context.Context, req domain.RouletteRequest) (*domain.RouletteResult, error)

	Create(ctx context.Context, in domain.RestaurantInput) (*domain.Restaurant, error)
	Update(ctx context.Context, id uuid.UUID, in domain.RestaurantInput) (*domain.Restaurant, error)
	// Delete скрывает ресторан; hard=true удаляет его вместе с отзывами и избранным
	Delete(ctx context.Context, id uuid.UUID, hard bool) error
}

type restaurantService struct {
	repo    repository.RestaurantRepository
	metrics metrics.IntegrationMetrics
	log     *logger.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// RestaurantOption настройка сервиса ресторанов
type RestaurantOption func(*restaurantService)

// WithRandSource подменяет источник случайных чисел рулетки
func WithRandSource(src rand.Source) RestaurantOption {
	return func(s *restaurantService) { s.rnd = rand.New(src) }
}

// WithSearchMetrics включает метрики размера выдачи
func WithSearchMetrics(m metrics.IntegrationMetrics) RestaurantOption {
	return func(s *restaurantService) { s.metrics = m }
}

// NewRestaurantService создает новый сервис ресторанов
func NewRestaurantService(repo repository.RestaurantRepository, log *logger.Logger, opts ...RestaurantOption) RestaurantService {
	s := &restaurantService{
		repo:    repo,
		metrics: metrics.Nop{},
		log:     log,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeFilter(f domain.RestaurantFilter) domain.RestaurantFilter {
	if f.Limit <= 0 {
		f.Limit = defaultSearchLimit
	}
	if f.Limit > maxSearchLimit {
		f.Limit = maxSearchLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Sort == "" {
		f.Sort = domain.SortRelevance
	}
	f.Query = strings.TrimSpace(f.Query)
	f.Cuisine = strings.TrimSpace(f.Cuisine)
	return f
}

func (s *restaurantService) Search(ctx context.Context, filter domain.RestaurantFilter) (*domain.SearchResult, error) {
	f := normalizeFilter(filter)
	if f.Origin != nil {
		if f.Origin.Lat < -90 || f.Origin.Lat > 90 || f.Origin.Lng < -180 || f.Origin.Lng > 180 {
			return nil, fmt.Errorf("%w: origin is out of range", domain.ErrInvalidInput)
		}
	}
	if f.Origin == nil && f.Sort == domain.SortDistance {
		return nil, fmt.Errorf("%w: distance sort requires lat and lng", domain.ErrInvalidInput)
	}

	var (
		items []domain.RestaurantResult
		total int
	)
	if f.Origin == nil {
		rests, n, err := s.repo.Search(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("search restaurants: %w", err)
		}
		items = make([]domain.RestaurantResult, 0, len(rests))
		for _, r := range rests {
			items = append(items, domain.RestaurantResult{Restaurant: r})
		}
		total = n
	} else {
		candidates, err := s.nearby(ctx, f)
		if err != nil {
			return nil, err
		}
		sortResults(candidates, f.Sort)
		total = len(candidates)
		items = pageResults(candidates, f.Limit, f.Offset)
	}

	s.metrics.ObserveSearchResults(total)
	return &domain.SearchResult{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// nearby получает кандидатов из хранилища и отсекает их по точному расстоянию
func (s *restaurantService) nearby(ctx context.Context, f domain.RestaurantFilter) ([]domain.RestaurantResult, error) {
	query := f
	query.Limit, query.Offset = 0, 0
	rests, _, err := s.repo.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search restaurants: %w", err)
	}
	out := make([]domain.RestaurantResult, 0, len(rests))
	for _, r := range rests {
		var d float64
		if f.RadiusMiles > 0 {
			var ok bool
			d, ok = geo.WithinRadius(*f.Origin, r.Latitude, r.Longitude, f.RadiusMiles)
			if !ok {
				continue
			}
		} else {
			d = geo.CalculateDistance(f.Origin.Lat, f.Origin.Lng, r.Latitude, r.Longitude)
		}
		dist := d
		out = append(out, domain.RestaurantResult{Restaurant: r, DistanceMiles: &dist})
	}
	return out, nil
}

func sortResults(items []domain.RestaurantResult, order domain.SortOrder) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch order {
		case domain.SortDistance:
			if *a.DistanceMiles != *b.DistanceMiles {
				return *a.DistanceMiles < *b.DistanceMiles
			}
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

func pageResults(items []domain.RestaurantResult, limit, offset int) []domain.RestaurantResult {
	if offset >= len(items) {
		return []domain.RestaurantResult{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func (s *restaurantService) GetByID(ctx context.Context, id uuid.UUID, includeHidden bool) (*domain.Restaurant, error) {
	rest, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rest.Active && !includeHidden {
		return nil, repository.ErrNotFound
	}
	return rest, nil
}

func (s *restaurantService) GetBySlug(ctx context.Context, slug string, includeHidden bool) (*domain.Restaurant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, fmt.Errorf("%w: slug is required", domain.ErrInvalidInput)
	}
	rest, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !rest.Active && !includeHidden {
		return nil, repository.ErrNotFound
	}
	return rest, nil
}

func (s *restaurantService) MapPins(ctx context.Context, bounds *domain.GeoBounds, cuisine string) ([]domain.MapPin, error) {
	if bounds != nil && (bounds.MinLat > bounds.MaxLat || bounds.MinLng > bounds.MaxLng) {
		return nil, fmt.Errorf("%w: invalid bounds", domain.ErrInvalidInput)
	}
	rests, _, err := s.repo.Search(ctx, domain.RestaurantFilter{
		Bounds:  bounds,
		Cuisine: strings.TrimSpace(cuisine),
		Sort:    domain.SortRelevance,
		Limit:   maxMapPins,
	})
	if err != nil {
		return nil, fmt.Errorf("load map pins: %w", err)
	}
	pins := make([]domain.MapPin, 0, len(rests))
	for _, r := range rests {
		pins = append(pins, domain.MapPin{
			ID:         r.ID,
			Name:       r.Name,
			Slug:       r.Slug,
			Cuisine:    r.Cuisine,
			Latitude:   r.Latitude,
			Longitude:  r.Longitude,
			Rating:     r.Rating,
			PriceLevel: r.PriceLevel,
			Featured:   r.Featured,
		})
	}
	return pins, nil
}

func (s *restaurantService) Roulette(ctx context.Context, req domain.RouletteRequest) (*domain.RouletteResult, error) {
	if (req.Lat == nil) != (req.Lng == nil) {
		return nil, fmt.Errorf("%w: lat and lng must be given together", domain.ErrInvalidInput)
	}
	if req.MaxPrice < 0 || req.MaxPrice > 4 {
		return nil, fmt.Errorf("%w: max_price must be between 0 and 4", domain.ErrInvalidInput)
	}

	f := domain.RestaurantFilter{
		Cuisine:    strings.TrimSpace(req.Cuisine),
		MinRating:  req.MinRating,
		ExcludeIDs: req.ExcludeIDs,
	}
	if req.MaxPrice > 0 {
		for lvl := 0; lvl <= req.MaxPrice; lvl++ {
			f.PriceLevels = append(f.PriceLevels, lvl)
		}
	}

	var candidates []domain.RestaurantResult
	if req.Lat != nil {
		f.Origin = &domain.GeoPoint{Lat: *req.Lat, Lng: *req.Lng}
		f.RadiusMiles = req.RadiusMiles
		var err error
		candidates, err = s.nearby(ctx, f)
		if err != nil {
			return nil, err
		}
	} else {
		rests, _, err := s.repo.Search(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("search restaurants: %w", err)
		}
		for _, r := range rests {
			candidates = append(candidates, domain.RestaurantResult{Restaurant: r})
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no restaurant matches the roulette filters", domain.ErrNotFound)
	}

	s.mu.Lock()
	pick := candidates[s.rnd.Intn(len(candidates))]
	s.mu.Unlock()

	return &domain.RouletteResult{Restaurant: pick, Candidates: len(candidates)}, nil
}

func (s *restaurantService) Create(ctx context.Context, in domain.RestaurantInput) (*domain.Restaurant, error) {
	rest := &domain.Restaurant{Active: true, Tier: domain.TierFree}
	in.Apply(rest)
	if err := rest.Validate(); err != nil {
		return nil, err
	}
	slug, err := uniqueSlug(ctx, domain.Slugify(rest.Name), s.repo.SlugExists)
	if err != nil {
		return nil, err
	}
	rest.Slug = slug

	if err := s.repo.Create(ctx, rest); err != nil {
		return nil, fmt.Errorf("create restaurant: %w", err)
	}
	s.log.Infow("Restaurant created", "restaurantID", rest.ID, "slug", rest.Slug)
	return rest, nil
}

func (s *restaurantService) Update(ctx context.Context, id uuid.UUID, in domain.RestaurantInput) (*domain.Restaurant, error) {
	rest, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldName := rest.Name
	in.Apply(rest)
	if err := rest.Validate(); err != nil {
		return nil, err
	}
	if rest.Name != oldName {
		base := domain.Slugify(rest.Name)
		if base != rest.Slug {
			slug, err := uniqueSlug(ctx, base, s.repo.SlugExists)
			if err != nil {
				return nil, err
			}
			rest.Slug = slug
		}
	}
	if err := s.repo.Update(ctx, rest); err != nil {
		return nil, fmt.Errorf("update restaurant: %w", err)
	}
	s.log.Infow("Restaurant updated", "restaurantID", rest.ID)
	return rest, nil
}

func (s *restaurantService) Delete(ctx context.Context, id uuid.UUID, hard bool) error {
	if hard {
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		s.log.Infow("Restaurant deleted", "restaurantID", id)
		return nil
	}
	rest, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !rest.Active {
		return nil
	}
	rest.Active = false
	if err := s.repo.Update(ctx, rest); err != nil {
		return fmt.Errorf("hide restaurant: %w", err)
	}
	s.log.Infow("Restaurant hidden", "restaurantID", id)
	return nil
}

// uniqueSlug добавляет к base числовой суффикс, пока slug не станет свободным
func uniqueSlug(ctx context.Context, base string, exists func(context.Context, string) (bool, error)) (string, error) {
	candidate := base
	for i := 2; i < maxSlugAttempts+2; i++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", errors.New("could not find a free slug for " + base)
}
