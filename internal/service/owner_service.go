package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
)

const ownerStatsWindow = 30 * 24 * time.Hour

// OwnerService кабинет владельца ресторана. Доступ к функциям зависит от тарифа.
type OwnerService interface {
	Restaurants(ctx context.Context, userID uuid.UUID) ([]domain.Restaurant, error)
	UpdateListing(ctx context.Context, userID, restaurantID uuid.UUID, in domain.OwnerListingInput) (*domain.Restaurant, error)
	Stats(ctx context.Context, userID, restaurantID uuid.UUID) (*domain.OwnerStats, error)
}

type ownerService struct {
	users       repository.UserRepository
	restaurants repository.RestaurantRepository
	reviews     repository.ReviewRepository
	favorites   repository.FavoriteRepository
	analytics   repository.AnalyticsRepository
	now         func() time.Time
	log         *logger.Logger
}

// NewOwnerService создает сервис кабинета владельца
func NewOwnerService(
	users repository.UserRepository,
	restaurants repository.RestaurantRepository,
	reviews repository.ReviewRepository,
	favorites repository.FavoriteRepository,
	analytics repository.AnalyticsRepository,
	log *logger.Logger,
) OwnerService {
	return &ownerService{
		users:       users,
		restaurants: restaurants,
		reviews:     reviews,
		favorites:   favorites,
		analytics:   analytics,
		now:         time.Now,
		log:         log,
	}
}

func (s *ownerService) Restaurants(ctx context.Context, userID uuid.UUID) ([]domain.Restaurant, error) {
	owner := userID
	rests, _, err := s.restaurants.Search(ctx, domain.RestaurantFilter{
		OwnerID:       &owner,
		IncludeHidden: true,
		Sort:          domain.SortName,
		Limit:         maxSearchLimit,
	})
	if err != nil {
		return nil, err
	}
	if rests == nil {
		rests = []domain.Restaurant{}
	}
	return rests, nil
}

// owned загружает пользователя и ресторан, проверяя владение
func (s *ownerService) owned(ctx context.Context, userID, restaurantID uuid.UUID) (*domain.User, *domain.Restaurant, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	rest, err := s.restaurants.GetByID(ctx, restaurantID)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsAdmin() && (rest.OwnerID == nil || *rest.OwnerID != user.ID) {
		return nil, nil, fmt.Errorf("%w: restaurant is not yours", domain.ErrUnauthorized)
	}
	return user, rest, nil
}

// tierFor тариф, по которому проверяется доступ. Администратору доступно все.
func tierFor(user *domain.User) domain.Tier {
	if user.IsAdmin() {
		return domain.TierPremium
	}
	return user.EffectiveTier()
}

func (s *ownerService) UpdateListing(ctx context.Context, userID, restaurantID uuid.UUID, in domain.OwnerListingInput) (*domain.Restaurant, error) {
	user, rest, err := s.owned(ctx, userID, restaurantID)
	if err != nil {
		return nil, err
	}
	tier := tierFor(user)

	if in.Description != nil || in.Phone != nil || in.Website != nil {
		if err := tier.Require(domain.FeatureListingEdit); err != nil {
			return nil, err
		}
	}
	if in.ImageURL != nil {
		if err := tier.Require(domain.FeaturePhotoGallery); err != nil {
			return nil, err
		}
	}
	if in.Featured != nil {
		if err := tier.Require(domain.FeatureFeaturedPlacement); err != nil {
			return nil, err
		}
	}

	if in.Description != nil {
		rest.Description = strings.TrimSpace(*in.Description)
	}
	if in.Phone != nil {
		rest.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Website != nil {
		rest.Website = strings.TrimSpace(*in.Website)
	}
	if in.ImageURL != nil {
		rest.ImageURL = strings.TrimSpace(*in.ImageURL)
	}
	if in.Featured != nil {
		rest.Featured = *in.Featured
	}

	if err := s.restaurants.Update(ctx, rest); err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	s.log.Infow("Listing updated by owner", "restaurantID", rest.ID, "userID", user.ID, "tier", tier)
	return rest, nil
}

func (s *ownerService) Stats(ctx context.Context, userID, restaurantID uuid.UUID) (*domain.OwnerStats, error) {
	user, rest, err := s.owned(ctx, userID, restaurantID)
	if err != nil {
		return nil, err
	}
	if err := tierFor(user).Require(domain.FeatureAnalytics); err != nil {
		return nil, err
	}

	to := s.now().UTC()
	from := to.Add(-ownerStatsWindow)
	stats := &domain.OwnerStats{RestaurantID: rest.ID, UserRating: rest.UserRating, From: from, To: to}

	if stats.Views, err = s.analytics.CountForRestaurant(ctx, domain.EventRestaurantView, rest.ID, from, to); err != nil {
		return nil, fmt.Errorf("count views: %w", err)
	}
	if stats.Favorites, err = s.favorites.CountSince(ctx, rest.ID, from); err != nil {
		return nil, fmt.Errorf("count favorites: %w", err)
	}
	if stats.Reviews, err = s.reviews.CountSince(ctx, rest.ID, from); err != nil {
		return nil, fmt.Errorf("count reviews: %w", err)
	}
	return stats, nil
}
