package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// ReviewService отзывы и избранное
type ReviewService interface {
	// Save создает отзыв или обновляет отзыв пользователя о ресторане
	Save(ctx context.Context, userID, restaurantID uuid.UUID, in domain.ReviewInput) (review *domain.Review, created bool, err error)
	List(ctx context.Context, restaurantID uuid.UUID, limit, offset int) ([]domain.Review, int, error)
	// Delete удаляет отзыв; чужой отзыв может удалить только администратор
	Delete(ctx context.Context, userID uuid.UUID, isAdmin bool, reviewID uuid.UUID) error

	AddFavorite(ctx context.Context, userID, restaurantID uuid.UUID) (added bool, err error)
	RemoveFavorite(ctx context.Context, userID, restaurantID uuid.UUID) error
	Favorites(ctx context.Context, userID uuid.UUID) ([]domain.Restaurant, error)
}

type reviewService struct {
	reviews     repository.ReviewRepository
	favorites   repository.FavoriteRepository
	restaurants repository.RestaurantRepository
	users       repository.UserRepository
	policy      *bluemonday.Policy
	log         *logger.Logger
}

// NewReviewService создает новый сервис отзывов
func NewReviewService(
	reviews repository.ReviewRepository,
	favorites repository.FavoriteRepository,
	restaurants repository.RestaurantRepository,
	users repository.UserRepository,
	log *logger.Logger,
) ReviewService {
	return &reviewService{
		reviews:     reviews,
		favorites:   favorites,
		restaurants: restaurants,
		users:       users,
		policy:      bluemonday.StrictPolicy(),
		log:         log,
	}
}

// clean убирает разметку из пользовательского текста
func (s *reviewService) clean(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}

func (s *reviewService) Save(ctx context.Context, userID, restaurantID uuid.UUID, in domain.ReviewInput) (*domain.Review, bool, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, false, fmt.Errorf("%w: rating must be between 1 and 5", domain.ErrInvalidInput)
	}
	rest, err := s.restaurants.GetByID(ctx, restaurantID)
	if err != nil {
		return nil, false, err
	}
	if !rest.Active {
		return nil, false, repository.ErrNotFound
	}

	review := &domain.Review{
		RestaurantID: rest.ID,
		UserID:       userID,
		Rating:       in.Rating,
		Title:        s.clean(in.Title),
		Body:         s.clean(in.Body),
	}
	if user, err := s.users.GetByID(ctx, userID); err == nil {
		review.UserName = user.Name
	}

	created, err := s.reviews.Upsert(ctx, review)
	if err != nil {
		return nil, false, fmt.Errorf("save review: %w", err)
	}
	if err := s.refreshStats(ctx, rest.ID); err != nil {
		return nil, false, err
	}
	s.log.Infow("Review saved", "reviewID", review.ID, "restaurantID", rest.ID, "created", created)
	return review, created, nil
}

func (s *reviewService) List(ctx context.Context, restaurantID uuid.UUID, limit, offset int) ([]domain.Review, int, error) {
	if limit <= 0 || limit > maxSearchLimit {
		limit = defaultSearchLimit
	}
	if offset < 0 {
		offset = 0
	}
	reviews, total, err := s.reviews.ListByRestaurant(ctx, restaurantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	return reviews, total, nil
}

func (s *reviewService) Delete(ctx context.Context, userID uuid.UUID, isAdmin bool, reviewID uuid.UUID) error {
	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if review.UserID != userID && !isAdmin {
		return fmt.Errorf("%w: review belongs to another user", domain.ErrUnauthorized)
	}
	if err := s.reviews.Delete(ctx, reviewID); err != nil {
		return err
	}
	if err := s.refreshStats(ctx, review.RestaurantID); err != nil {
		return err
	}
	s.log.Infow("Review deleted", "reviewID", reviewID, "byAdmin", review.UserID != userID)
	return nil
}

// refreshStats пересчитывает средний рейтинг ресторана по отзывам
func (s *reviewService) refreshStats(ctx context.Context, restaurantID uuid.UUID) error {
	stats, err := s.reviews.Stats(ctx, restaurantID)
	if err != nil {
		return fmt.Errorf("review stats: %w", err)
	}
	if err := s.restaurants.UpdateReviewStats(ctx, restaurantID, stats); err != nil {
		return fmt.Errorf("update review stats: %w", err)
	}
	return nil
}

func (s *reviewService) AddFavorite(ctx context.Context, userID, restaurantID uuid.UUID) (bool, error) {
	rest, err := s.restaurants.GetByID(ctx, restaurantID)
	if err != nil {
		return false, err
	}
	if !rest.Active {
		return false, repository.ErrNotFound
	}
	return s.favorites.Add(ctx, userID, restaurantID)
}

func (s *reviewService) RemoveFavorite(ctx context.Context, userID, restaurantID uuid.UUID) error {
	return s.favorites.Remove(ctx, userID, restaurantID)
}

func (s *reviewService) Favorites(ctx context.Context, userID uuid.UUID) ([]domain.Restaurant, error) {
	rests, err := s.favorites.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rests == nil {
		rests = []domain.Restaurant{}
	}
	return rests, nil
}
