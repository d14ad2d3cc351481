package repository

import (
	"context"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/google/uuid"
)

// UserRepository хранилище пользователей
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error)
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
	// UpdateSubscription зеркалирует тариф и статус подписки на пользователя
	UpdateSubscription(ctx context.Context, id uuid.UUID, tier domain.Tier, status domain.SubscriptionStatus) error
	UpdateRole(ctx context.Context, id uuid.UUID, role domain.UserRole) error
	Count(ctx context.Context) (int, error)
}

// RestaurantRepository хранилище каталога ресторанов
type RestaurantRepository interface {
	Create(ctx context.Context, r *domain.Restaurant) error
	Update(ctx context.Context, r *domain.Restaurant) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Restaurant, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Restaurant, error)
	GetByPlaceID(ctx context.Context, placeID string) (*domain.Restaurant, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	// Search возвращает рестораны по фильтру и общее количество.
	// Если задан filter.Origin, хранилище отбирает кандидатов по ограничивающему прямоугольнику
	// и возвращает их все без сортировки и пагинации: точное расстояние считает сервис.
	Search(ctx context.Context, filter domain.RestaurantFilter) ([]domain.Restaurant, int, error)
	UpdateReviewStats(ctx context.Context, id uuid.UUID, stats domain.ReviewStats) error
	// UpdatePartnerState зеркалирует тариф подписки владельца на ресторан
	UpdatePartnerState(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID, tier domain.Tier, featured bool) error
	Count(ctx context.Context) (int, error)
}

// ReviewRepository хранилище отзывов
type ReviewRepository interface {
	// Upsert создает отзыв или обновляет существующий отзыв пользователя о ресторане
	Upsert(ctx context.Context, review *domain.Review) (created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Review, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, limit, offset int) ([]domain.Review, int, error)
	Stats(ctx context.Context, restaurantID uuid.UUID) (domain.ReviewStats, error)
	CountSince(ctx context.Context, restaurantID uuid.UUID, since time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}

// FavoriteRepository хранилище избранного
type FavoriteRepository interface {
	// Add возвращает added=false, если ресторан уже в избранном
	Add(ctx context.Context, userID, restaurantID uuid.UUID) (added bool, err error)
	Remove(ctx context.Context, userID, restaurantID uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Restaurant, error)
	CountSince(ctx context.Context, restaurantID uuid.UUID, since time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}

// BlogRepository хранилище статей блога
type BlogRepository interface {
	Create(ctx context.Context, a *domain.BlogArticle) error
	Update(ctx context.Context, a *domain.BlogArticle) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BlogArticle, error)
	GetBySlug(ctx context.Context, slug string) (*domain.BlogArticle, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context, filter domain.BlogFilter) ([]domain.BlogArticle, int, error)
}

// SubscriptionRepository определяет методы для работы с хранилищем подписок.
type SubscriptionRepository interface {
	// GetByStripeID возвращает подписку по её Stripe ID.
	GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error)

	// UpsertIfNewer сохраняет подписку по Stripe ID, только если sub.LastEventAt
	// не раньше уже сохраненного. applied=false означает устаревшее событие.
	UpsertIfNewer(ctx context.Context, sub *domain.Subscription) (applied bool, err error)

	// ListByUser возвращает подписки пользователя, новые первыми.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error)

	// CountLiveByTier количество действующих подписок по тарифам
	CountLiveByTier(ctx context.Context) ([]domain.TierCount, error)
}

// PaymentRepository хранилище платежей
type PaymentRepository interface {
	// Record создает платеж. Если платеж с тем же счетом и статусом уже есть,
	// обновляет число попыток и возвращает created=false.
	Record(ctx context.Context, p *domain.Payment) (created bool, err error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
}

// ClaimRepository хранилище заявок на рестораны
type ClaimRepository interface {
	// CreateIfAbsent возвращает created=false, если заявка с той же сессией checkout уже есть
	CreateIfAbsent(ctx context.Context, claim *domain.RestaurantClaim) (created bool, err error)
	GetActiveByRestaurant(ctx context.Context, restaurantID uuid.UUID) (*domain.RestaurantClaim, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.RestaurantClaim, error)
}

// WebhookEventRepository хранилище полученных вебхуков
type WebhookEventRepository interface {
	// CreateIfAbsent создает событие. Если событие с тем же ExternalID уже записано,
	// возвращает сохраненное и created=false.
	CreateIfAbsent(ctx context.Context, event *domain.WebhookEvent) (stored *domain.WebhookEvent, created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error)
	Update(ctx context.Context, event *domain.WebhookEvent) error
	List(ctx context.Context, status domain.WebhookEventStatus, limit, offset int) ([]domain.WebhookEvent, int, error)
	CountByStatus(ctx context.Context, status domain.WebhookEventStatus) (int, error)
}

// AnalyticsRepository хранилище событий аналитики и метрик запуска
type AnalyticsRepository interface {
	InsertEvents(ctx context.Context, events []domain.AnalyticsEvent) error
	ListEvents(ctx context.Context, filter domain.AnalyticsFilter) ([]domain.AnalyticsEvent, error)
	CountByName(ctx context.Context, from, to time.Time) ([]domain.NameCount, error)
	DailyCounts(ctx context.Context, from, to time.Time) ([]domain.DailyCount, error)
	TopRestaurants(ctx context.Context, eventName string, from, to time.Time, limit int) ([]domain.RestaurantCount, error)
	CountForRestaurant(ctx context.Context, eventName string, restaurantID uuid.UUID, from, to time.Time) (int, error)
	UpsertLaunchMetric(ctx context.Context, m *domain.LaunchMetric) error
	ListLaunchMetrics(ctx context.Context, from, to time.Time) ([]domain.LaunchMetric, error)
}

// LeadRepository хранилище лидов (база партнеров)
type LeadRepository interface {
	Create(ctx context.Context, lead *domain.Lead) error
	Update(ctx context.Context, lead *domain.Lead) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
	List(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, int, error)
	MarkContacted(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// CampaignRepository хранилище кампаний и сообщений рассылки
type CampaignRepository interface {
	Create(ctx context.Context, c *domain.OutreachCampaign) error
	Update(ctx context.Context, c *domain.OutreachCampaign) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OutreachCampaign, error)
	List(ctx context.Context, limit, offset int) ([]domain.OutreachCampaign, int, error)
	SaveMessage(ctx context.Context, m *domain.OutreachMessage) error
	UpdateMessage(ctx context.Context, m *domain.OutreachMessage) error
	ListMessages(ctx context.Context, campaignID uuid.UUID) ([]domain.OutreachMessage, error)
}

// PartnershipTierRepository хранилище партнерских тарифов
type PartnershipTierRepository interface {
	List(ctx context.Context, activeOnly bool) ([]domain.PartnershipTier, error)
	Upsert(ctx context.Context, t *domain.PartnershipTier) error
	GetByPriceID(ctx context.Context, priceID string) (*domain.PartnershipTier, error)
}

// PartnerRestaurantRepository хранилище ресторанов-партнеров
type PartnerRestaurantRepository interface {
	Create(ctx context.Context, r *domain.PartnerRestaurant) error
	List(ctx context.Context) ([]domain.PartnerRestaurant, error)
	SetCatalogLink(ctx context.Context, id uuid.UUID, catalogID uuid.UUID) error
}
