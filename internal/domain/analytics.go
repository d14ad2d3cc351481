package domain

import (
	"time"

	"github.com/google/uuid"
)

// Имена событий аналитики
const (
	EventPageView        = "page_view"
	EventSearch          = "search"
	EventRestaurantView  = "restaurant_view"
	EventRouletteSpin    = "roulette_spin"
	EventFavoriteAdded   = "favorite_added"
	EventReviewCreated   = "review_created"
	EventCheckoutStarted = "checkout_started"
	EventMapOpened       = "map_opened"
	EventBlogView        = "blog_view"
	EventOutboundClick   = "outbound_click"
)

var allowedEvents = map[string]struct{}{
	EventPageView: {}, EventSearch: {}, EventRestaurantView: {}, EventRouletteSpin: {},
	EventFavoriteAdded: {}, EventReviewCreated: {}, EventCheckoutStarted: {}, EventMapOpened: {},
	EventBlogView: {}, EventOutboundClick: {},
}

// IsKnownEvent сообщает, разрешено ли имя события
func IsKnownEvent(name string) bool {
	_, ok := allowedEvents[name]
	return ok
}

// AnalyticsEvent событие пользовательской активности
type AnalyticsEvent struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	UserID       *uuid.UUID        `json:"user_id,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	RestaurantID *uuid.UUID        `json:"restaurant_id,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// TrackRequest запрос на запись события с клиента
type TrackRequest struct {
	Name         string            `json:"name" binding:"required,max=64"`
	SessionID    string            `json:"session_id" binding:"max=128"`
	RestaurantID string            `json:"restaurant_id"`
	Properties   map[string]string `json:"properties"`
}

// AnalyticsFilter фильтр событий
type AnalyticsFilter struct {
	From         time.Time
	To           time.Time
	Name         string
	RestaurantID *uuid.UUID
	Limit        int
}

// LaunchMetric ручная метрика запуска (одна на имя и день)
type LaunchMetric struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Day       time.Time `json:"day"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LaunchMetricInput запрос на запись метрики
type LaunchMetricInput struct {
	Name  string  `json:"name" binding:"required,max=100"`
	Value float64 `json:"value"`
	Day   string  `json:"day"` // YYYY-MM-DD, по умолчанию сегодня
	Notes string  `json:"notes" binding:"max=1000"`
}

// NameCount счетчик по имени
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DailyCount количество событий за день
type DailyCount struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}

// RestaurantCount ресторан и количество событий по нему
type RestaurantCount struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Name         string    `json:"name"`
	Count        int       `json:"count"`
}

// CatalogTotals общие счетчики каталога
type CatalogTotals struct {
	Users       int `json:"users"`
	Restaurants int `json:"restaurants"`
	Reviews     int `json:"reviews"`
	Favorites   int `json:"favorites"`
}

// TierCount количество действующих подписок на тарифе
type TierCount struct {
	Tier  Tier `json:"tier"`
	Count int  `json:"count"`
}

// Dashboard сводка для админки
type Dashboard struct {
	From           time.Time         `json:"from"`
	To             time.Time         `json:"to"`
	Totals         CatalogTotals     `json:"totals"`
	EventsByName   []NameCount       `json:"events_by_name"`
	DailyEvents    []DailyCount      `json:"daily_events"`
	TopRestaurants []RestaurantCount `json:"top_restaurants"`
	Subscriptions  []TierCount       `json:"subscriptions"`
	MRRCents       int64             `json:"mrr_cents"`
	LaunchMetrics  []LaunchMetric    `json:"launch_metrics"`
	FailedWebhooks int               `json:"failed_webhooks"`
}
