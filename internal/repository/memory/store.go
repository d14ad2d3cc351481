// Package memory содержит реализации репозиториев в памяти.
// Используется в тестах и при DATABASE_DRIVER=memory.
package memory

import (
	"sync"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/google/uuid"
)

// Store общее состояние всех репозиториев в памяти
type Store struct {
	mu sync.RWMutex

	users         map[uuid.UUID]domain.User
	restaurants   map[uuid.UUID]domain.Restaurant
	reviews       map[uuid.UUID]domain.Review
	favorites     map[favoriteKey]time.Time
	articles      map[uuid.UUID]domain.BlogArticle
	subscriptions map[string]domain.Subscription // по stripe subscription id
	payments      map[paymentKey]domain.Payment
	claims        map[string]domain.RestaurantClaim // по checkout session id
	webhookEvents map[uuid.UUID]domain.WebhookEvent
	events        []domain.AnalyticsEvent
	launchMetrics map[launchKey]domain.LaunchMetric

	leads            map[uuid.UUID]domain.Lead
	campaigns        map[uuid.UUID]domain.OutreachCampaign
	messages         []domain.OutreachMessage
	tiers            map[domain.Tier]domain.PartnershipTier
	partnerRestaurts map[uuid.UUID]domain.PartnerRestaurant

	now func() time.Time
}

type favoriteKey struct {
	userID       uuid.UUID
	restaurantID uuid.UUID
}

type paymentKey struct {
	invoiceID string
	status    domain.PaymentStatus
}

type launchKey struct {
	name string
	day  string
}

// NewStore создает пустое хранилище
func NewStore() *Store {
	return &Store{
		users:            make(map[uuid.UUID]domain.User),
		restaurants:      make(map[uuid.UUID]domain.Restaurant),
		reviews:          make(map[uuid.UUID]domain.Review),
		favorites:        make(map[favoriteKey]time.Time),
		articles:         make(map[uuid.UUID]domain.BlogArticle),
		subscriptions:    make(map[string]domain.Subscription),
		payments:         make(map[paymentKey]domain.Payment),
		claims:           make(map[string]domain.RestaurantClaim),
		webhookEvents:    make(map[uuid.UUID]domain.WebhookEvent),
		launchMetrics:    make(map[launchKey]domain.LaunchMetric),
		leads:            make(map[uuid.UUID]domain.Lead),
		campaigns:        make(map[uuid.UUID]domain.OutreachCampaign),
		tiers:            make(map[domain.Tier]domain.PartnershipTier),
		partnerRestaurts: make(map[uuid.UUID]domain.PartnerRestaurant),
		now:              time.Now,
	}
}

// SetClock подменяет источник времени (для тестов)
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset < 0 {
		offset = 0
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
