package memory

import (
	"context"
	"sort"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/google/uuid"
)

// SubscriptionRepository реализация repository.SubscriptionRepository в памяти
type SubscriptionRepository struct{ s *Store }

// Subscriptions возвращает репозиторий подписок
func (s *Store) Subscriptions() *SubscriptionRepository { return &SubscriptionRepository{s: s} }

var _ repository.SubscriptionRepository = (*SubscriptionRepository)(nil)

func (r *SubscriptionRepository) GetByStripeID(ctx context.Context, stripeID string) (*domain.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sub, ok := r.s.subscriptions[stripeID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sub, nil
}

func (r *SubscriptionRepository) UpsertIfNewer(ctx context.Context, sub *domain.Subscription) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	existing, ok := r.s.subscriptions[sub.StripeSubscriptionID]
	if ok {
		if sub.LastEventAt.Before(existing.LastEventAt) {
			return false, nil
		}
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		ensureID(&sub.ID)
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	r.s.subscriptions[sub.StripeSubscriptionID] = *sub
	return true, nil
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Subscription
	for _, sub := range r.s.subscriptions {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *SubscriptionRepository) CountLiveByTier(ctx context.Context) ([]domain.TierCount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := map[domain.Tier]int{}
	for _, sub := range r.s.subscriptions {
		if sub.Status.IsLive() {
			counts[sub.Tier]++
		}
	}
	var out []domain.TierCount
	for _, tier := range domain.PaidTiers {
		if n := counts[tier]; n > 0 {
			out = append(out, domain.TierCount{Tier: tier, Count: n})
		}
	}
	return out, nil
}

// PaymentRepository реализация repository.PaymentRepository в памяти
type PaymentRepository struct{ s *Store }

// Payments возвращает репозиторий платежей
func (s *Store) Payments() *PaymentRepository { return &PaymentRepository{s: s} }

var _ repository.PaymentRepository = (*PaymentRepository)(nil)

func (r *PaymentRepository) Record(ctx context.Context, p *domain.Payment) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := paymentKey{invoiceID: p.StripeInvoiceID, status: p.Status}
	now := r.s.now()
	if existing, ok := r.s.payments[key]; ok {
		if p.AttemptCount > existing.AttemptCount {
			existing.AttemptCount = p.AttemptCount
			existing.FailureReason = p.FailureReason
			existing.UpdatedAt = now
			r.s.payments[key] = existing
		}
		*p = existing
		return false, nil
	}
	ensureID(&p.ID)
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.payments[key] = *p
	return true, nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Payment
	for _, p := range r.s.payments {
		if p.UserID != nil && *p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Count количество записанных платежей (для тестов)
func (r *PaymentRepository) Count() int {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.payments)
}

// ClaimRepository реализация repository.ClaimRepository в памяти
type ClaimRepository struct{ s *Store }

// Claims возвращает репозиторий заявок на рестораны
func (s *Store) Claims() *ClaimRepository { return &ClaimRepository{s: s} }

var _ repository.ClaimRepository = (*ClaimRepository)(nil)

func (r *ClaimRepository) CreateIfAbsent(ctx context.Context, c *domain.RestaurantClaim) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.claims[c.StripeCheckoutSessionID]; ok {
		*c = existing
		return false, nil
	}
	ensureID(&c.ID)
	c.CreatedAt = r.s.now()
	r.s.claims[c.StripeCheckoutSessionID] = *c
	return true, nil
}

func (r *ClaimRepository) GetActiveByRestaurant(ctx context.Context, restaurantID uuid.UUID) (*domain.RestaurantClaim, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var latest *domain.RestaurantClaim
	for _, c := range r.s.claims {
		if c.RestaurantID != restaurantID || c.Status != domain.ClaimStatusActive {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			claim := c
			latest = &claim
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (r *ClaimRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.RestaurantClaim, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.RestaurantClaim
	for _, c := range r.s.claims {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// WebhookEventRepository реализация repository.WebhookEventRepository в памяти
type WebhookEventRepository struct{ s *Store }

// WebhookEvents возвращает репозиторий вебхуков
func (s *Store) WebhookEvents() *WebhookEventRepository { return &WebhookEventRepository{s: s} }

var _ repository.WebhookEventRepository = (*WebhookEventRepository)(nil)

func (r *WebhookEventRepository) CreateIfAbsent(ctx context.Context, e *domain.WebhookEvent) (*domain.WebhookEvent, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.webhookEvents {
		if existing.ExternalID == e.ExternalID {
			stored := existing
			return &stored, false, nil
		}
	}
	ensureID(&e.ID)
	now := r.s.now()
	e.CreatedAt, e.UpdatedAt = now, now
	r.s.webhookEvents[e.ID] = *e
	stored := *e
	return &stored, true, nil
}

func (r *WebhookEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.webhookEvents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (r *WebhookEventRepository) Update(ctx context.Context, e *domain.WebhookEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.webhookEvents[e.ID]; !ok {
		return repository.ErrNotFound
	}
	e.UpdatedAt = r.s.now()
	r.s.webhookEvents[e.ID] = *e
	return nil
}

func (r *WebhookEventRepository) List(ctx context.Context, status domain.WebhookEventStatus, limit, offset int) ([]domain.WebhookEvent, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.WebhookEvent
	for _, e := range r.s.webhookEvents {
		if status == "" || e.Status == status {
			out = append(out, e)
		}
	}
	// Сортируем события по времени создания (новые в начале)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, offset), len(out), nil
}

func (r *WebhookEventRepository) CountByStatus(ctx context.Context, status domain.WebhookEventStatus) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, e := range r.s.webhookEvents {
		if e.Status == status {
			n++
		}
	}
	return n, nil
}
