package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository реализация хранилища подписок через PostgreSQL
type SubscriptionRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewSubscriptionRepository создает репозиторий подписок
func NewSubscriptionRepository(db *pgxpool.Pool, log *logger.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{db: db, log: log}
}

var _ repository.SubscriptionRepository = (*SubscriptionRepository)(nil)

const subscriptionColumns = `id, user_id, restaurant_id, stripe_subscription_id, stripe_customer_id,
	stripe_price_id, tier, status, current_period_start, current_period_end, cancel_at_period_end,
	canceled_at, last_event_at, last_event_id, created_at, updated_at`

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.RestaurantID, &s.StripeSubscriptionID, &s.StripeCustomerID,
		&s.StripePriceID, &s.Tier, &s.Status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd, &s.CanceledAt, &s.LastEventAt, &s.LastEventID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByStripeID возвращает подписку по ее Stripe ID
func (r *SubscriptionRepository) GetByStripeID(ctx context.Context, stripeID string) (*domain.Subscription, error) {
	s, err := scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id = $1`, stripeID))
	if err != nil {
		return nil, mapError(err, "get subscription")
	}
	return s, nil
}

// UpsertIfNewer сохраняет снимок подписки, если событие не старше сохраненного.
// Условие проверяется в одном запросе, поэтому параллельные события не затирают друг друга.
func (r *SubscriptionRepository) UpsertIfNewer(ctx context.Context, sub *domain.Subscription) (bool, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		ON CONFLICT (stripe_subscription_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			restaurant_id = COALESCE(EXCLUDED.restaurant_id, subscriptions.restaurant_id),
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_price_id = EXCLUDED.stripe_price_id,
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			canceled_at = EXCLUDED.canceled_at,
			last_event_at = EXCLUDED.last_event_at,
			last_event_id = EXCLUDED.last_event_id,
			updated_at = EXCLUDED.updated_at
		WHERE subscriptions.last_event_at <= EXCLUDED.last_event_at
		RETURNING id, restaurant_id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		sub.ID, sub.UserID, sub.RestaurantID, sub.StripeSubscriptionID, sub.StripeCustomerID,
		sub.StripePriceID, sub.Tier, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.CanceledAt, sub.LastEventAt, sub.LastEventID, now,
	).Scan(&sub.ID, &sub.RestaurantID, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Условие WHERE не выполнено: в базе более свежее состояние
		r.log.Debugw("Stale subscription snapshot ignored",
			"subscriptionID", sub.StripeSubscriptionID, "eventID", sub.LastEventID)
		return false, nil
	}
	if err != nil {
		return false, mapError(err, "upsert subscription")
	}
	return true, nil
}

// ListByUser возвращает подписки пользователя
func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, mapError(err, "list subscriptions")
	}
	defer rows.Close()

	var out []domain.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// CountLiveByTier количество действующих подписок по тарифам
func (r *SubscriptionRepository) CountLiveByTier(ctx context.Context) ([]domain.TierCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT tier, count(*) FROM subscriptions
		WHERE status IN ('active', 'trialing', 'past_due')
		GROUP BY tier`)
	if err != nil {
		return nil, mapError(err, "count subscriptions")
	}
	defer rows.Close()

	counts := map[domain.Tier]int{}
	for rows.Next() {
		var tier domain.Tier
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("failed to scan tier count: %w", err)
		}
		counts[tier] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []domain.TierCount
	for _, tier := range domain.PaidTiers {
		if n := counts[tier]; n > 0 {
			out = append(out, domain.TierCount{Tier: tier, Count: n})
		}
	}
	return out, nil
}

// PaymentRepository реализация хранилища платежей через PostgreSQL
type PaymentRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPaymentRepository создает репозиторий платежей
func NewPaymentRepository(db *pgxpool.Pool, log *logger.Logger) *PaymentRepository {
	return &PaymentRepository{db: db, log: log}
}

var _ repository.PaymentRepository = (*PaymentRepository)(nil)

// Record записывает платеж; повтор по тому же счету и статусу обновляет число попыток
func (r *PaymentRepository) Record(ctx context.Context, p *domain.Payment) (bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO payments (id, user_id, stripe_subscription_id, stripe_invoice_id, amount_cents,
			currency, status, attempt_count, failure_reason, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (stripe_invoice_id, status) DO UPDATE SET
			attempt_count = GREATEST(payments.attempt_count, EXCLUDED.attempt_count),
			failure_reason = EXCLUDED.failure_reason,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted
	`
	var created bool
	err := r.db.QueryRow(ctx, query,
		p.ID, p.UserID, p.StripeSubscriptionID, p.StripeInvoiceID, p.AmountCents,
		p.Currency, p.Status, p.AttemptCount, p.FailureReason, p.PaidAt, now,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt, &created)
	if err != nil {
		return false, mapError(err, "record payment")
	}
	return created, nil
}

// ListByUser возвращает платежи пользователя
func (r *PaymentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, stripe_subscription_id, stripe_invoice_id, amount_cents, currency, status,
			attempt_count, failure_reason, paid_at, created_at, updated_at
		FROM payments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, mapError(err, "list payments")
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.StripeSubscriptionID, &p.StripeInvoiceID, &p.AmountCents,
			&p.Currency, &p.Status, &p.AttemptCount, &p.FailureReason, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClaimRepository реализация заявок на рестораны через PostgreSQL
type ClaimRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewClaimRepository создает репозиторий заявок
func NewClaimRepository(db *pgxpool.Pool, log *logger.Logger) *ClaimRepository {
	return &ClaimRepository{db: db, log: log}
}

var _ repository.ClaimRepository = (*ClaimRepository)(nil)

const claimColumns = `id, restaurant_id, user_id, stripe_checkout_session_id, stripe_subscription_id, tier, status, created_at`

func scanClaim(row rowScanner) (*domain.RestaurantClaim, error) {
	var c domain.RestaurantClaim
	if err := row.Scan(&c.ID, &c.RestaurantID, &c.UserID, &c.StripeCheckoutSessionID,
		&c.StripeSubscriptionID, &c.Tier, &c.Status, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateIfAbsent создает заявку, если заявки с той же сессией checkout еще нет
func (r *ClaimRepository) CreateIfAbsent(ctx context.Context, c *domain.RestaurantClaim) (bool, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		INSERT INTO restaurant_claims (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (stripe_checkout_session_id) DO NOTHING`,
		c.ID, c.RestaurantID, c.UserID, c.StripeCheckoutSessionID, c.StripeSubscriptionID, c.Tier, c.Status, c.CreatedAt)
	if err != nil {
		return false, mapError(err, "create claim")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	existing, err := scanClaim(r.db.QueryRow(ctx,
		`SELECT `+claimColumns+` FROM restaurant_claims WHERE stripe_checkout_session_id = $1`, c.StripeCheckoutSessionID))
	if err != nil {
		return false, mapError(err, "get claim")
	}
	*c = *existing
	return false, nil
}

// GetActiveByRestaurant возвращает последнюю активную заявку на ресторан
func (r *ClaimRepository) GetActiveByRestaurant(ctx context.Context, restaurantID uuid.UUID) (*domain.RestaurantClaim, error) {
	c, err := scanClaim(r.db.QueryRow(ctx, `
		SELECT `+claimColumns+` FROM restaurant_claims
		WHERE restaurant_id = $1 AND status = 'active'
		ORDER BY created_at DESC LIMIT 1`, restaurantID))
	if err != nil {
		return nil, mapError(err, "get claim")
	}
	return c, nil
}

// ListByUser возвращает заявки пользователя
func (r *ClaimRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.RestaurantClaim, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+claimColumns+` FROM restaurant_claims WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, mapError(err, "list claims")
	}
	defer rows.Close()

	var out []domain.RestaurantClaim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// WebhookEventRepository реализация журнала вебхуков через PostgreSQL
type WebhookEventRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewWebhookEventRepository создает репозиторий вебхуков
func NewWebhookEventRepository(db *pgxpool.Pool, log *logger.Logger) *WebhookEventRepository {
	return &WebhookEventRepository{db: db, log: log}
}

var _ repository.WebhookEventRepository = (*WebhookEventRepository)(nil)

const webhookColumns = `id, external_id, type, status, payload, resource_id, provider, attempt_count,
	last_attempt, processed_at, error_message, pending, event_created_at, created_at, updated_at`

func scanWebhookEvent(row rowScanner) (*domain.WebhookEvent, error) {
	var (
		e       domain.WebhookEvent
		pending []byte
	)
	if err := row.Scan(&e.ID, &e.ExternalID, &e.Type, &e.Status, &e.Payload, &e.ResourceID, &e.Provider,
		&e.AttemptCount, &e.LastAttempt, &e.ProcessedAt, &e.ErrorMessage, &pending, &e.EventCreatedAt,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		e.Pending = &domain.WebhookEffects{}
		if err := json.Unmarshal(pending, e.Pending); err != nil {
			return nil, fmt.Errorf("failed to decode pending effects: %w", err)
		}
	}
	return &e, nil
}

// pendingJSON кодирует отложенные эффекты; пустые хранятся как NULL
func pendingJSON(p *domain.WebhookEffects) (any, error) {
	if p.Empty() {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pending effects: %w", err)
	}
	return string(b), nil
}

// CreateIfAbsent записывает событие, если событие с тем же ExternalID еще не записано
func (r *WebhookEventRepository) CreateIfAbsent(ctx context.Context, e *domain.WebhookEvent) (*domain.WebhookEvent, bool, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	pending, err := pendingJSON(e.Pending)
	if err != nil {
		return nil, false, err
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO webhook_events (`+webhookColumns+`)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11, $12::jsonb, $13, $14, $15)
		ON CONFLICT (external_id) DO NOTHING`,
		e.ID, e.ExternalID, e.Type, e.Status, payload, e.ResourceID, e.Provider, e.AttemptCount,
		e.LastAttempt, e.ProcessedAt, e.ErrorMessage, pending, e.EventCreatedAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return nil, false, mapError(err, "create webhook event")
	}
	if tag.RowsAffected() == 1 {
		stored := *e
		return &stored, true, nil
	}

	stored, err := scanWebhookEvent(r.db.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhook_events WHERE external_id = $1`, e.ExternalID))
	if err != nil {
		return nil, false, mapError(err, "get webhook event")
	}
	return stored, false, nil
}

// GetByID возвращает событие по ID
func (r *WebhookEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	e, err := scanWebhookEvent(r.db.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhook_events WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "get webhook event")
	}
	return e, nil
}

// Update сохраняет результат обработки события
func (r *WebhookEventRepository) Update(ctx context.Context, e *domain.WebhookEvent) error {
	pending, err := pendingJSON(e.Pending)
	if err != nil {
		return err
	}
	e.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE webhook_events SET status = $2, attempt_count = $3, last_attempt = $4,
			processed_at = $5, error_message = $6, resource_id = $7, pending = $8::jsonb, updated_at = $9
		WHERE id = $1`,
		e.ID, e.Status, e.AttemptCount, e.LastAttempt, e.ProcessedAt, e.ErrorMessage, e.ResourceID, pending, e.UpdatedAt)
	if err != nil {
		return mapError(err, "update webhook event")
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List возвращает события, новые первыми; пустой status означает все
func (r *WebhookEventRepository) List(ctx context.Context, status domain.WebhookEventStatus, limit, offset int) ([]domain.WebhookEvent, int, error) {
	w := &whereBuilder{}
	if status != "" {
		w.add("status = ?", status)
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM webhook_events`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, mapError(err, "count webhook events")
	}

	args := append(w.args, limitOrAll(limit), offset)
	query := fmt.Sprintf(`SELECT %s FROM webhook_events%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		webhookColumns, w.sql(), len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err, "list webhook events")
	}
	defer rows.Close()

	var out []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// CountByStatus количество событий в статусе
func (r *WebhookEventRepository) CountByStatus(ctx context.Context, status domain.WebhookEventStatus) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM webhook_events WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, mapError(err, "count webhook events")
	}
	return n, nil
}
