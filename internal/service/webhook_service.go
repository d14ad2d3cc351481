package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/email"
	"github.com/Dhoini/ekaty/internal/metrics"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
)

// inFlightTimeout время, после которого событие в статусе pending считается брошенным
const inFlightTimeout = 2 * time.Minute

// WebhookService интерфейс сервиса для работы с вебхуками
type WebhookService interface {
	// Process обрабатывает проверенное событие Stripe
	Process(ctx context.Context, event *domain.BillingEvent) (*domain.WebhookResult, error)

	// ListEvents возвращает список вебхук-событий
	ListEvents(ctx context.Context, status domain.WebhookEventStatus, limit, offset int) ([]domain.WebhookEvent, int, error)

	// GetEvent возвращает вебхук-событие по ID
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error)

	// Retry повторно обрабатывает событие со статусом failed
	Retry(ctx context.Context, id uuid.UUID) (*domain.WebhookResult, error)
}

// EventDecoder разбирает сохраненный payload события
type EventDecoder interface {
	Decode(payload []byte) (*domain.BillingEvent, error)
}

// TierResolver определяет тариф по метаданным и цене Stripe
type TierResolver interface {
	Resolve(ctx context.Context, fromMetadata domain.Tier, priceID string) domain.Tier
}

// EventLocker блокировка события между экземплярами сервиса
type EventLocker interface {
	Acquire(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// SubscriptionPublisher публикует примененные изменения подписок
type SubscriptionPublisher interface {
	PublishSubscriptionChange(ctx context.Context, change domain.SubscriptionChange) error
}

// WebhookDeps зависимости сервиса вебхуков. Publisher и Locker необязательны.
type WebhookDeps struct {
	Events        repository.WebhookEventRepository
	Subscriptions repository.SubscriptionRepository
	Payments      repository.PaymentRepository
	Claims        repository.ClaimRepository
	Users         repository.UserRepository
	Restaurants   repository.RestaurantRepository
	Tiers         TierResolver
	Decoder       EventDecoder
	Notifier      *Notifier
	Publisher     SubscriptionPublisher
	Locker        EventLocker
	Metrics       metrics.BillingMetrics
}

// webhookService реализация сервиса для работы с вебхуками
type webhookService struct {
	WebhookDeps
	log *logger.Logger
	now func() time.Time
}

// NewWebhookService создает новый сервис для работы с вебхуками
func NewWebhookService(deps WebhookDeps, log *logger.Logger) WebhookService {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &webhookService{WebhookDeps: deps, log: log, now: time.Now}
}

// errUnlinked событие нельзя связать с пользователем
var errUnlinked = errors.New("event is not linked to a user")

// outcome результат применения события к хранилищу
type outcome struct {
	status  domain.WebhookEventStatus
	reason  string
	notices []domain.WebhookNotice
	changes []domain.SubscriptionChange
}

// newOutcome начинает попытку с эффектами, отложенными прошлой неудачной попыткой
func newOutcome(pending *domain.WebhookEffects) *outcome {
	res := &outcome{status: domain.WebhookEventStatusProcessed}
	if pending != nil {
		res.notices = append(res.notices, pending.Notices...)
		res.changes = append(res.changes, pending.Changes...)
	}
	return res
}

func (o *outcome) skip(reason string) {
	o.status = domain.WebhookEventStatusSkipped
	o.reason = reason
}

func (o *outcome) notify(kind email.Kind, userID uuid.UUID, vars map[string]string) {
	for _, n := range o.notices {
		if n.Kind == string(kind) && n.UserID == userID {
			return
		}
	}
	o.notices = append(o.notices, domain.WebhookNotice{Kind: string(kind), UserID: userID, Vars: vars})
}

func (o *outcome) record(change domain.SubscriptionChange) {
	for _, c := range o.changes {
		if c.EventID == change.EventID && c.Subscription.StripeSubscriptionID == change.Subscription.StripeSubscriptionID {
			return
		}
	}
	o.changes = append(o.changes, change)
}

// effects эффекты, которые нужно сохранить вместе с неудачной попыткой
func (o *outcome) effects() *domain.WebhookEffects {
	e := &domain.WebhookEffects{Notices: o.notices, Changes: o.changes}
	if e.Empty() {
		return nil
	}
	return e
}

// Process обрабатывает вебхук-событие: запись по ID события, применение, уведомления
func (s *webhookService) Process(ctx context.Context, ev *domain.BillingEvent) (*domain.WebhookResult, error) {
	record := &domain.WebhookEvent{
		ExternalID:     ev.ID,
		Type:           ev.Type,
		Status:         domain.WebhookEventStatusPending,
		Payload:        ev.Payload,
		ResourceID:     ev.ResourceID(),
		Provider:       "stripe",
		EventCreatedAt: ev.Created,
	}
	stored, created, err := s.Events.CreateIfAbsent(ctx, record)
	if err != nil {
		s.log.Errorw("Failed to save webhook event", "eventID", ev.ID, "error", err)
		return nil, fmt.Errorf("record webhook event: %w", err)
	}

	if !created {
		if stored.Status.Final() {
			s.log.Infow("Duplicate webhook event", "eventID", ev.ID, "status", stored.Status)
			s.Metrics.IncWebhookEvent(string(ev.Type), "duplicate")
			return &domain.WebhookResult{EventID: ev.ID, Status: stored.Status, Duplicate: true}, nil
		}
		if stored.Status == domain.WebhookEventStatusPending && s.Locker == nil && s.recentlyStarted(stored) {
			s.Metrics.IncWebhookEvent(string(ev.Type), "in_flight")
			return nil, domain.ErrEventInFlight
		}
	}

	release, err := s.lock(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.run(ctx, stored, ev)
}

// ListEvents возвращает список вебхук-событий
func (s *webhookService) ListEvents(ctx context.Context, status domain.WebhookEventStatus, limit, offset int) ([]domain.WebhookEvent, int, error) {
	return s.Events.List(ctx, status, limit, offset)
}

// GetEvent возвращает вебхук-событие по ID
func (s *webhookService) GetEvent(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	return s.Events.GetByID(ctx, id)
}

// Retry повторно обрабатывает вебхук-событие
func (s *webhookService) Retry(ctx context.Context, id uuid.UUID) (*domain.WebhookResult, error) {
	stored, err := s.Events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored.Status != domain.WebhookEventStatusFailed {
		return nil, fmt.Errorf("%w: only failed events can be retried (status %s)", domain.ErrInvalidOperation, stored.Status)
	}
	ev, err := s.Decoder.Decode(stored.Payload)
	if err != nil {
		return nil, err
	}

	release, err := s.lock(ctx, stored.ExternalID)
	if err != nil {
		return nil, err
	}
	defer release()

	s.log.Infow("Retrying webhook event", "eventID", stored.ExternalID, "attempts", stored.AttemptCount)
	return s.run(ctx, stored, ev)
}

func (s *webhookService) recentlyStarted(e *domain.WebhookEvent) bool {
	started := e.CreatedAt
	if e.LastAttempt != nil {
		started = *e.LastAttempt
	}
	return s.now().Sub(started) < inFlightTimeout
}

func (s *webhookService) lock(ctx context.Context, eventID string) (func(), error) {
	if s.Locker == nil {
		return func() {}, nil
	}
	ok, err := s.Locker.Acquire(ctx, eventID)
	if err != nil {
		// Без блокировки продолжаем: от повторов защищают уникальные ключи хранилища
		s.log.Warnw("Webhook lock unavailable", "eventID", eventID, "error", err)
		return func() {}, nil
	}
	if !ok {
		return nil, domain.ErrEventInFlight
	}
	return func() {
		if err := s.Locker.Release(context.WithoutCancel(ctx), eventID); err != nil {
			s.log.Warnw("Failed to release webhook lock", "eventID", eventID, "error", err)
		}
	}, nil
}

// run применяет событие и фиксирует итог в журнале событий
func (s *webhookService) run(ctx context.Context, stored *domain.WebhookEvent, ev *domain.BillingEvent) (*domain.WebhookResult, error) {
	now := s.now()
	stored.AttemptCount++
	stored.LastAttempt = &now
	stored.Status = domain.WebhookEventStatusPending
	if err := s.Events.Update(ctx, stored); err != nil {
		return nil, fmt.Errorf("update webhook event: %w", err)
	}

	res := newOutcome(stored.Pending)
	if err := s.dispatch(ctx, ev, res); err != nil {
		s.fail(ctx, stored, res, err)
		s.log.Errorw("Failed to process webhook event", "eventID", ev.ID, "type", ev.Type, "error", err)
		return nil, fmt.Errorf("process event %s: %w", ev.ID, err)
	}

	processedAt := s.now()
	stored.Status = res.status
	stored.ProcessedAt = &processedAt
	stored.ErrorMessage = res.reason
	stored.Pending = nil
	if err := s.Events.Update(ctx, stored); err != nil {
		stored.ProcessedAt = nil
		s.fail(ctx, stored, res, err)
		return nil, fmt.Errorf("update webhook event: %w", err)
	}
	s.Metrics.IncWebhookEvent(string(ev.Type), string(res.status))
	s.log.Infow("Webhook event handled", "eventID", ev.ID, "type", ev.Type, "status", res.status, "reason", res.reason)

	// Письма и публикация только после фиксации итога, чтобы повтор не отправил их дважды
	for _, n := range res.notices {
		s.Notifier.Notify(ctx, email.Kind(n.Kind), n.UserID, n.Vars)
	}
	for _, change := range res.changes {
		s.Metrics.IncSubscriptionChange(string(change.Subscription.Tier), string(change.Subscription.Status))
		if s.Publisher == nil {
			continue
		}
		if err := s.Publisher.PublishSubscriptionChange(ctx, change); err != nil {
			s.log.Warnw("Failed to publish subscription change", "eventID", ev.ID, "error", err)
		}
	}

	return &domain.WebhookResult{EventID: ev.ID, Status: res.status}, nil
}

// fail помечает попытку неудачной и сохраняет накопленные письма и изменения для повтора
func (s *webhookService) fail(ctx context.Context, stored *domain.WebhookEvent, res *outcome, cause error) {
	stored.Status = domain.WebhookEventStatusFailed
	stored.ErrorMessage = cause.Error()
	stored.Pending = res.effects()
	if err := s.Events.Update(context.WithoutCancel(ctx), stored); err != nil {
		s.log.Errorw("Failed to mark webhook event failed", "eventID", stored.ExternalID, "error", err)
	}
	s.Metrics.IncWebhookEvent(string(stored.Type), "failed")
}

func (s *webhookService) dispatch(ctx context.Context, ev *domain.BillingEvent, res *outcome) error {
	var err error
	switch ev.Type {
	case domain.WebhookEventCheckoutCompleted:
		err = s.handleCheckout(ctx, ev, res)
	case domain.WebhookEventSubscriptionCreated, domain.WebhookEventSubscriptionUpdated, domain.WebhookEventSubscriptionDeleted:
		err = s.handleSubscription(ctx, ev, res)
	case domain.WebhookEventInvoicePaid, domain.WebhookEventInvoicePaymentSucceed:
		err = s.handleInvoicePaid(ctx, ev, res)
	case domain.WebhookEventInvoicePaymentFailed:
		err = s.handleInvoiceFailed(ctx, ev, res)
	default:
		res.skip("unhandled event type")
	}
	if errors.Is(err, errUnlinked) {
		res.skip(err.Error())
		return nil
	}
	return err
}

func (s *webhookService) handleCheckout(ctx context.Context, ev *domain.BillingEvent, res *outcome) error {
	c := ev.Checkout
	if c == nil {
		res.skip("missing checkout session")
		return nil
	}
	user, err := s.findUser(ctx, c.UserID, c.CustomerID, c.CustomerEmail)
	if err != nil {
		return err
	}
	if c.CustomerID != "" && user.StripeCustomerID != c.CustomerID {
		if err := s.Users.SetStripeCustomerID(ctx, user.ID, c.CustomerID); err != nil {
			return fmt.Errorf("link stripe customer: %w", err)
		}
	}

	tier := s.Tiers.Resolve(ctx, c.Tier, c.PriceID)
	restaurantID := parseOptionalUUID(c.RestaurantID)

	if restaurantID != nil {
		claim := &domain.RestaurantClaim{
			RestaurantID:            *restaurantID,
			UserID:                  user.ID,
			StripeCheckoutSessionID: c.SessionID,
			StripeSubscriptionID:    c.SubscriptionID,
			Tier:                    tier,
			Status:                  domain.ClaimStatusActive,
		}
		claimed, err := s.Claims.CreateIfAbsent(ctx, claim)
		if err != nil {
			return fmt.Errorf("create restaurant claim: %w", err)
		}
		if claimed {
			name := ""
			if rest, err := s.Restaurants.GetByID(ctx, *restaurantID); err == nil {
				name = rest.Name
			}
			res.notify(email.KindClaimConfirmed, user.ID, map[string]string{"restaurant_name": name, "tier": string(tier)})
		}
	}

	if c.SubscriptionID == "" {
		return nil
	}
	next := domain.Subscription{
		UserID:               user.ID,
		RestaurantID:         restaurantID,
		StripeSubscriptionID: c.SubscriptionID,
		StripeCustomerID:     c.CustomerID,
		StripePriceID:        c.PriceID,
		Tier:                 tier,
	}
	return s.applySubscription(ctx, ev, next, res)
}

func (s *webhookService) handleSubscription(ctx context.Context, ev *domain.BillingEvent, res *outcome) error {
	snap := ev.Subscription
	if snap == nil {
		res.skip("missing subscription")
		return nil
	}
	status := snap.Status
	if ev.Type == domain.WebhookEventSubscriptionDeleted {
		status = domain.SubscriptionStatusCanceled
	}

	next := domain.Subscription{
		RestaurantID:         parseOptionalUUID(snap.RestaurantID),
		StripeSubscriptionID: snap.ID,
		StripeCustomerID:     snap.CustomerID,
		StripePriceID:        snap.PriceID,
		Tier:                 s.Tiers.Resolve(ctx, snap.Tier, snap.PriceID),
		Status:               status,
		CurrentPeriodStart:   snap.CurrentPeriodStart,
		CurrentPeriodEnd:     snap.CurrentPeriodEnd,
		CancelAtPeriodEnd:    snap.CancelAtPeriodEnd,
		CanceledAt:           snap.CanceledAt,
	}
	if id := parseOptionalUUID(snap.UserID); id != nil {
		next.UserID = *id
	} else if user, err := s.Users.GetByStripeCustomerID(ctx, snap.CustomerID); err == nil {
		next.UserID = user.ID
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("find user by customer: %w", err)
	}
	return s.applySubscription(ctx, ev, next, res)
}

func (s *webhookService) handleInvoicePaid(ctx context.Context, ev *domain.BillingEvent, res *outcome) error {
	inv := ev.Invoice
	if inv == nil {
		res.skip("missing invoice")
		return nil
	}
	sub, userID, err := s.invoiceOwner(ctx, inv)
	if err != nil {
		return err
	}

	payment := &domain.Payment{
		UserID:               userID,
		StripeSubscriptionID: inv.SubscriptionID,
		StripeInvoiceID:      inv.ID,
		AmountCents:          inv.AmountPaid,
		Currency:             inv.Currency,
		Status:               domain.PaymentStatusPaid,
		AttemptCount:         inv.AttemptCount,
		PaidAt:               inv.PaidAt,
	}
	if payment.PaidAt == nil {
		paidAt := ev.Created
		payment.PaidAt = &paidAt
	}
	created, err := s.Payments.Record(ctx, payment)
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	if created {
		s.Metrics.IncPaymentRecorded(string(payment.Status), payment.Currency)
		s.Metrics.ObservePaymentAmount(payment.AmountCents, payment.Currency, string(payment.Status))
		if userID != nil {
			res.notify(email.KindPaymentReceipt, *userID, map[string]string{
				"amount":      email.FormatAmount(inv.AmountPaid, inv.Currency),
				"invoice_url": inv.HostedURL,
			})
		}
	}

	// Оплата после просрочки возвращает подписку в active
	if sub != nil && sub.Status == domain.SubscriptionStatusPastDue && !ev.Created.Before(sub.LastEventAt) {
		next := *sub
		next.Status = domain.SubscriptionStatusActive
		return s.applySubscription(ctx, ev, next, res)
	}
	return nil
}

func (s *webhookService) handleInvoiceFailed(ctx context.Context, ev *domain.BillingEvent, res *outcome) error {
	inv := ev.Invoice
	if inv == nil {
		res.skip("missing invoice")
		return nil
	}
	sub, userID, err := s.invoiceOwner(ctx, inv)
	if err != nil {
		return err
	}

	payment := &domain.Payment{
		UserID:               userID,
		StripeSubscriptionID: inv.SubscriptionID,
		StripeInvoiceID:      inv.ID,
		AmountCents:          inv.AmountDue,
		Currency:             inv.Currency,
		Status:               domain.PaymentStatusFailed,
		AttemptCount:         inv.AttemptCount,
		FailureReason:        inv.FailureMessage,
	}
	created, err := s.Payments.Record(ctx, payment)
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}

	tier := domain.Tier("")
	if sub != nil {
		tier = sub.Tier
	}
	notifyFailed := func() {
		if userID != nil {
			res.notify(email.KindPaymentFailed, *userID, map[string]string{
				"amount":  email.FormatAmount(inv.AmountDue, inv.Currency),
				"tier":    string(tier),
				"attempt": strconv.Itoa(inv.AttemptCount),
			})
		}
	}
	if created {
		s.Metrics.IncPaymentRecorded(string(payment.Status), payment.Currency)
		notifyFailed()
	}

	if sub != nil && sub.Status != domain.SubscriptionStatusPastDue && sub.Status != domain.SubscriptionStatusCanceled &&
		!ev.Created.Before(sub.LastEventAt) {
		next := *sub
		next.Status = domain.SubscriptionStatusPastDue
		if err := s.applySubscription(ctx, ev, next, res); err != nil {
			return err
		}
		notifyFailed()
	}
	return nil
}

// invoiceOwner находит подписку и пользователя счета
func (s *webhookService) invoiceOwner(ctx context.Context, inv *domain.InvoiceSnapshot) (*domain.Subscription, *uuid.UUID, error) {
	var sub *domain.Subscription
	if inv.SubscriptionID != "" {
		found, err := s.Subscriptions.GetByStripeID(ctx, inv.SubscriptionID)
		switch {
		case err == nil:
			sub = found
		case !errors.Is(err, repository.ErrNotFound):
			return nil, nil, fmt.Errorf("get subscription: %w", err)
		}
	}
	if sub != nil && sub.UserID != uuid.Nil {
		id := sub.UserID
		return sub, &id, nil
	}
	user, err := s.Users.GetByStripeCustomerID(ctx, inv.CustomerID)
	switch {
	case err == nil:
		return sub, &user.ID, nil
	case errors.Is(err, repository.ErrNotFound):
		return sub, nil, nil
	default:
		return nil, nil, fmt.Errorf("find user by customer: %w", err)
	}
}

// applySubscription сохраняет подписку, если событие не старее сохраненного состояния,
// и зеркалирует результат на пользователя и ресторан. Устаревшее событие помечает итог как skipped.
func (s *webhookService) applySubscription(ctx context.Context, ev *domain.BillingEvent, next domain.Subscription, res *outcome) error {
	prev, err := s.Subscriptions.GetByStripeID(ctx, next.StripeSubscriptionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("get subscription: %w", err)
	}
	if prev != nil {
		if ev.Created.Before(prev.LastEventAt) {
			res.skip("stale event")
			return nil
		}
		mergeSubscription(&next, prev)
	}
	if next.Status == domain.SubscriptionStatusNone {
		next.Status = domain.SubscriptionStatusActive
	}
	if next.UserID == uuid.Nil {
		return errUnlinked
	}
	next.LastEventAt = ev.Created
	next.LastEventID = ev.ID

	applied, err := s.Subscriptions.UpsertIfNewer(ctx, &next)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	if !applied {
		res.skip("stale event")
		return nil
	}

	// Изменение фиксируется до зеркалирования: при сбое зеркала повтор уже не увидит разницы
	change := domain.SubscriptionChange{
		Subscription: next,
		EventID:      ev.ID,
		EventType:    string(ev.Type),
		OccurredAt:   ev.Created,
	}
	if prev != nil {
		change.PreviousTier = prev.Tier
		change.PreviousStatus = prev.Status
	}
	if change.Changed() {
		res.record(change)
		s.noticeForChange(res, change)
	}
	return s.mirror(ctx, next)
}

// mergeSubscription переносит из сохраненной подписки поля, которых нет в событии
func mergeSubscription(next *domain.Subscription, prev *domain.Subscription) {
	if next.UserID == uuid.Nil {
		next.UserID = prev.UserID
	}
	if next.RestaurantID == nil {
		next.RestaurantID = prev.RestaurantID
	}
	if next.StripeCustomerID == "" {
		next.StripeCustomerID = prev.StripeCustomerID
	}
	if next.StripePriceID == "" {
		next.StripePriceID = prev.StripePriceID
	}
	if next.Tier == "" {
		next.Tier = prev.Tier
	}
	if next.Status == domain.SubscriptionStatusNone {
		next.Status = prev.Status
	}
	if next.CurrentPeriodStart == nil {
		next.CurrentPeriodStart = prev.CurrentPeriodStart
	}
	if next.CurrentPeriodEnd == nil {
		next.CurrentPeriodEnd = prev.CurrentPeriodEnd
	}
	if next.CanceledAt == nil {
		next.CanceledAt = prev.CanceledAt
	}
}

// mirror переносит тариф и статус подписки на пользователя и закрепленный ресторан
func (s *webhookService) mirror(ctx context.Context, sub domain.Subscription) error {
	tier := sub.EffectiveTier()
	if err := s.Users.UpdateSubscription(ctx, sub.UserID, tier, sub.Status); err != nil {
		return fmt.Errorf("mirror subscription to user: %w", err)
	}
	if sub.RestaurantID == nil {
		return nil
	}

	ownerID := sub.UserID
	if err := s.Restaurants.UpdatePartnerState(ctx, *sub.RestaurantID, &ownerID, tier, tier == domain.TierPremium); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warnw("Subscribed restaurant not found", "restaurantID", sub.RestaurantID, "subscriptionID", sub.StripeSubscriptionID)
			return nil
		}
		return fmt.Errorf("mirror subscription to restaurant: %w", err)
	}
	if tier.IsPaid() {
		user, err := s.Users.GetByID(ctx, sub.UserID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if user.Role == domain.RoleUser {
			if err := s.Users.UpdateRole(ctx, user.ID, domain.RoleOwner); err != nil {
				return fmt.Errorf("promote owner: %w", err)
			}
		}
	}
	return nil
}

func (s *webhookService) noticeForChange(res *outcome, c domain.SubscriptionChange) {
	sub := c.Subscription
	vars := map[string]string{
		"tier":          string(sub.Tier),
		"status":        string(sub.Status),
		"previous_tier": string(c.PreviousTier),
	}
	switch {
	case sub.Status == domain.SubscriptionStatusCanceled:
		if vars["previous_tier"] == "" {
			vars["previous_tier"] = string(sub.Tier)
		}
		res.notify(email.KindSubscriptionCanceled, sub.UserID, vars)
	case sub.Status.IsLive() && !c.PreviousStatus.IsLive():
		res.notify(email.KindSubscriptionActivated, sub.UserID, vars)
	case sub.Status == domain.SubscriptionStatusPastDue:
		// о просрочке сообщает письмо payment_failed
	default:
		res.notify(email.KindSubscriptionUpdated, sub.UserID, vars)
	}
}

// findUser ищет пользователя по ID из метаданных, затем по клиенту Stripe, затем по email
func (s *webhookService) findUser(ctx context.Context, userID, customerID, emailAddr string) (*domain.User, error) {
	if id := parseOptionalUUID(userID); id != nil {
		user, err := s.Users.GetByID(ctx, *id)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("get user: %w", err)
		}
	}
	if customerID != "" {
		user, err := s.Users.GetByStripeCustomerID(ctx, customerID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find user by customer: %w", err)
		}
	}
	if normalized, err := domain.NormalizeEmail(emailAddr); err == nil {
		user, err := s.Users.GetByEmail(ctx, normalized)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find user by email: %w", err)
		}
	}
	return nil, errUnlinked
}

func parseOptionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
