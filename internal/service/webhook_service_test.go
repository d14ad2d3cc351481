package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/email"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/internal/repository/memory"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg email.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) Provider() string { return "test" }

func (r *recordingSender) tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, m := range r.sent {
		out = append(out, m.Tag)
	}
	return out
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []domain.SubscriptionChange
}

func (p *recordingPublisher) PublishSubscriptionChange(_ context.Context, c domain.SubscriptionChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

type staticTiers map[string]domain.Tier

func (s staticTiers) Resolve(_ context.Context, fromMetadata domain.Tier, priceID string) domain.Tier {
	if t, ok := s[priceID]; ok {
		return t
	}
	if fromMetadata.IsPaid() {
		return fromMetadata
	}
	return ""
}

type eventDecoder map[string]*domain.BillingEvent

func (d eventDecoder) Decode(payload []byte) (*domain.BillingEvent, error) {
	ev, ok := d[string(payload)]
	if !ok {
		return nil, domain.ErrWebhookValidationFailed
	}
	return ev, nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (bool, error) { return false, nil }
func (busyLocker) Release(context.Context, string) error         { return nil }

// flakySubscriptions отказывает в записи, пока fail == true
type flakySubscriptions struct {
	repository.SubscriptionRepository
	fail bool
}

func (f *flakySubscriptions) UpsertIfNewer(ctx context.Context, sub *domain.Subscription) (bool, error) {
	if f.fail {
		return false, errors.New("connection reset")
	}
	return f.SubscriptionRepository.UpsertIfNewer(ctx, sub)
}

// flakyUsers отказывает в зеркалировании подписки, пока fail == true
type flakyUsers struct {
	repository.UserRepository
	fail bool
}

func (f *flakyUsers) UpdateSubscription(ctx context.Context, id uuid.UUID, tier domain.Tier, status domain.SubscriptionStatus) error {
	if f.fail {
		return errors.New("deadlock detected")
	}
	return f.UserRepository.UpdateSubscription(ctx, id, tier, status)
}

type webhookFixture struct {
	store     *memory.Store
	sender    *recordingSender
	publisher *recordingPublisher
	decoder   eventDecoder
	svc       WebhookService
	user      *domain.User
	rest      *domain.Restaurant
}

func newWebhookFixture(t *testing.T, mutate func(*WebhookDeps)) *webhookFixture {
	t.Helper()
	ctx := context.Background()
	f := &webhookFixture{
		store:     memory.NewStore(),
		sender:    &recordingSender{},
		publisher: &recordingPublisher{},
		decoder:   eventDecoder{},
	}
	f.user = &domain.User{Email: "owner@phokaty.com", Name: "Anh", Role: domain.RoleUser}
	require.NoError(t, f.store.Users().Create(ctx, f.user))
	f.rest = &domain.Restaurant{Name: "Pho Katy", Slug: "pho-katy", Active: true}
	require.NoError(t, f.store.Restaurants().Create(ctx, f.rest))

	log := logger.NewNop()
	deps := WebhookDeps{
		Events:        f.store.WebhookEvents(),
		Subscriptions: f.store.Subscriptions(),
		Payments:      f.store.Payments(),
		Claims:        f.store.Claims(),
		Users:         f.store.Users(),
		Restaurants:   f.store.Restaurants(),
		Tiers:         staticTiers{"price_basic": domain.TierBasic, "price_pro": domain.TierPro, "price_premium": domain.TierPremium},
		Decoder:       f.decoder,
		Notifier:      NewNotifier(f.sender, f.store.Users(), config.AppConfig{PublicURL: "https://ekaty.com"}, config.EmailConfig{SenderName: "eKaty"}, log),
		Publisher:     f.publisher,
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.svc = NewWebhookService(deps, log)
	return f
}

func (f *webhookFixture) checkoutEvent(id string, at time.Time, tier domain.Tier) *domain.BillingEvent {
	ev := &domain.BillingEvent{
		ID: id, Type: domain.WebhookEventCheckoutCompleted, Created: at, Payload: []byte(id),
		Checkout: &domain.CheckoutSnapshot{
			SessionID: "cs_" + id, CustomerID: "cus_1", SubscriptionID: "sub_1",
			UserID: f.user.ID.String(), RestaurantID: f.rest.ID.String(), Tier: tier,
		},
	}
	f.decoder[id] = ev
	return ev
}

func (f *webhookFixture) subscriptionEvent(id string, typ domain.WebhookEventType, at time.Time, status domain.SubscriptionStatus, priceID string) *domain.BillingEvent {
	ev := &domain.BillingEvent{
		ID: id, Type: typ, Created: at, Payload: []byte(id),
		Subscription: &domain.SubscriptionSnapshot{
			ID: "sub_1", CustomerID: "cus_1", Status: status, PriceID: priceID,
			UserID: f.user.ID.String(), RestaurantID: f.rest.ID.String(),
		},
	}
	f.decoder[id] = ev
	return ev
}

func invoiceEvent(id string, typ domain.WebhookEventType, at time.Time, attempt int) *domain.BillingEvent {
	return &domain.BillingEvent{
		ID: id, Type: typ, Created: at, Payload: []byte(id),
		Invoice: &domain.InvoiceSnapshot{
			ID: "in_1", SubscriptionID: "sub_1", CustomerID: "cus_1",
			AmountPaid: 4900, AmountDue: 4900, Currency: "usd", AttemptCount: attempt,
		},
	}
}

func (f *webhookFixture) reloadUser(t *testing.T) *domain.User {
	t.Helper()
	u, err := f.store.Users().GetByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	return u
}

func (f *webhookFixture) reloadRestaurant(t *testing.T) *domain.Restaurant {
	t.Helper()
	r, err := f.store.Restaurants().GetByID(context.Background(), f.rest.ID)
	require.NoError(t, err)
	return r
}

func TestWebhookService_CheckoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t, nil)
	ev := f.checkoutEvent("evt_checkout", time.Now().Add(-time.Minute), domain.TierPremium)

	res, err := f.svc.Process(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusProcessed, res.Status)
	assert.False(t, res.Duplicate)

	user := f.reloadUser(t)
	assert.Equal(t, domain.TierPremium, user.SubscriptionTier)
	assert.Equal(t, domain.SubscriptionStatusActive, user.SubscriptionStatus)
	assert.Equal(t, "cus_1", user.StripeCustomerID)
	assert.Equal(t, domain.RoleOwner, user.Role)

	rest := f.reloadRestaurant(t)
	assert.Equal(t, domain.TierPremium, rest.Tier)
	assert.True(t, rest.Featured)
	require.NotNil(t, rest.OwnerID)
	assert.Equal(t, f.user.ID, *rest.OwnerID)

	claims, err := f.store.Claims().ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, claims, 1)
	assert.ElementsMatch(t, []string{"claim_confirmed", "subscription_activated"}, f.sender.tags())
	require.Len(t, f.publisher.changes, 1)
	assert.Equal(t, domain.TierPremium, f.publisher.changes[0].Subscription.Tier)

	// Повтор того же события ничего не пишет и не отправляет
	res, err = f.svc.Process(ctx, ev)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, f.sender.tags(), 2)
	assert.Len(t, f.publisher.changes, 1)
	claims, err = f.store.Claims().ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, claims, 1)
}

func TestWebhookService_StaleEventIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t, nil)
	t0 := time.Now().Add(-time.Hour)

	_, err := f.svc.Process(ctx, f.subscriptionEvent("evt_2", domain.WebhookEventSubscriptionUpdated, t0.Add(2*time.Minute), domain.SubscriptionStatusPastDue, "price_pro"))
	require.NoError(t, err)

	res, err := f.svc.Process(ctx, f.subscriptionEvent("evt_1", domain.WebhookEventSubscriptionCreated, t0, domain.SubscriptionStatusActive, "price_basic"))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusSkipped, res.Status)

	user := f.reloadUser(t)
	assert.Equal(t, domain.TierPro, user.SubscriptionTier, "past_due keeps the paid tier")
	assert.Equal(t, domain.SubscriptionStatusPastDue, user.SubscriptionStatus)

	sub, err := f.store.Subscriptions().GetByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "evt_2", sub.LastEventID)

	events, total, err := f.svc.ListEvents(ctx, domain.WebhookEventStatusSkipped, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "stale event", events[0].ErrorMessage)
}

func TestWebhookService_EqualTimestampApplies(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t, nil)
	at := time.Now().Add(-time.Hour)

	_, err := f.svc.Process(ctx, f.subscriptionEvent("evt_a", domain.WebhookEventSubscriptionCreated, at, domain.SubscriptionStatusActive, "price_basic"))
	require.NoError(t, err)
	res, err := f.svc.Process(ctx, f.subscriptionEvent("evt_b", domain.WebhookEventSubscriptionUpdated, at, domain.SubscriptionStatusActive, "price_pro"))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusProcessed, res.Status)
	assert.Equal(t, domain.TierPro, f.reloadUser(t).SubscriptionTier)
}

func TestWebhookService_DeletedCancelsAndFallsBackToFree(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t, nil)
	t0 := time.Now().Add(-time.Hour)

	_, err := f.svc.Process(ctx, f.subscriptionEvent("evt_1", domain.WebhookEventSubscriptionCreated, t0, domain.SubscriptionStatusActive, "price_premium"))
	require.NoError(t, err)
	assert.True(t, f.reloadRestaurant(t).Featured)

	_, err = f.svc.Process(ctx, f.subscriptionEvent("evt_2", domain.WebhookEventSubscriptionDeleted, t0.Add(time.Minute), domain.SubscriptionStatusActive, "price_premium"))
	require.NoError(t, err)

	user := f.reloadUser(t)
	assert.Equal(t, domain.TierFree, user.SubscriptionTier)
	assert.Equal(t, domain.SubscriptionStatusCanceled, user.SubscriptionStatus)
	rest := f.reloadRestaurant(t)
	assert.Equal(t, domain.TierFree, rest.Tier)
	assert.False(t, rest.Featured)
	assert.Equal(t, []string{"subscription_activated", "subscription_canceled"}, f.sender.tags())
}

func TestWebhookService_InvoiceFailureAndRecovery(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t, nil)
	t0 := time.Now().Add(-time.Hour)

	_, err := f.svc.Process(ctx, f.subscriptionEvent("evt_1", domain.WebhookEventSubscriptionCreated, t0, domain.SubscriptionStatusActive, "price_pro"))
	require.NoError(t, err)

	_, err = f.svc.Process(ctx, invoiceEvent("evt_fail", domain.WebhookEventInvoicePaymentFailed, t0.Add(time.Minute), 1))
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPastDue, f.reloadUser(t).SubscriptionStatus)
	assert.Equal(t, domain.TierPro, f.reloadUser(t).SubscriptionTier)

	_, err = f.svc.Process(ctx, invoiceEvent("evt_paid", domain.WebhookEventInvoicePaid, t0.Add(2*time.Minute), 2))
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, f.reloadUser(t).SubscriptionStatus)

	// Повтор оплаты не создает второй платеж
	_, err = f.svc.Process(ctx, invoiceEvent("evt_paid_again", domain.WebhookEventInvoicePaymentSucceed, t0.Add(3*time.Minute), 2))
	require.NoError(t, err)

	payments, err := f.store.Payments().ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
	assert.Equal(t, []string{"subscription_activated", "payment_failed", "payment_receipt", "subscription_updated"}, f.sender.tags())
}

func TestWebhookService_InFlightEventConflicts(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t, nil)
	ev := f.subscriptionEvent("evt_busy", domain.WebhookEventSubscriptionCreated, time.Now(), domain.SubscriptionStatusActive, "price_pro")

	_, _, err := f.store.WebhookEvents().CreateIfAbsent(ctx, &domain.WebhookEvent{
		ExternalID: "evt_busy", Type: ev.Type, Status: domain.WebhookEventStatusPending, Provider: "stripe",
	})
	require.NoError(t, err)

	_, err = f.svc.Process(ctx, ev)
	assert.ErrorIs(t, err, domain.ErrEventInFlight)
	assert.Empty(t, f.sender.tags())
}

func TestWebhookService_LockedByAnotherInstance(t *testing.T) {
	f := newWebhookFixture(t, func(d *WebhookDeps) { d.Locker = busyLocker{} })
	ev := f.subscriptionEvent("evt_locked", domain.WebhookEventSubscriptionCreated, time.Now(), domain.SubscriptionStatusActive, "price_pro")

	_, err := f.svc.Process(context.Background(), ev)
	assert.ErrorIs(t, err, domain.ErrEventInFlight)
}

func TestWebhookService_StorageFailureMarksFailedAndRetries(t *testing.T) {
	ctx := context.Background()
	flaky := &flakySubscriptions{fail: true}
	f := newWebhookFixture(t, func(d *WebhookDeps) {
		flaky.SubscriptionRepository = d.Subscriptions
		d.Subscriptions = flaky
	})
	ev := f.subscriptionEvent("evt_1", domain.WebhookEventSubscriptionCreated, time.Now().Add(-time.Minute), domain.SubscriptionStatusActive, "price_pro")

	_, err := f.svc.Process(ctx, ev)
	require.Error(t, err)
	assert.Empty(t, f.sender.tags())

	failed, total, err := f.svc.ListEvents(ctx, domain.WebhookEventStatusFailed, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Contains(t, failed[0].ErrorMessage, "connection reset")

	flaky.fail = false
	res, err := f.svc.Retry(ctx, failed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusProcessed, res.Status)
	assert.Equal(t, domain.TierPro, f.reloadUser(t).SubscriptionTier)
	assert.Equal(t, []string{"subscription_activated"}, f.sender.tags())

	stored, err := f.svc.GetEvent(ctx, failed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.AttemptCount)

	_, err = f.svc.Retry(ctx, failed[0].ID)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}

func TestWebhookService_EmailFailureDoesNotFailEvent(t *testing.T) {
	f := newWebhookFixture(t, nil)
	f.sender.err = errors.New("provider down")

	res, err := f.svc.Process(context.Background(),
		f.subscriptionEvent("evt_1", domain.WebhookEventSubscriptionCreated, time.Now(), domain.SubscriptionStatusActive, "price_basic"))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusProcessed, res.Status)
	assert.Equal(t, domain.TierBasic, f.reloadUser(t).SubscriptionTier)
}

func TestWebhookService_UnlinkedEventIsSkipped(t *testing.T) {
	f := newWebhookFixture(t, nil)
	ev := &domain.BillingEvent{
		ID: "evt_orphan", Type: domain.WebhookEventSubscriptionUpdated, Created: time.Now(), Payload: []byte("x"),
		Subscription: &domain.SubscriptionSnapshot{ID: "sub_orphan", CustomerID: "cus_unknown", Status: domain.SubscriptionStatusActive},
	}

	res, err := f.svc.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusSkipped, res.Status)
}

func TestWebhookService_PlanChangeFollowsPrice(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t, nil)
	t0 := time.Now().Add(-time.Hour)

	created := f.subscriptionEvent("evt_1", domain.WebhookEventSubscriptionCreated, t0, domain.SubscriptionStatusActive, "price_basic")
	created.Subscription.Tier = domain.TierBasic
	_, err := f.svc.Process(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, domain.TierBasic, f.reloadUser(t).SubscriptionTier)

	// Метаданные остаются от checkout, тариф определяет новая цена
	upgraded := f.subscriptionEvent("evt_2", domain.WebhookEventSubscriptionUpdated, t0.Add(time.Minute), domain.SubscriptionStatusActive, "price_premium")
	upgraded.Subscription.Tier = domain.TierBasic
	res, err := f.svc.Process(ctx, upgraded)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusProcessed, res.Status)

	sub, err := f.store.Subscriptions().GetByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierPremium, sub.Tier)
	assert.Equal(t, domain.TierPremium, f.reloadUser(t).SubscriptionTier)
	rest := f.reloadRestaurant(t)
	assert.Equal(t, domain.TierPremium, rest.Tier)
	assert.True(t, rest.Featured)

	downgraded := f.subscriptionEvent("evt_3", domain.WebhookEventSubscriptionUpdated, t0.Add(2*time.Minute), domain.SubscriptionStatusActive, "price_pro")
	downgraded.Subscription.Tier = domain.TierBasic
	_, err = f.svc.Process(ctx, downgraded)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, f.reloadUser(t).SubscriptionTier)
	assert.False(t, f.reloadRestaurant(t).Featured)

	require.Len(t, f.publisher.changes, 3)
	assert.Equal(t, domain.TierPremium, f.publisher.changes[1].Subscription.Tier)
	assert.Equal(t, domain.TierBasic, f.publisher.changes[1].PreviousTier)
}

func TestWebhookService_RetryKeepsClaimEmail(t *testing.T) {
	ctx := context.Background()
	flaky := &flakySubscriptions{fail: true}
	f := newWebhookFixture(t, func(d *WebhookDeps) {
		flaky.SubscriptionRepository = d.Subscriptions
		d.Subscriptions = flaky
	})
	ev := f.checkoutEvent("evt_checkout", time.Now().Add(-time.Minute), domain.TierPro)

	_, err := f.svc.Process(ctx, ev)
	require.Error(t, err)
	assert.Empty(t, f.sender.tags())

	failed, _, err := f.svc.ListEvents(ctx, domain.WebhookEventStatusFailed, 10, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].Pending)
	require.Len(t, failed[0].Pending.Notices, 1)
	assert.Equal(t, "claim_confirmed", failed[0].Pending.Notices[0].Kind)

	flaky.fail = false
	res, err := f.svc.Retry(ctx, failed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusProcessed, res.Status)
	assert.ElementsMatch(t, []string{"claim_confirmed", "subscription_activated"}, f.sender.tags())

	stored, err := f.svc.GetEvent(ctx, failed[0].ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Pending)
}

func TestWebhookService_RedeliveryAfterMirrorFailure(t *testing.T) {
	ctx := context.Background()
	users := &flakyUsers{fail: true}
	f := newWebhookFixture(t, func(d *WebhookDeps) {
		users.UserRepository = d.Users
		d.Users = users
	})
	ev := f.subscriptionEvent("evt_1", domain.WebhookEventSubscriptionCreated, time.Now().Add(-time.Minute), domain.SubscriptionStatusActive, "price_pro")

	_, err := f.svc.Process(ctx, ev)
	require.Error(t, err)
	sub, err := f.store.Subscriptions().GetByStripeID(ctx, "sub_1")
	require.NoError(t, err, "subscription row was written before the mirror failed")
	assert.Equal(t, domain.TierPro, sub.Tier)
	assert.Empty(t, f.sender.tags())
	assert.Empty(t, f.publisher.changes)

	// Stripe доставляет событие повторно
	users.fail = false
	res, err := f.svc.Process(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusProcessed, res.Status)
	assert.Equal(t, domain.TierPro, f.reloadUser(t).SubscriptionTier)
	assert.Equal(t, []string{"subscription_activated"}, f.sender.tags())
	require.Len(t, f.publisher.changes, 1)
	assert.Equal(t, domain.SubscriptionStatusNone, f.publisher.changes[0].PreviousStatus)
}

func TestWebhookService_RetryKeepsPaymentReceipt(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t, nil)
	t0 := time.Now().Add(-time.Hour)

	_, err := f.svc.Process(ctx, f.subscriptionEvent("evt_1", domain.WebhookEventSubscriptionCreated, t0, domain.SubscriptionStatusPastDue, "price_pro"))
	require.NoError(t, err)

	flaky := &flakySubscriptions{SubscriptionRepository: f.store.Subscriptions(), fail: true}
	f.svc.(*webhookService).Subscriptions = flaky
	paid := invoiceEvent("evt_paid", domain.WebhookEventInvoicePaid, t0.Add(time.Minute), 2)
	_, err = f.svc.Process(ctx, paid)
	require.Error(t, err)

	flaky.fail = false
	_, err = f.svc.Process(ctx, paid)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, f.reloadUser(t).SubscriptionStatus)
	assert.Equal(t, []string{"subscription_activated", "payment_receipt", "subscription_updated"}, f.sender.tags())

	payments, err := f.store.Payments().ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}
