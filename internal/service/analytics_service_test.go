package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/export"
	"github.com/Dhoini/ekaty/internal/repository/memory"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenPublisher struct{ calls int }

func (p *brokenPublisher) PublishAnalyticsEvents(context.Context, []domain.AnalyticsEvent) error {
	p.calls++
	return errors.New("kafka: leader not available")
}

func newAnalyticsService(store *memory.Store, pub AnalyticsPublisher) AnalyticsService {
	return NewAnalyticsService(AnalyticsDeps{
		Events:        store.Analytics(),
		Users:         store.Users(),
		Restaurants:   store.Restaurants(),
		Reviews:       store.Reviews(),
		Favorites:     store.Favorites(),
		Subscriptions: store.Subscriptions(),
		WebhookEvents: store.WebhookEvents(),
		Tiers:         store.PartnershipTiers(),
		Publisher:     pub,
	}, logger.NewNop())
}

func TestAnalyticsService_TrackFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pub := &brokenPublisher{}
	svc := newAnalyticsService(store, pub)
	restID := uuid.New()

	err := svc.Track(ctx, nil, domain.TrackRequest{
		Name:         domain.EventRestaurantView,
		SessionID:    "s-1",
		RestaurantID: restID.String(),
		Properties:   map[string]string{"source": "map", "q": `pho "best"`},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pub.calls)

	events, err := store.Analytics().ListEvents(ctx, domain.AnalyticsFilter{From: time.Now().Add(-time.Hour), To: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].RestaurantID)
	assert.Equal(t, restID, *events[0].RestaurantID)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportEvents(ctx, &buf, domain.AnalyticsFilter{To: time.Now().Add(time.Hour)}))
	rows, err := export.ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, `q="pho \"best\"";source="map"`, rows[0]["properties"])
	assert.Equal(t, domain.EventRestaurantView, rows[0]["name"])

	assert.ErrorIs(t, svc.Track(ctx, nil, domain.TrackRequest{Name: "drop_table"}), domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.Track(ctx, nil, domain.TrackRequest{Name: domain.EventSearch, RestaurantID: "nope"}), domain.ErrInvalidInput)
}

func TestAnalyticsService_Dashboard(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedRestaurants(t, store)
	svc := newAnalyticsService(store, nil)

	for _, in := range []domain.PartnershipTier{
		{Tier: domain.TierBasic, MonthlyPriceCents: 2900, Active: true},
		{Tier: domain.TierPro, MonthlyPriceCents: 7900, Active: true},
	} {
		tier := in
		require.NoError(t, store.PartnershipTiers().Upsert(ctx, &tier))
	}
	for i, sub := range []domain.Subscription{
		{Tier: domain.TierBasic, Status: domain.SubscriptionStatusActive},
		{Tier: domain.TierBasic, Status: domain.SubscriptionStatusTrialing},
		{Tier: domain.TierPro, Status: domain.SubscriptionStatusPastDue},
		{Tier: domain.TierPro, Status: domain.SubscriptionStatusCanceled},
	} {
		s := sub
		s.StripeSubscriptionID = "sub_" + string(rune('a'+i))
		s.UserID = uuid.New()
		_, err := store.Subscriptions().UpsertIfNewer(ctx, &s)
		require.NoError(t, err)
	}
	require.NoError(t, svc.Track(ctx, nil, domain.TrackRequest{Name: domain.EventSearch}))
	require.NoError(t, svc.Track(ctx, nil, domain.TrackRequest{Name: domain.EventSearch}))

	d, err := svc.Dashboard(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, d.Totals.Restaurants)
	assert.Equal(t, int64(2*2900+7900), d.MRRCents)
	assert.Equal(t, []domain.TierCount{{Tier: domain.TierBasic, Count: 2}, {Tier: domain.TierPro, Count: 1}}, d.Subscriptions)
	require.Len(t, d.EventsByName, 1)
	assert.Equal(t, domain.NameCount{Name: domain.EventSearch, Count: 2}, d.EventsByName[0])
	assert.WithinDuration(t, d.To.AddDate(0, 0, -30), d.From, time.Second)

	now := time.Now()
	_, err = svc.Dashboard(ctx, now.AddDate(-2, 0, 0), now)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.Dashboard(ctx, now, now.Add(-time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAnalyticsService_LaunchMetrics(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newAnalyticsService(store, nil)
	day := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")

	_, err := svc.RecordLaunchMetric(ctx, domain.LaunchMetricInput{Name: "signups", Value: 10, Day: day})
	require.NoError(t, err)
	m, err := svc.RecordLaunchMetric(ctx, domain.LaunchMetricInput{Name: "signups", Value: 12, Day: day, Notes: " corrected "})
	require.NoError(t, err)
	assert.Equal(t, "corrected", m.Notes)

	metrics, err := svc.LaunchMetrics(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, 12.0, metrics[0].Value)

	_, err = svc.RecordLaunchMetric(ctx, domain.LaunchMetricInput{Name: "signups", Day: "17/10/2026"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.RecordLaunchMetric(ctx, domain.LaunchMetricInput{Name: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	empty, err := newAnalyticsService(memory.NewStore(), nil).LaunchMetrics(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.NotNil(t, empty)
}
