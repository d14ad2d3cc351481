package partner

import (
	"context"
	"testing"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/migrations"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.UpPartners(context.Background(), db.DB, "sqlite", logger.NewNop()))
	return db
}

func TestLeadRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewLeadRepository(newTestDB(t), logger.NewNop())

	first := &domain.Lead{RestaurantName: "Pho Katy", ContactName: "Anh Tran", Email: "anh@phokaty.com"}
	second := &domain.Lead{RestaurantName: "Taco Loco", Status: domain.LeadStatusInterested}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	assert.Equal(t, domain.LeadStatusNew, first.Status)

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pho Katy", got.RestaurantName)
	assert.Nil(t, got.LastContactedAt)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	leads, total, err := repo.List(ctx, domain.LeadFilter{Status: domain.LeadStatusNew})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, leads, 1)
	assert.Equal(t, first.ID, leads[0].ID)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkContacted(ctx, []uuid.UUID{first.ID, second.ID}, at))

	got, err = repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusContacted, got.Status)
	require.NotNil(t, got.LastContactedAt)
	assert.True(t, got.LastContactedAt.Equal(at))

	got, err = repo.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusInterested, got.Status, "only new leads move to contacted")
}

func TestCampaignRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	leads := NewLeadRepository(db, logger.NewNop())
	repo := NewCampaignRepository(db, logger.NewNop())

	lead := &domain.Lead{RestaurantName: "Pho Katy", Email: "anh@phokaty.com"}
	require.NoError(t, leads.Create(ctx, lead))

	c := &domain.OutreachCampaign{Name: "Spring", Channel: domain.ChannelEmail, Subject: "Hi", Template: "Hello {{name}}"}
	require.NoError(t, repo.Create(ctx, c))
	assert.Equal(t, domain.CampaignStatusDraft, c.Status)

	c.Status = domain.CampaignStatusSent
	c.SentCount = 1
	require.NoError(t, repo.Update(ctx, c))

	msg := &domain.OutreachMessage{
		CampaignID: c.ID, LeadID: lead.ID, Channel: domain.ChannelEmail,
		Recipient: lead.Email, Body: "Hello Anh", Status: domain.MessageStatusDraft,
	}
	require.NoError(t, repo.SaveMessage(ctx, msg))
	sentAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg.Status = domain.MessageStatusSent
	msg.SentAt = &sentAt
	require.NoError(t, repo.UpdateMessage(ctx, msg))
	assert.ErrorIs(t, repo.UpdateMessage(ctx, &domain.OutreachMessage{ID: uuid.New()}), repository.ErrNotFound)

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusSent, got.Status)
	assert.Equal(t, 1, got.SentCount)

	msgs, err := repo.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello Anh", msgs[0].Body)
	assert.Equal(t, domain.MessageStatusSent, msgs[0].Status)
	require.NotNil(t, msgs[0].SentAt)

	list, total, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)
}

func TestPartnershipTierRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPartnershipTierRepository(newTestDB(t), logger.NewNop())

	pro := &domain.PartnershipTier{
		Tier: domain.TierPro, DisplayName: "Pro", MonthlyPriceCents: 4900,
		StripePriceID: "price_pro", Features: []string{"analytics"}, Active: true,
	}
	require.NoError(t, repo.Upsert(ctx, pro))
	firstID := pro.ID

	pro.ID = uuid.Nil
	pro.MonthlyPriceCents = 5900
	require.NoError(t, repo.Upsert(ctx, pro))
	assert.Equal(t, firstID, pro.ID, "upsert keeps the row for the same tier")

	got, err := repo.GetByPriceID(ctx, "price_pro")
	require.NoError(t, err)
	assert.Equal(t, int64(5900), got.MonthlyPriceCents)
	assert.Equal(t, []string{"analytics"}, got.Features)

	_, err = repo.GetByPriceID(ctx, "price_missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, &domain.PartnershipTier{Tier: domain.TierBasic, DisplayName: "Basic", MonthlyPriceCents: 1900}))
	active, err := repo.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	all, err := repo.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.TierBasic, all[0].Tier)
}

func TestPartnerRestaurantRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPartnerRestaurantRepository(newTestDB(t), logger.NewNop())

	p := &domain.PartnerRestaurant{Name: "Pho Katy", Phone: "281-555-0101"}
	require.NoError(t, repo.Create(ctx, p))

	catalogID := uuid.New()
	require.NoError(t, repo.SetCatalogLink(ctx, p.ID, catalogID))
	assert.ErrorIs(t, repo.SetCatalogLink(ctx, uuid.New(), catalogID), repository.ErrNotFound)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].CatalogRestaurantID)
	assert.Equal(t, catalogID, *list[0].CatalogRestaurantID)
}
