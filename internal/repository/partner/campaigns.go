package partner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CampaignRepository кампании рассылки и их сообщения
type CampaignRepository struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewCampaignRepository создает репозиторий кампаний
func NewCampaignRepository(db *sqlx.DB, log *logger.Logger) *CampaignRepository {
	return &CampaignRepository{db: db, log: log}
}

var _ repository.CampaignRepository = (*CampaignRepository)(nil)

const campaignColumns = `id, name, channel, subject, template, target_status, status, sent_count,
	failed_count, sent_at, created_at, updated_at`

// Create сохраняет новую кампанию
func (r *CampaignRepository) Create(ctx context.Context, c *domain.OutreachCampaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = domain.CampaignStatusDraft
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	query := `
		INSERT INTO outreach_campaigns (` + campaignColumns + `)
		VALUES (:id, :name, :channel, :subject, :template, :target_status, :status, :sent_count,
			:failed_count, :sent_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		r.log.Errorw("Failed to create campaign", "error", err, "name", c.Name)
		return fmt.Errorf("repository: failed to create campaign: %w", err)
	}
	return nil
}

// Update сохраняет статус и счетчики кампании
func (r *CampaignRepository) Update(ctx context.Context, c *domain.OutreachCampaign) error {
	c.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE outreach_campaigns SET
			name = :name, subject = :subject, template = :template, target_status = :target_status,
			status = :status, sent_count = :sent_count, failed_count = :failed_count, sent_at = :sent_at,
			updated_at = :updated_at
		WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, c)
	if err != nil {
		return fmt.Errorf("repository: failed to update campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetByID возвращает кампанию по ID
func (r *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutreachCampaign, error) {
	var c domain.OutreachCampaign
	query := r.db.Rebind(`SELECT ` + campaignColumns + ` FROM outreach_campaigns WHERE id = ?`)
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		return nil, notFound(err, "get campaign")
	}
	return &c, nil
}

// List возвращает кампании, новые первыми
func (r *CampaignRepository) List(ctx context.Context, limit, offset int) ([]domain.OutreachCampaign, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM outreach_campaigns`); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count campaigns: %w", err)
	}
	query := `SELECT ` + campaignColumns + ` FROM outreach_campaigns ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	out := []domain.OutreachCampaign{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to list campaigns: %w", err)
	}
	return out, total, nil
}

const messageColumns = `id, campaign_id, lead_id, channel, recipient, subject, body, status, error, sent_at, created_at`

// SaveMessage сохраняет сообщение кампании
func (r *CampaignRepository) SaveMessage(ctx context.Context, m *domain.OutreachMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO outreach_messages (` + messageColumns + `)
		VALUES (:id, :campaign_id, :lead_id, :channel, :recipient, :subject, :body, :status, :error, :sent_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("repository: failed to save outreach message: %w", err)
	}
	return nil
}

// UpdateMessage сохраняет итог отправки сообщения
func (r *CampaignRepository) UpdateMessage(ctx context.Context, m *domain.OutreachMessage) error {
	query := `UPDATE outreach_messages SET status = :status, error = :error, sent_at = :sent_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, m)
	if err != nil {
		return fmt.Errorf("repository: failed to update outreach message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListMessages возвращает сообщения кампании
func (r *CampaignRepository) ListMessages(ctx context.Context, campaignID uuid.UUID) ([]domain.OutreachMessage, error) {
	out := []domain.OutreachMessage{}
	query := r.db.Rebind(`SELECT ` + messageColumns + ` FROM outreach_messages WHERE campaign_id = ? ORDER BY created_at ASC`)
	if err := r.db.SelectContext(ctx, &out, query, campaignID); err != nil {
		return nil, fmt.Errorf("repository: failed to list outreach messages: %w", err)
	}
	return out, nil
}

// PartnershipTierRepository описания партнерских тарифов
type PartnershipTierRepository struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPartnershipTierRepository создает репозиторий тарифов
func NewPartnershipTierRepository(db *sqlx.DB, log *logger.Logger) *PartnershipTierRepository {
	return &PartnershipTierRepository{db: db, log: log}
}

var _ repository.PartnershipTierRepository = (*PartnershipTierRepository)(nil)

// tierRow строка таблицы тарифов; список функций хранится как JSON
type tierRow struct {
	domain.PartnershipTier
	FeaturesJSON string `db:"features"`
}

func (row tierRow) toDomain() (domain.PartnershipTier, error) {
	t := row.PartnershipTier
	t.Features = []string{}
	if row.FeaturesJSON != "" {
		if err := json.Unmarshal([]byte(row.FeaturesJSON), &t.Features); err != nil {
			return t, fmt.Errorf("repository: decode tier features: %w", err)
		}
	}
	return t, nil
}

const tierColumns = `id, tier, display_name, monthly_price_cents, stripe_price_id, features, active, created_at, updated_at`

func (r *PartnershipTierRepository) selectTiers(ctx context.Context, query string, args ...any) ([]domain.PartnershipTier, error) {
	var rows []tierRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("repository: failed to list tiers: %w", err)
	}
	out := make([]domain.PartnershipTier, 0, len(rows))
	for _, row := range rows {
		t, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// List возвращает тарифы по возрастанию цены
func (r *PartnershipTierRepository) List(ctx context.Context, activeOnly bool) ([]domain.PartnershipTier, error) {
	query := `SELECT ` + tierColumns + ` FROM partnership_tiers`
	var args []any
	if activeOnly {
		query += ` WHERE active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY monthly_price_cents ASC`
	return r.selectTiers(ctx, query, args...)
}

// Upsert создает или обновляет тариф по его коду
func (r *PartnershipTierRepository) Upsert(ctx context.Context, t *domain.PartnershipTier) error {
	features := t.Features
	if features == nil {
		features = []string{}
	}
	encoded, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("repository: encode tier features: %w", err)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	// ON CONFLICT ... DO UPDATE поддерживают и PostgreSQL, и SQLite
	query := `
		INSERT INTO partnership_tiers (` + tierColumns + `)
		VALUES (:id, :tier, :display_name, :monthly_price_cents, :stripe_price_id, :features, :active, :created_at, :updated_at)
		ON CONFLICT (tier) DO UPDATE SET
			display_name = excluded.display_name,
			monthly_price_cents = excluded.monthly_price_cents,
			stripe_price_id = excluded.stripe_price_id,
			features = excluded.features,
			active = excluded.active,
			updated_at = excluded.updated_at`
	row := tierRow{PartnershipTier: *t, FeaturesJSON: string(encoded)}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("repository: failed to upsert tier: %w", err)
	}

	var stored tierRow
	if err := r.db.GetContext(ctx, &stored,
		r.db.Rebind(`SELECT `+tierColumns+` FROM partnership_tiers WHERE tier = ?`), t.Tier); err != nil {
		return notFound(err, "get tier")
	}
	saved, err := stored.toDomain()
	if err != nil {
		return err
	}
	*t = saved
	return nil
}

// GetByPriceID возвращает тариф по ID цены Stripe
func (r *PartnershipTierRepository) GetByPriceID(ctx context.Context, priceID string) (*domain.PartnershipTier, error) {
	if priceID == "" {
		return nil, repository.ErrNotFound
	}
	tiers, err := r.selectTiers(ctx, `SELECT `+tierColumns+` FROM partnership_tiers WHERE stripe_price_id = ?`, priceID)
	if err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return nil, repository.ErrNotFound
	}
	return &tiers[0], nil
}
