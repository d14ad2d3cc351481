package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/google/uuid"
)

// LeadRepository реализация repository.LeadRepository в памяти
type LeadRepository struct{ s *Store }

// Leads возвращает репозиторий лидов
func (s *Store) Leads() *LeadRepository { return &LeadRepository{s: s} }

var _ repository.LeadRepository = (*LeadRepository)(nil)

func (r *LeadRepository) Create(ctx context.Context, l *domain.Lead) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&l.ID)
	now := r.s.now()
	l.CreatedAt, l.UpdatedAt = now, now
	r.s.leads[l.ID] = *l
	return nil
}

func (r *LeadRepository) Update(ctx context.Context, l *domain.Lead) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.leads[l.ID]; !ok {
		return repository.ErrNotFound
	}
	l.UpdatedAt = r.s.now()
	r.s.leads[l.ID] = *l
	return nil
}

func (r *LeadRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.leads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

func (r *LeadRepository) List(ctx context.Context, f domain.LeadFilter) ([]domain.Lead, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Lead
	for _, l := range r.s.leads {
		if f.Status == "" || l.Status == f.Status {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].RestaurantName < out[j].RestaurantName
	})
	return paginate(out, f.Limit, f.Offset), len(out), nil
}

func (r *LeadRepository) MarkContacted(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		l, ok := r.s.leads[id]
		if !ok {
			continue
		}
		if l.Status == domain.LeadStatusNew {
			l.Status = domain.LeadStatusContacted
		}
		t := at
		l.LastContactedAt = &t
		l.UpdatedAt = r.s.now()
		r.s.leads[id] = l
	}
	return nil
}

// CampaignRepository реализация repository.CampaignRepository в памяти
type CampaignRepository struct{ s *Store }

// Campaigns возвращает репозиторий кампаний
func (s *Store) Campaigns() *CampaignRepository { return &CampaignRepository{s: s} }

var _ repository.CampaignRepository = (*CampaignRepository)(nil)

func (r *CampaignRepository) Create(ctx context.Context, c *domain.OutreachCampaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&c.ID)
	now := r.s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	r.s.campaigns[c.ID] = *c
	return nil
}

func (r *CampaignRepository) Update(ctx context.Context, c *domain.OutreachCampaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.campaigns[c.ID]; !ok {
		return repository.ErrNotFound
	}
	c.UpdatedAt = r.s.now()
	r.s.campaigns[c.ID] = *c
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutreachCampaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *CampaignRepository) List(ctx context.Context, limit, offset int) ([]domain.OutreachCampaign, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.OutreachCampaign, 0, len(r.s.campaigns))
	for _, c := range r.s.campaigns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, offset), len(out), nil
}

func (r *CampaignRepository) SaveMessage(ctx context.Context, m *domain.OutreachMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&m.ID)
	m.CreatedAt = r.s.now()
	r.s.messages = append(r.s.messages, *m)
	return nil
}

func (r *CampaignRepository) UpdateMessage(ctx context.Context, m *domain.OutreachMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.messages {
		if r.s.messages[i].ID == m.ID {
			m.CreatedAt = r.s.messages[i].CreatedAt
			r.s.messages[i] = *m
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *CampaignRepository) ListMessages(ctx context.Context, campaignID uuid.UUID) ([]domain.OutreachMessage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.OutreachMessage
	for _, m := range r.s.messages {
		if m.CampaignID == campaignID {
			out = append(out, m)
		}
	}
	return out, nil
}

// PartnershipTierRepository реализация repository.PartnershipTierRepository в памяти
type PartnershipTierRepository struct{ s *Store }

// PartnershipTiers возвращает репозиторий тарифов
func (s *Store) PartnershipTiers() *PartnershipTierRepository {
	return &PartnershipTierRepository{s: s}
}

var _ repository.PartnershipTierRepository = (*PartnershipTierRepository)(nil)

func (r *PartnershipTierRepository) List(ctx context.Context, activeOnly bool) ([]domain.PartnershipTier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.PartnershipTier
	for _, t := range r.s.tiers {
		if !activeOnly || t.Active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier.Rank() < out[j].Tier.Rank() })
	return out, nil
}

func (r *PartnershipTierRepository) Upsert(ctx context.Context, t *domain.PartnershipTier) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	if existing, ok := r.s.tiers[t.Tier]; ok {
		t.ID = existing.ID
		t.CreatedAt = existing.CreatedAt
	} else {
		ensureID(&t.ID)
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	r.s.tiers[t.Tier] = *t
	return nil
}

func (r *PartnershipTierRepository) GetByPriceID(ctx context.Context, priceID string) (*domain.PartnershipTier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.tiers {
		if priceID != "" && t.StripePriceID == priceID {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

// PartnerRestaurantRepository реализация repository.PartnerRestaurantRepository в памяти
type PartnerRestaurantRepository struct{ s *Store }

// PartnerRestaurants возвращает репозиторий ресторанов-партнеров
func (s *Store) PartnerRestaurants() *PartnerRestaurantRepository {
	return &PartnerRestaurantRepository{s: s}
}

var _ repository.PartnerRestaurantRepository = (*PartnerRestaurantRepository)(nil)

func (r *PartnerRestaurantRepository) Create(ctx context.Context, p *domain.PartnerRestaurant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&p.ID)
	now := r.s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.partnerRestaurts[p.ID] = *p
	return nil
}

func (r *PartnerRestaurantRepository) List(ctx context.Context) ([]domain.PartnerRestaurant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.PartnerRestaurant, 0, len(r.s.partnerRestaurts))
	for _, p := range r.s.partnerRestaurts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *PartnerRestaurantRepository) SetCatalogLink(ctx context.Context, id, catalogID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.partnerRestaurts[id]
	if !ok {
		return repository.ErrNotFound
	}
	cid := catalogID
	p.CatalogRestaurantID = &cid
	p.UpdatedAt = r.s.now()
	r.s.partnerRestaurts[id] = p
	return nil
}
