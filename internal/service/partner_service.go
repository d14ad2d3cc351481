package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
)

// PartnerService партнерские тарифы и связь базы партнеров с каталогом
type PartnerService interface {
	Tiers(ctx context.Context, activeOnly bool) ([]domain.PartnershipTier, error)
	UpsertTier(ctx context.Context, in domain.PartnershipTierInput) (*domain.PartnershipTier, error)
	Restaurants(ctx context.Context) ([]domain.PartnerRestaurant, error)
	CreateRestaurant(ctx context.Context, p domain.PartnerRestaurant) (*domain.PartnerRestaurant, error)
	// Reconcile связывает рестораны-партнеры с каталогом по Google place id,
	// затем по нормализованному названию и телефону
	Reconcile(ctx context.Context) (*domain.ReconcileReport, error)
}

type partnerService struct {
	tiers       repository.PartnershipTierRepository
	partners    repository.PartnerRestaurantRepository
	restaurants repository.RestaurantRepository
	log         *logger.Logger
}

// NewPartnerService создает сервис партнеров
func NewPartnerService(
	tiers repository.PartnershipTierRepository,
	partners repository.PartnerRestaurantRepository,
	restaurants repository.RestaurantRepository,
	log *logger.Logger,
) PartnerService {
	return &partnerService{tiers: tiers, partners: partners, restaurants: restaurants, log: log}
}

func (s *partnerService) Tiers(ctx context.Context, activeOnly bool) ([]domain.PartnershipTier, error) {
	tiers, err := s.tiers.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	if tiers == nil {
		tiers = []domain.PartnershipTier{}
	}
	return tiers, nil
}

func (s *partnerService) UpsertTier(ctx context.Context, in domain.PartnershipTierInput) (*domain.PartnershipTier, error) {
	tier, err := domain.ParseTier(in.Tier)
	if err != nil {
		return nil, err
	}
	if in.MonthlyPriceCents < 0 {
		return nil, fmt.Errorf("%w: monthly price must not be negative", domain.ErrInvalidInput)
	}
	if tier == domain.TierFree && in.MonthlyPriceCents != 0 {
		return nil, fmt.Errorf("%w: FREE tier has no price", domain.ErrInvalidInput)
	}
	priceID := strings.TrimSpace(in.StripePriceID)
	if priceID != "" && !strings.HasPrefix(priceID, "price_") {
		return nil, fmt.Errorf("%w: stripe price id must start with price_", domain.ErrInvalidInput)
	}

	t := &domain.PartnershipTier{
		Tier:              tier,
		DisplayName:       strings.TrimSpace(in.DisplayName),
		MonthlyPriceCents: in.MonthlyPriceCents,
		StripePriceID:     priceID,
		Features:          normalizeFeatures(in.Features),
		Active:            true,
	}
	if in.Active != nil {
		t.Active = *in.Active
	}
	if t.DisplayName == "" {
		t.DisplayName = string(tier)
	}
	if err := s.tiers.Upsert(ctx, t); err != nil {
		return nil, fmt.Errorf("upsert tier: %w", err)
	}
	s.log.Infow("Partnership tier saved", "tier", t.Tier, "priceCents", t.MonthlyPriceCents, "active", t.Active)
	return t, nil
}

func normalizeFeatures(in []string) []string {
	out := make([]string, 0, len(in))
	for _, f := range in {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func (s *partnerService) Restaurants(ctx context.Context) ([]domain.PartnerRestaurant, error) {
	items, err := s.partners.List(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.PartnerRestaurant{}
	}
	return items, nil
}

func (s *partnerService) CreateRestaurant(ctx context.Context, p domain.PartnerRestaurant) (*domain.PartnerRestaurant, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(p.Email) != "" {
		addr, err := domain.NormalizeEmail(p.Email)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
		}
		p.Email = addr
	}
	p.CatalogRestaurantID = nil
	if err := s.partners.Create(ctx, &p); err != nil {
		return nil, fmt.Errorf("create partner restaurant: %w", err)
	}
	return &p, nil
}

var (
	nonAlnum  = regexp.MustCompile(`[^a-z0-9]+`)
	nonDigits = regexp.MustCompile(`[^0-9]+`)
)

// NormalizeName приводит название к виду для сравнения: нижний регистр, без
// пунктуации и артикля "the"
func NormalizeName(name string) string {
	n := nonAlnum.ReplaceAllString(strings.ToLower(name), " ")
	fields := strings.Fields(n)
	if len(fields) > 1 && fields[0] == "the" {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

// NormalizePhone оставляет последние 10 цифр номера
func NormalizePhone(phone string) string {
	d := nonDigits.ReplaceAllString(phone, "")
	if len(d) > 10 {
		d = d[len(d)-10:]
	}
	return d
}

type nameKey struct {
	name  string
	phone string
}

func (s *partnerService) Reconcile(ctx context.Context) (*domain.ReconcileReport, error) {
	partners, err := s.partners.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partner restaurants: %w", err)
	}
	catalog, _, err := s.restaurants.Search(ctx, domain.RestaurantFilter{IncludeHidden: true, Sort: domain.SortName})
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}

	byName := make(map[nameKey]domain.Restaurant, len(catalog))
	for _, r := range catalog {
		byName[nameKey{name: NormalizeName(r.Name), phone: NormalizePhone(r.Phone)}] = r
	}

	report := &domain.ReconcileReport{}
	for _, p := range partners {
		if p.CatalogRestaurantID != nil {
			continue
		}
		report.Checked++

		var match *domain.Restaurant
		if p.GooglePlaceID != "" {
			r, err := s.restaurants.GetByPlaceID(ctx, p.GooglePlaceID)
			switch {
			case err == nil:
				match = r
			case !errors.Is(err, repository.ErrNotFound):
				return nil, fmt.Errorf("lookup place %s: %w", p.GooglePlaceID, err)
			}
		}
		if match == nil {
			if r, ok := byName[nameKey{name: NormalizeName(p.Name), phone: NormalizePhone(p.Phone)}]; ok {
				match = &r
			}
		}
		if match == nil {
			report.Unmatched++
			s.log.Debugw("Partner restaurant not found in catalog", "partnerID", p.ID, "name", p.Name)
			continue
		}
		if err := s.partners.SetCatalogLink(ctx, p.ID, match.ID); err != nil {
			return nil, fmt.Errorf("link partner %s: %w", p.ID, err)
		}
		report.Linked++
	}
	s.log.Infow("Partner reconciliation finished",
		"checked", report.Checked,
		"linked", report.Linked,
		"unmatched", report.Unmatched,
	)
	return report, nil
}
