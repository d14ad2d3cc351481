package domain

import (
	"fmt"
	"strings"
)

// Tier уровень партнерской подписки ресторана
type Tier string

const (
	TierFree    Tier = "FREE"
	TierBasic   Tier = "BASIC"
	TierPro     Tier = "PRO"
	TierPremium Tier = "PREMIUM"
)

// PaidTiers тарифы, которые можно купить
var PaidTiers = []Tier{TierBasic, TierPro, TierPremium}

// Feature функция продукта, доступ к которой зависит от тарифа
type Feature string

const (
	FeatureListingEdit       Feature = "listing_edit"
	FeaturePhotoGallery      Feature = "photo_gallery"
	FeatureAnalytics         Feature = "analytics"
	FeatureFeaturedPlacement Feature = "featured_placement"
	FeaturePrioritySupport   Feature = "priority_support"
)

// minimumTier минимальный тариф для каждой функции
var minimumTier = map[Feature]Tier{
	FeatureListingEdit:       TierBasic,
	FeaturePhotoGallery:      TierPro,
	FeatureAnalytics:         TierPro,
	FeatureFeaturedPlacement: TierPremium,
	FeaturePrioritySupport:   TierPremium,
}

// ParseTier разбирает тариф без учета регистра
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TierFree, TierBasic, TierPro, TierPremium:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, s)
}

// Rank порядковый номер тарифа: FREE < BASIC < PRO < PREMIUM
func (t Tier) Rank() int {
	switch t {
	case TierBasic:
		return 1
	case TierPro:
		return 2
	case TierPremium:
		return 3
	default:
		return 0
	}
}

// AtLeast сообщает, что тариф не ниже other
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

// IsPaid сообщает, что тариф платный
func (t Tier) IsPaid() bool {
	return t.Rank() > 0
}

// Allows сообщает, доступна ли функция на тарифе
func (t Tier) Allows(f Feature) bool {
	required, ok := minimumTier[f]
	if !ok {
		return false
	}
	return t.AtLeast(required)
}

// Features список функций, доступных на тарифе
func (t Tier) Features() []Feature {
	all := []Feature{FeatureListingEdit, FeaturePhotoGallery, FeatureAnalytics, FeatureFeaturedPlacement, FeaturePrioritySupport}
	out := make([]Feature, 0, len(all))
	for _, f := range all {
		if t.Allows(f) {
			out = append(out, f)
		}
	}
	return out
}

// RequiredTier минимальный тариф для функции
func RequiredTier(f Feature) Tier {
	if t, ok := minimumTier[f]; ok {
		return t
	}
	return TierPremium
}

// Require возвращает FeatureNotAvailableError, если функция недоступна
func (t Tier) Require(f Feature) error {
	if t.Allows(f) {
		return nil
	}
	return &FeatureNotAvailableError{Feature: f, Tier: t, Required: RequiredTier(f)}
}

// EffectiveTier тариф с учетом статуса: отмененная подписка откатывается к FREE,
// past_due сохраняет тариф на период льготы.
func EffectiveTier(tier Tier, status SubscriptionStatus) Tier {
	switch status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		if tier == "" {
			return TierFree
		}
		return tier
	default:
		return TierFree
	}
}
