package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PartnerRestaurant ресторан в базе партнеров (отдельно от каталога)
type PartnerRestaurant struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	Name                string     `json:"name" db:"name"`
	Email               string     `json:"email" db:"email"`
	Phone               string     `json:"phone" db:"phone"`
	Website             string     `json:"website" db:"website"`
	Address             string     `json:"address" db:"address"`
	Cuisine             string     `json:"cuisine" db:"cuisine"`
	GooglePlaceID       string     `json:"google_place_id" db:"google_place_id"`
	CatalogRestaurantID *uuid.UUID `json:"catalog_restaurant_id,omitempty" db:"catalog_restaurant_id"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// LeadStatus этап работы с лидом
type LeadStatus string

const (
	LeadStatusNew          LeadStatus = "new"
	LeadStatusContacted    LeadStatus = "contacted"
	LeadStatusInterested   LeadStatus = "interested"
	LeadStatusConverted    LeadStatus = "converted"
	LeadStatusDeclined     LeadStatus = "declined"
	LeadStatusUnsubscribed LeadStatus = "unsubscribed"
)

// ParseLeadStatus разбирает статус лида
func ParseLeadStatus(s string) (LeadStatus, error) {
	st := LeadStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case LeadStatusNew, LeadStatusContacted, LeadStatusInterested, LeadStatusConverted, LeadStatusDeclined, LeadStatusUnsubscribed:
		return st, nil
	}
	return "", ErrInvalidInput
}

// Lead потенциальный партнер для рассылки
type Lead struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	RestaurantName      string     `json:"restaurant_name" db:"restaurant_name"`
	ContactName         string     `json:"contact_name" db:"contact_name"`
	Email               string     `json:"email" db:"email"`
	Phone               string     `json:"phone" db:"phone"`
	City                string     `json:"city" db:"city"`
	Cuisine             string     `json:"cuisine" db:"cuisine"`
	Status              LeadStatus `json:"status" db:"status"`
	Source              string     `json:"source" db:"source"`
	Notes               string     `json:"notes" db:"notes"`
	PartnerRestaurantID *uuid.UUID `json:"partner_restaurant_id,omitempty" db:"partner_restaurant_id"`
	LastContactedAt     *time.Time `json:"last_contacted_at,omitempty" db:"last_contacted_at"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// FirstName первое слово имени контакта
func (l *Lead) FirstName() string {
	fields := strings.Fields(l.ContactName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// LeadInput создание или изменение лида
type LeadInput struct {
	RestaurantName string `json:"restaurant_name" binding:"required,max=200"`
	ContactName    string `json:"contact_name" binding:"max=200"`
	Email          string `json:"email" binding:"omitempty,email"`
	Phone          string `json:"phone" binding:"max=40"`
	City           string `json:"city" binding:"max=100"`
	Cuisine        string `json:"cuisine" binding:"max=100"`
	Status         string `json:"status"`
	Source         string `json:"source" binding:"max=100"`
	Notes          string `json:"notes" binding:"max=5000"`
}

// LeadFilter фильтр списка лидов
type LeadFilter struct {
	Status LeadStatus
	Limit  int
	Offset int
}

// Channel канал рассылки
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// CampaignStatus статус кампании
type CampaignStatus string

const (
	CampaignStatusDraft   CampaignStatus = "draft"
	CampaignStatusSending CampaignStatus = "sending"
	CampaignStatusSent    CampaignStatus = "sent"
)

// OutreachCampaign кампания рассылки по лидам
type OutreachCampaign struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	Channel      Channel        `json:"channel" db:"channel"`
	Subject      string         `json:"subject" db:"subject"`
	Template     string         `json:"template" db:"template"`
	TargetStatus LeadStatus     `json:"target_status" db:"target_status"`
	Status       CampaignStatus `json:"status" db:"status"`
	SentCount    int            `json:"sent_count" db:"sent_count"`
	FailedCount  int            `json:"failed_count" db:"failed_count"`
	SentAt       *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// CampaignInput создание кампании
type CampaignInput struct {
	Name         string `json:"name" binding:"required,max=200"`
	Channel      string `json:"channel" binding:"required,oneof=email sms"`
	Subject      string `json:"subject" binding:"max=300"`
	Template     string `json:"template" binding:"required"`
	TargetStatus string `json:"target_status"`
}

// MessageStatus статус сообщения рассылки
type MessageStatus string

const (
	MessageStatusDraft  MessageStatus = "draft"
	MessageStatusSent   MessageStatus = "sent"
	MessageStatusFailed MessageStatus = "failed"
)

// OutreachMessage отдельное сообщение кампании
type OutreachMessage struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	CampaignID uuid.UUID     `json:"campaign_id" db:"campaign_id"`
	LeadID     uuid.UUID     `json:"lead_id" db:"lead_id"`
	Channel    Channel       `json:"channel" db:"channel"`
	Recipient  string        `json:"recipient" db:"recipient"`
	Subject    string        `json:"subject" db:"subject"`
	Body       string        `json:"body" db:"body"`
	Status     MessageStatus `json:"status" db:"status"`
	Error      string        `json:"error,omitempty" db:"error"`
	SentAt     *time.Time    `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// CampaignPreview результат подстановки шаблона для одного лида
type CampaignPreview struct {
	LeadID    uuid.UUID `json:"lead_id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
}

// CampaignReport итог отправки кампании
type CampaignReport struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	Targeted   int       `json:"targeted"`
	Sent       int       `json:"sent"`
	Drafted    int       `json:"drafted"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
}

// PartnershipTier описание тарифа для партнеров
type PartnershipTier struct {
	ID                uuid.UUID `json:"id" db:"id"`
	Tier              Tier      `json:"tier" db:"tier"`
	DisplayName       string    `json:"display_name" db:"display_name"`
	MonthlyPriceCents int64     `json:"monthly_price_cents" db:"monthly_price_cents"`
	StripePriceID     string    `json:"stripe_price_id" db:"stripe_price_id"`
	Features          []string  `json:"features" db:"-"`
	Active            bool      `json:"active" db:"active"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// PartnershipTierInput изменение тарифа
type PartnershipTierInput struct {
	Tier              string   `json:"tier" binding:"required"`
	DisplayName       string   `json:"display_name" binding:"required,max=100"`
	MonthlyPriceCents int64    `json:"monthly_price_cents" binding:"min=0"`
	StripePriceID     string   `json:"stripe_price_id"`
	Features          []string `json:"features"`
	Active            *bool    `json:"active"`
}

// ReconcileReport итог связывания партнеров с каталогом
type ReconcileReport struct {
	Checked   int `json:"checked"`
	Linked    int `json:"linked"`
	Unmatched int `json:"unmatched"`
}

// ImportReport итог импорта ресторанов
type ImportReport struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}
