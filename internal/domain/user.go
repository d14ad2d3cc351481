package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRole роль пользователя
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleOwner UserRole = "owner"
	RoleAdmin UserRole = "admin"
)

// User пользователь сайта: посетитель, владелец ресторана или администратор
type User struct {
	ID                 uuid.UUID          `json:"id"`
	Email              string             `json:"email"`
	Name               string             `json:"name"`
	Role               UserRole           `json:"role"`
	PasswordHash       string             `json:"-"`
	StripeCustomerID   string             `json:"stripe_customer_id,omitempty"`
	SubscriptionTier   Tier               `json:"subscription_tier"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// EffectiveTier тариф пользователя с учетом статуса подписки
func (u *User) EffectiveTier() Tier {
	return EffectiveTier(u.SubscriptionTier, u.SubscriptionStatus)
}

// IsAdmin сообщает, является ли пользователь администратором
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// RegisterRequest запрос на регистрацию
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"max=120"`
}

// LoginRequest запрос на вход
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthToken выданный токен доступа
type AuthToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// Profile профиль текущего пользователя с доступными функциями
type Profile struct {
	User          User      `json:"user"`
	EffectiveTier Tier      `json:"effective_tier"`
	Features      []Feature `json:"features"`
}

// NormalizeEmail приводит email к нижнему регистру и проверяет формат
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidInput
	}
	return email, nil
}
