package domain

import (
	"time"

	"github.com/google/uuid"
)

// Review отзыв пользователя о ресторане; один отзыв на пару (пользователь, ресторан)
type Review struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	UserID       uuid.UUID `json:"user_id"`
	UserName     string    `json:"user_name,omitempty"`
	Rating       int       `json:"rating"`
	Title        string    `json:"title,omitempty"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ReviewInput данные отзыва
type ReviewInput struct {
	Rating int    `json:"rating" binding:"required,min=1,max=5"`
	Title  string `json:"title" binding:"max=200"`
	Body   string `json:"body" binding:"max=5000"`
}

// ReviewStats агрегаты отзывов ресторана
type ReviewStats struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// Favorite избранный ресторан пользователя
type Favorite struct {
	UserID       uuid.UUID `json:"user_id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	CreatedAt    time.Time `json:"created_at"`
}
