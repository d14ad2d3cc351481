package domain

import (
	"time"

	"github.com/google/uuid"
)

// ArticleStatus статус статьи блога
type ArticleStatus string

const (
	ArticleStatusDraft     ArticleStatus = "draft"
	ArticleStatusPublished ArticleStatus = "published"
)

// BlogArticle статья блога
type BlogArticle struct {
	ID          uuid.UUID     `json:"id"`
	Title       string        `json:"title"`
	Slug        string        `json:"slug"`
	Excerpt     string        `json:"excerpt"`
	Content     string        `json:"content"`
	Tags        []string      `json:"tags"`
	Status      ArticleStatus `json:"status"`
	AuthorID    *uuid.UUID    `json:"author_id,omitempty"`
	GeneratedBy string        `json:"generated_by"`
	PublishedAt *time.Time    `json:"published_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// BlogGenerateRequest параметры генерации статьи
type BlogGenerateRequest struct {
	Topic         string      `json:"topic" binding:"required,min=3,max=300"`
	Keywords      []string    `json:"keywords"`
	Tone          string      `json:"tone"`
	RestaurantIDs []uuid.UUID `json:"restaurant_ids"`
	WordCount     int         `json:"word_count" binding:"omitempty,min=200,max=3000"`
}

// BlogArticleInput ручное создание или изменение статьи
type BlogArticleInput struct {
	Title   *string  `json:"title"`
	Excerpt *string  `json:"excerpt"`
	Content *string  `json:"content"`
	Tags    []string `json:"tags"`
}

// BlogFilter фильтр списка статей
type BlogFilter struct {
	Status ArticleStatus
	Tag    string
	Limit  int
	Offset int
}
