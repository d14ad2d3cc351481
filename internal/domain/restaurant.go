package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Restaurant ресторан в каталоге
type Restaurant struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	Description     string     `json:"description,omitempty"`
	Cuisine         string     `json:"cuisine"`
	Address         string     `json:"address"`
	City            string     `json:"city"`
	State           string     `json:"state"`
	Zip             string     `json:"zip,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Website         string     `json:"website,omitempty"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	PriceLevel      int        `json:"price_level"`
	Rating          float64    `json:"rating"`
	RatingCount     int        `json:"rating_count"`
	UserRating      float64    `json:"user_rating"`
	UserReviewCount int        `json:"user_review_count"`
	GooglePlaceID   string     `json:"google_place_id,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	Featured        bool       `json:"featured"`
	Active          bool       `json:"active"`
	OwnerID         *uuid.UUID `json:"owner_id,omitempty"`
	Tier            Tier       `json:"tier"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Validate проверяет обязательные поля ресторана
func (r *Restaurant) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(r.Name) == "" {
		errs.Add("name", "is required")
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		errs.Add("latitude", "must be between -90 and 90")
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		errs.Add("longitude", "must be between -180 and 180")
	}
	if r.PriceLevel < 0 || r.PriceLevel > 4 {
		errs.Add("price_level", "must be between 0 and 4")
	}
	if r.Rating < 0 || r.Rating > 5 {
		errs.Add("rating", "must be between 0 and 5")
	}
	return errs.Err()
}

// SortOrder порядок сортировки результатов поиска
type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortRating    SortOrder = "rating"
	SortDistance  SortOrder = "distance"
	SortName      SortOrder = "name"
	SortNewest    SortOrder = "newest"
)

// RestaurantFilter параметры поиска ресторанов
type RestaurantFilter struct {
	Query        string
	Cuisine      string
	MinRating    float64
	PriceLevels  []int
	FeaturedOnly bool
	// Origin и RadiusMiles задают поиск по расстоянию; RadiusMiles <= 0 отключает фильтр
	Origin         *GeoPoint
	RadiusMiles    float64
	Bounds         *GeoBounds
	IncludeHidden  bool
	ExcludeIDs     []uuid.UUID
	Sort           SortOrder
	Limit          int
	Offset         int
	OwnerID        *uuid.UUID
	HasPlaceIDOnly bool
}

// GeoPoint координаты
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeoBounds прямоугольник на карте
type GeoBounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// Contains сообщает, попадает ли точка в прямоугольник
func (b GeoBounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// RestaurantResult ресторан в выдаче поиска
type RestaurantResult struct {
	Restaurant
	DistanceMiles *float64 `json:"distance_miles,omitempty"`
}

// SearchResult страница результатов поиска
type SearchResult struct {
	Items  []RestaurantResult `json:"items"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// MapPin облегченное представление ресторана для карты
type MapPin struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	Cuisine    string    `json:"cuisine"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Rating     float64   `json:"rating"`
	PriceLevel int       `json:"price_level"`
	Featured   bool      `json:"featured"`
}

// RouletteRequest параметры "Grub Roulette"
type RouletteRequest struct {
	Cuisine     string      `json:"cuisine"`
	Lat         *float64    `json:"lat"`
	Lng         *float64    `json:"lng"`
	RadiusMiles float64     `json:"radius_miles"`
	MinRating   float64     `json:"min_rating"`
	MaxPrice    int         `json:"max_price"`
	ExcludeIDs  []uuid.UUID `json:"exclude_ids"`
}

// RouletteResult выбранный случайно ресторан
type RouletteResult struct {
	Restaurant RestaurantResult `json:"restaurant"`
	Candidates int              `json:"candidates"`
}

// RestaurantInput поля ресторана для создания и изменения администратором
type RestaurantInput struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	Cuisine       *string  `json:"cuisine"`
	Address       *string  `json:"address"`
	City          *string  `json:"city"`
	State         *string  `json:"state"`
	Zip           *string  `json:"zip"`
	Phone         *string  `json:"phone"`
	Website       *string  `json:"website"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	PriceLevel    *int     `json:"price_level"`
	Rating        *float64 `json:"rating"`
	ImageURL      *string  `json:"image_url"`
	Featured      *bool    `json:"featured"`
	Active        *bool    `json:"active"`
	GooglePlaceID *string  `json:"google_place_id"`
}

// Apply переносит заданные поля в ресторан
func (in RestaurantInput) Apply(r *Restaurant) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&r.Name, in.Name)
	setString(&r.Description, in.Description)
	setString(&r.Cuisine, in.Cuisine)
	setString(&r.Address, in.Address)
	setString(&r.City, in.City)
	setString(&r.State, in.State)
	setString(&r.Zip, in.Zip)
	setString(&r.Phone, in.Phone)
	setString(&r.Website, in.Website)
	setString(&r.ImageURL, in.ImageURL)
	setString(&r.GooglePlaceID, in.GooglePlaceID)
	if in.Latitude != nil {
		r.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		r.Longitude = *in.Longitude
	}
	if in.PriceLevel != nil {
		r.PriceLevel = *in.PriceLevel
	}
	if in.Rating != nil {
		r.Rating = *in.Rating
	}
	if in.Featured != nil {
		r.Featured = *in.Featured
	}
	if in.Active != nil {
		r.Active = *in.Active
	}
}

// OwnerListingInput изменения карточки ресторана владельцем
type OwnerListingInput struct {
	Description *string `json:"description"`
	Phone       *string `json:"phone"`
	Website     *string `json:"website"`
	ImageURL    *string `json:"image_url"`
	Featured    *bool   `json:"featured"`
}

// OwnerStats статистика ресторана для владельца
type OwnerStats struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Views        int       `json:"views"`
	Favorites    int       `json:"favorites"`
	Reviews      int       `json:"reviews"`
	UserRating   float64   `json:"user_rating"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify строит URL-идентификатор из названия
func Slugify(s string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "item"
	}
	if len(slug) > 80 {
		slug = strings.TrimRight(slug[:80], "-")
	}
	return slug
}
