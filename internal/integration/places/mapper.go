package places

import (
	"regexp"
	"strings"

	"github.com/Dhoini/ekaty/internal/domain"
)

var stateZip = regexp.MustCompile(`^([A-Z]{2})\s+(\d{5})(?:-\d{4})?$`)

// ParseAddress разбирает formatted_address вида "123 Main St, Katy, TX 77494, USA"
func ParseAddress(formatted string) (street, city, state, zip string) {
	parts := strings.Split(formatted, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if n := len(parts); n > 0 && (parts[n-1] == "USA" || parts[n-1] == "United States") {
		parts = parts[:n-1]
	}
	switch len(parts) {
	case 0:
		return "", "", "", ""
	case 1:
		return parts[0], "", "", ""
	case 2:
		return parts[0], parts[1], "", ""
	}
	n := len(parts)
	if m := stateZip.FindStringSubmatch(parts[n-1]); m != nil {
		state, zip = m[1], m[2]
	} else {
		state = parts[n-1]
	}
	city = parts[n-2]
	street = strings.Join(parts[:n-2], ", ")
	return street, city, state, zip
}

// CuisineFromTypes выводит кухню из типов Places ("mexican_restaurant" -> "Mexican")
func CuisineFromTypes(types []string) string {
	for _, t := range types {
		if name, ok := strings.CutSuffix(t, "_restaurant"); ok && name != "" {
			words := strings.Split(name, "_")
			for i, w := range words {
				words[i] = strings.ToUpper(w[:1]) + w[1:]
			}
			return strings.Join(words, " ")
		}
	}
	return ""
}

// ApplyToRestaurant переносит данные Places в карточку. Поля, которые редактируют
// владельцы (описание, фото, featured), не трогаются.
func ApplyToRestaurant(p Place, r *domain.Restaurant) {
	if r.Name == "" {
		r.Name = p.Name
	}
	r.GooglePlaceID = p.PlaceID
	if p.FormattedAddress != "" {
		r.Address, r.City, r.State, r.Zip = ParseAddress(p.FormattedAddress)
	}
	if p.Phone != "" && r.Phone == "" {
		r.Phone = p.Phone
	}
	if p.Website != "" && r.Website == "" {
		r.Website = p.Website
	}
	if p.Geometry.Location.Lat != 0 || p.Geometry.Location.Lng != 0 {
		r.Latitude = p.Geometry.Location.Lat
		r.Longitude = p.Geometry.Location.Lng
	}
	if p.Rating > 0 {
		r.Rating = p.Rating
	}
	r.RatingCount = p.UserRatingsTotal
	if p.PriceLevel > 0 {
		r.PriceLevel = p.PriceLevel
	}
	if r.Cuisine == "" {
		r.Cuisine = CuisineFromTypes(p.Types)
	}
	if p.Closed() {
		r.Active = false
	}
}
