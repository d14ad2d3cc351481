package geo

import (
	"math"

	"github.com/Dhoini/ekaty/internal/domain"
)

// EarthRadiusMiles средний радиус Земли в милях
const EarthRadiusMiles = 3958.8

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// CalculateDistance расстояние по формуле гаверсинусов в милях
func CalculateDistance(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLng*sinLng
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMiles * c
}

// WithinRadius сообщает, находится ли точка не дальше radiusMiles от центра
func WithinRadius(center domain.GeoPoint, lat, lng, radiusMiles float64) (float64, bool) {
	d := CalculateDistance(center.Lat, center.Lng, lat, lng)
	return d, d <= radiusMiles
}

// BoundingBox прямоугольник, гарантированно содержащий круг радиуса radiusMiles.
// Используется для грубой фильтрации в SQL перед точным расчетом.
// Если круг накрывает полюс или пересекает 180-й меридиан, прямоугольник занимает
// все долготы: GeoBounds не умеет переходить через меридиан.
func BoundingBox(center domain.GeoPoint, radiusMiles float64) domain.GeoBounds {
	r := radiusMiles / EarthRadiusMiles
	lat := toRadians(center.Lat)
	lng := toRadians(center.Lng)

	minLat, maxLat := lat-r, lat+r
	minLng, maxLng := -math.Pi, math.Pi
	if minLat > -math.Pi/2 && maxLat < math.Pi/2 {
		dLng := math.Asin(math.Min(math.Sin(r)/math.Cos(lat), 1))
		if lng-dLng >= -math.Pi && lng+dLng <= math.Pi {
			minLng, maxLng = lng-dLng, lng+dLng
		}
	} else {
		minLat = math.Max(minLat, -math.Pi/2)
		maxLat = math.Min(maxLat, math.Pi/2)
	}
	return domain.GeoBounds{
		MinLat: toDegrees(minLat) - boxMargin,
		MaxLat: toDegrees(maxLat) + boxMargin,
		MinLng: math.Max(toDegrees(minLng)-boxMargin, -180),
		MaxLng: math.Min(toDegrees(maxLng)+boxMargin, 180),
	}
}

// boxMargin запас в градусах на ошибку округления
const boxMargin = 1e-9

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
