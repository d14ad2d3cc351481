package geo

import (
	"math"
	"testing"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/stretchr/testify/assert"
)

var (
	katy    = domain.GeoPoint{Lat: 29.7858, Lng: -95.8245}
	houston = domain.GeoPoint{Lat: 29.7604, Lng: -95.3698}
)

func TestCalculateDistance_Identical(t *testing.T) {
	assert.Equal(t, 0.0, CalculateDistance(katy.Lat, katy.Lng, katy.Lat, katy.Lng))
}

func TestCalculateDistance_Symmetric(t *testing.T) {
	points := []domain.GeoPoint{katy, houston, {Lat: 0, Lng: 0}, {Lat: -33.86, Lng: 151.2}, {Lat: 51.5, Lng: -0.12}}
	for _, a := range points {
		for _, b := range points {
			ab := CalculateDistance(a.Lat, a.Lng, b.Lat, b.Lng)
			ba := CalculateDistance(b.Lat, b.Lng, a.Lat, a.Lng)
			assert.InDelta(t, ab, ba, 1e-9)
			assert.GreaterOrEqual(t, ab, 0.0)
		}
	}
}

func TestCalculateDistance_KnownValue(t *testing.T) {
	// Katy -> downtown Houston is roughly 27 miles
	d := CalculateDistance(katy.Lat, katy.Lng, houston.Lat, houston.Lng)
	assert.InDelta(t, 27.3, d, 0.5)
}

func TestWithinRadius(t *testing.T) {
	_, ok := WithinRadius(katy, houston.Lat, houston.Lng, 10)
	assert.False(t, ok)

	d, ok := WithinRadius(katy, houston.Lat, houston.Lng, 30)
	assert.True(t, ok)
	assert.Greater(t, d, 10.0)
}

func TestBoundingBox_ContainsCircle(t *testing.T) {
	box := BoundingBox(katy, 5)
	assert.True(t, box.Contains(katy.Lat, katy.Lng))
	north := destination(katy, 0, 4.99)
	assert.True(t, box.Contains(north.Lat, north.Lng))
	assert.False(t, box.Contains(houston.Lat, houston.Lng))
	assert.Less(t, box.MaxLng-box.MinLng, 1.0)
}

// destination точка на расстоянии miles от from по азимуту bearing (градусы)
func destination(from domain.GeoPoint, bearing, miles float64) domain.GeoPoint {
	d := miles / EarthRadiusMiles
	lat1, lng1, brg := toRadians(from.Lat), toRadians(from.Lng), toRadians(bearing)
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lng2 := lng1 + math.Atan2(math.Sin(brg)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	lng := math.Mod(toDegrees(lng2)+540, 360) - 180
	return domain.GeoPoint{Lat: toDegrees(lat2), Lng: lng}
}

func TestBoundingBox_EdgeCases(t *testing.T) {
	cases := map[string]struct {
		center domain.GeoPoint
		radius float64
	}{
		"katy":              {katy, 25},
		"high latitude":     {domain.GeoPoint{Lat: 80, Lng: 10}, 60},
		"near north pole":   {domain.GeoPoint{Lat: 89.9, Lng: 45}, 20},
		"near south pole":   {domain.GeoPoint{Lat: -89.95, Lng: -120}, 10},
		"antimeridian":      {domain.GeoPoint{Lat: 0, Lng: 179.99}, 10},
		"antimeridian west": {domain.GeoPoint{Lat: -17.7, Lng: -179.95}, 15},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			box := BoundingBox(tc.center, tc.radius)
			for bearing := 0.0; bearing < 360; bearing += 15 {
				for _, frac := range []float64{0.5, 0.999} {
					p := destination(tc.center, bearing, tc.radius*frac)
					_, within := WithinRadius(tc.center, p.Lat, p.Lng, tc.radius)
					assert.True(t, within)
					assert.True(t, box.Contains(p.Lat, p.Lng), "bearing %.0f point %+v outside %+v", bearing, p, box)
				}
			}
		})
	}
}
