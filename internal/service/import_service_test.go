package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/integration/places"
	"github.com/Dhoini/ekaty/internal/repository/memory"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlaces struct {
	search  []places.Place
	details map[string]places.Place
}

func (f *fakePlaces) TextSearch(_ context.Context, _ string, _ int) ([]places.Place, error) {
	return f.search, nil
}

func (f *fakePlaces) Details(_ context.Context, placeID string) (*places.Place, error) {
	p, ok := f.details[placeID]
	if !ok {
		return nil, errors.New("NOT_FOUND")
	}
	return &p, nil
}

func place(id, name, status string, lat float64) places.Place {
	p := places.Place{
		PlaceID:          id,
		Name:             name,
		FormattedAddress: "123 Main St, Katy, TX 77494, USA",
		Rating:           4.5,
		UserRatingsTotal: 120,
		PriceLevel:       2,
		Types:            []string{"mexican_restaurant", "food"},
		BusinessStatus:   status,
	}
	p.Geometry.Location.Lat = lat
	p.Geometry.Location.Lng = katy.Lng
	return p
}

func TestImportService_ImportPlaces(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	existing := &domain.Restaurant{Name: "Taco Loco", Slug: "taco-loco", GooglePlaceID: "p-taco", Description: "Owner text", Active: true}
	require.NoError(t, store.Restaurants().Create(ctx, existing))

	client := &fakePlaces{search: []places.Place{
		place("p-taco", "Taco Loco", "OPERATIONAL", katy.Lat),
		place("p-new", "Casa Ole", "OPERATIONAL", katy.Lat+0.01),
		place("p-gone", "Old Cantina", "CLOSED_PERMANENTLY", katy.Lat),
		place("", "No Id", "OPERATIONAL", katy.Lat),
	}}
	svc := NewImportService(client, store.Restaurants(), logger.NewNop())

	report, err := svc.ImportPlaces(ctx, "mexican restaurants in Katy TX", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 2, report.Skipped)

	created, err := store.Restaurants().GetByPlaceID(ctx, "p-new")
	require.NoError(t, err)
	assert.Equal(t, "casa-ole", created.Slug)
	assert.Equal(t, "Mexican", created.Cuisine)
	assert.Equal(t, "Katy", created.City)
	assert.Equal(t, "77494", created.Zip)
	assert.True(t, created.Active)

	updated, err := store.Restaurants().GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Owner text", updated.Description)
	assert.Equal(t, 120, updated.RatingCount)

	_, err = svc.ImportPlaces(ctx, "  ", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = NewImportService(nil, store.Restaurants(), logger.NewNop()).ImportPlaces(ctx, "pho", 1)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestImportService_SyncPlaces(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	open := &domain.Restaurant{Name: "Casa Ole", Slug: "casa-ole", GooglePlaceID: "p-open", Active: true}
	closed := &domain.Restaurant{Name: "Old Cantina", Slug: "old-cantina", GooglePlaceID: "p-closed", Active: true}
	missing := &domain.Restaurant{Name: "Ghost", Slug: "ghost", GooglePlaceID: "p-missing", Active: true}
	manual := &domain.Restaurant{Name: "Manual", Slug: "manual", Active: true}
	for _, r := range []*domain.Restaurant{open, closed, missing, manual} {
		require.NoError(t, store.Restaurants().Create(ctx, r))
	}

	client := &fakePlaces{details: map[string]places.Place{
		"p-open":   place("p-open", "Casa Ole", "OPERATIONAL", katy.Lat),
		"p-closed": place("p-closed", "Old Cantina", "CLOSED_PERMANENTLY", katy.Lat),
	}}
	svc := NewImportService(client, store.Restaurants(), logger.NewNop())

	report, err := svc.SyncPlaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "Ghost")

	got, err := store.Restaurants().GetByID(ctx, closed.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	got, err = store.Restaurants().GetByID(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.5, got.Rating)
}

func TestImportService_ImportFile(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedRestaurants(t, store)
	svc := NewImportService(nil, store.Restaurants(), logger.NewNop())

	csvData := `Name,Cuisine,City,Latitude,Longitude,Price Level,Rating
Pho Katy,Vietnamese,Katy,29.7858,-95.8245,2,4.7
Kolache Factory,Bakery,Katy,29.79,-95.82,1,4.2
,Nothing,Katy,0,0,0,0
Bad Price,Diner,Katy,29.7,-95.8,9,3
`
	report, err := svc.ImportFile(ctx, strings.NewReader(csvData), "CSV")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)

	pho, err := store.Restaurants().GetBySlug(ctx, "pho-katy")
	require.NoError(t, err)
	assert.Equal(t, 4.7, pho.Rating)
	assert.Equal(t, 2, pho.PriceLevel)

	jsonData := `[{"name": "Kolache Factory", "cuisine": "Bakery", "google_place_id": "p-kolache", "rating": 4.4},
		{"name": "Sweet Lucy's", "cuisine": "Desserts", "latitude": 29.78, "longitude": -95.83}]`
	report, err = svc.ImportFile(ctx, strings.NewReader(jsonData), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Updated)

	kolache, err := store.Restaurants().GetByPlaceID(ctx, "p-kolache")
	require.NoError(t, err)
	assert.Equal(t, "kolache-factory", kolache.Slug)

	_, err = svc.ImportFile(ctx, strings.NewReader("{}"), "xml")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.ImportFile(ctx, strings.NewReader("{"), FormatJSON)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
