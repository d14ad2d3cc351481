package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/resilience"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = resilience.RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxRetries: 3}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.PlacesConfig{APIKey: "test-key", BaseURL: srv.URL, RatePerSec: 1000, MaxPages: 3},
		logger.NewNop(), WithRetryPolicy(fastPolicy), WithPageDelay(0))
}

func TestTextSearch_FollowsPageTokens(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/textsearch/json", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("pagetoken") {
		case "":
			assert.Equal(t, "pho in katy", r.URL.Query().Get("query"))
			_, _ = w.Write([]byte(`{"status":"OK","results":[{"place_id":"p1","name":"Pho Katy"}],"next_page_token":"t2"}`))
		case "t2":
			_, _ = w.Write([]byte(`{"status":"OK","results":[{"place_id":"p2","name":"Pho Saigon"}]}`))
		default:
			t.Errorf("unexpected token %q", r.URL.Query().Get("pagetoken"))
		}
	})

	places, err := c.TextSearch(context.Background(), "pho in katy", 0)
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Equal(t, "p2", places[1].PlaceID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTextSearch_RetriesOverQueryLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"status":"OVER_QUERY_LIMIT","results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	})

	places, err := c.TextSearch(context.Background(), "tacos", 1)
	require.NoError(t, err)
	assert.Empty(t, places)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDetails_RequestDeniedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key"}`))
	})

	_, err := c.Details(context.Background(), "p1")
	var ext *domain.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "REQUEST_DENIED", ext.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDetails_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK","result":{"place_id":"p1","name":"Pho Katy","rating":4.6,"user_ratings_total":120}}`))
	})

	p, err := c.Details(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 4.6, p.Rating)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDetails_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"NOT_FOUND"}`))
	})
	_, err := c.Details(context.Background(), "gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotConfigured(t *testing.T) {
	c := NewClient(config.PlacesConfig{}, logger.NewNop())
	_, err := c.TextSearch(context.Background(), "x", 1)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestParseAddress(t *testing.T) {
	street, city, state, zip := ParseAddress("23501 Cinco Ranch Blvd, Suite 100, Katy, TX 77494, USA")
	assert.Equal(t, "23501 Cinco Ranch Blvd, Suite 100", street)
	assert.Equal(t, "Katy", city)
	assert.Equal(t, "TX", state)
	assert.Equal(t, "77494", zip)

	street, city, _, _ = ParseAddress("Katy Mills")
	assert.Equal(t, "Katy Mills", street)
	assert.Empty(t, city)
}

func TestApplyToRestaurant(t *testing.T) {
	p := Place{PlaceID: "p1", Name: "Taqueria Arandas", FormattedAddress: "1 Main St, Katy, TX 77450, USA",
		Rating: 4.2, UserRatingsTotal: 80, PriceLevel: 1, Types: []string{"mexican_restaurant", "food"}}
	p.Geometry.Location.Lat, p.Geometry.Location.Lng = 29.78, -95.82

	r := domain.Restaurant{Description: "owner text", Active: true}
	ApplyToRestaurant(p, &r)
	assert.Equal(t, "Taqueria Arandas", r.Name)
	assert.Equal(t, "Mexican", r.Cuisine)
	assert.Equal(t, "77450", r.Zip)
	assert.Equal(t, "owner text", r.Description)
	assert.True(t, r.Active)

	p.BusinessStatus = "CLOSED_PERMANENTLY"
	ApplyToRestaurant(p, &r)
	assert.False(t, r.Active)
}
