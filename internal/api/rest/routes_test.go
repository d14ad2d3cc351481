package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dhoini/ekaty/internal/api/rest/handlers"
	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/integration/stripe"
	"github.com/Dhoini/ekaty/internal/metrics"
	"github.com/Dhoini/ekaty/internal/middleware"
	"github.com/Dhoini/ekaty/internal/repository/memory"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router *gin.Engine
	store  *memory.Store
	tokens *middleware.TokenManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	cfg := &config.Config{
		Auth:      config.AuthConfig{JWTSecret: "router-test-secret", TokenTTL: time.Hour, CookieName: "ekaty_session"},
		RateLimit: config.RateLimitConfig{RPS: 1000, Burst: 1000},
	}
	store := memory.NewStore()
	log := logger.NewNop()
	tokens := middleware.NewTokenManager(cfg.Auth)

	router := SetupRouter(RouterDeps{
		Config:        cfg,
		Log:           log,
		Registry:      prometheus.NewRegistry(),
		Metrics:       metrics.Nop{},
		Tokens:        tokens,
		WebhookParser: stripe.NewEventParser("whsec_test"),
		Health: map[string]handlers.Check{
			"database": func(context.Context) error { return nil },
		},
		Services: Services{
			Restaurants: service.NewRestaurantService(store.Restaurants(), log),
			Reviews:     service.NewReviewService(store.Reviews(), store.Favorites(), store.Restaurants(), store.Users(), log),
			Auth:        service.NewAuthService(store.Users(), tokens, log),
			Partners:    service.NewPartnerService(store.PartnershipTiers(), store.PartnerRestaurants(), store.Restaurants(), log),
		},
	})
	return &testAPI{router: router, store: store, tokens: tokens}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) tokenFor(t *testing.T, role domain.UserRole) (string, uuid.UUID) {
	t.Helper()
	user := &domain.User{Email: string(role) + "@example.com", Name: string(role), Role: role}
	require.NoError(t, a.store.Users().Create(context.Background(), user))
	token, _, err := a.tokens.Issue(user)
	require.NoError(t, err)
	return token, user.ID
}

func (a *testAPI) seedRestaurant(t *testing.T, name, slug string, active bool) *domain.Restaurant {
	t.Helper()
	r := &domain.Restaurant{Name: name, Slug: slug, Cuisine: "Vietnamese", Latitude: 29.7858, Longitude: -95.8245, Active: active, Tier: domain.TierFree}
	require.NoError(t, a.store.Restaurants().Create(context.Background(), r))
	return r
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"OK"`)

	w = api.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_RegisterAndProfile(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "diner@example.com", "password": "s3cret-pass", "name": "Diner",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tok domain.AuthToken
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))
	require.NotEmpty(t, tok.Token)

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "ekaty_session" {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	w = api.do(t, http.MethodGet, "/api/auth/me", tok.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "diner@example.com")

	w = api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "diner@example.com", "password": "another-pass"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "bad", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "diner@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/api/auth/me", "", nil).Code)
}

func TestRouter_RestaurantsAndFavorites(t *testing.T) {
	api := newTestAPI(t)
	pho := api.seedRestaurant(t, "Pho Katy", "pho-katy", true)
	hidden := api.seedRestaurant(t, "Closed Diner", "closed-diner", false)
	userToken, _ := api.tokenFor(t, domain.RoleUser)
	adminToken, _ := api.tokenFor(t, domain.RoleAdmin)

	w := api.do(t, http.MethodGet, "/api/restaurants?q=pho", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var search domain.SearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &search))
	require.Equal(t, 1, search.Total)
	assert.Equal(t, pho.ID, search.Items[0].ID)

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/restaurants/pho-katy", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/restaurants/"+pho.ID.String(), "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/restaurants/"+hidden.ID.String(), userToken, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/restaurants/"+hidden.ID.String(), adminToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/restaurants/"+hidden.ID.String(), "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/restaurants/closed-diner", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/restaurants/closed-diner", adminToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/restaurants/map?min_lat=1", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/restaurants/map", "", nil).Code)

	favPath := "/api/me/favorites/" + pho.ID.String()
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodPost, favPath, "", nil).Code)
	assert.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, favPath, userToken, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodPost, favPath, userToken, nil).Code, "repeated add is idempotent")

	w = api.do(t, http.MethodGet, "/api/me/favorites", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pho-katy")

	w = api.do(t, http.MethodPost, "/api/restaurants/"+pho.ID.String()+"/reviews", userToken, map[string]any{"rating": 5, "body": "Great broth"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = api.do(t, http.MethodPost, "/api/restaurants/"+pho.ID.String()+"/reviews", userToken, map[string]any{"rating": 4})
	assert.Equal(t, http.StatusOK, w.Code, "second review from the same user updates the first")
	w = api.do(t, http.MethodPost, "/api/restaurants/"+pho.ID.String()+"/reviews", userToken, map[string]any{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_AdminGroupRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	userToken, _ := api.tokenFor(t, domain.RoleUser)
	adminToken, _ := api.tokenFor(t, domain.RoleAdmin)
	body := map[string]any{"name": "Taco Loco", "cuisine": "Mexican", "latitude": 29.8, "longitude": -95.8}

	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodPost, "/api/admin/restaurants", "", body).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, "/api/admin/restaurants", userToken, body).Code)

	w := api.do(t, http.MethodPost, "/api/admin/restaurants", adminToken, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created domain.Restaurant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "taco-loco", created.Slug)

	w = api.do(t, http.MethodDelete, "/api/admin/restaurants/"+created.ID.String(), adminToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/restaurants/taco-loco", "", nil).Code)

	w = api.do(t, http.MethodPut, "/api/admin/tiers", adminToken, map[string]any{
		"tier": "PRO", "display_name": "Pro", "monthly_price_cents": 7900, "stripe_price_id": "price_pro",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = api.do(t, http.MethodGet, "/api/tiers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"monthly_price_cents":7900`)
}

func TestRouter_WebhookRejectsUnsigned(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodPost, "/api/webhooks/stripe", "", map[string]string{"id": "evt_1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
