package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Dhoini/ekaty/internal/api/rest"
	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Database.Driver = "memory"
	cfg.Partners.Driver = "sqlite"
	cfg.Partners.DSN = "file:" + filepath.Join(dir, "partners.db")
	cfg.Email.Provider = "dev"
	cfg.Email.DevDir = filepath.Join(dir, "emails")
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Redis.Addr = ""
	cfg.Kafka.Brokers = nil
	return cfg
}

func TestNew_WiresMemoryAndSQLite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	a, err := New(ctx, testConfig(t), logger.NewNop(), Options{Migrate: true, Producer: true})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Nil(t, a.Producer, "producer stays off without brokers")
	assert.Nil(t, a.Places, "places client stays off without an API key")
	assert.Nil(t, a.PoolStats())
	require.NoError(t, a.Ping(ctx))

	router := rest.SetupRouter(a.RouterDeps())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "partners_db")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tiers", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestVerifier_ReportsPartnerDatabase(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), logger.NewNop(), Options{Migrate: true})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	report := a.Verifier().Run(context.Background())
	assert.False(t, report.OK(), "test config has no Stripe keys")

	byName := map[string]bool{}
	for _, c := range report.Checks {
		byName[c.Name] = c.OK
	}
	assert.True(t, byName["partners_db.reachable"])
	assert.False(t, byName["catalog.not_empty"])
	assert.False(t, byName["stripe.api_key"])
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := New(context.Background(), cfg, logger.NewNop(), Options{})
	assert.ErrorContains(t, err, "unknown database driver")
}
