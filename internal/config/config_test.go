package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "sqlite", cfg.Partners.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "ekaty.analytics", cfg.Kafka.AnalyticsTopic)
	assert.Equal(t, 3, cfg.Places.MaxPages)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("STRIPE_PRICE_PRO", "price_pro")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PORT", "9999")
	t.Setenv("DATABASE_DRIVER", "memory")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "whsec_test", cfg.Stripe.WebhookSecret)
	assert.Equal(t, "price_pro", cfg.Stripe.Prices["pro"])
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	yml := "app:\n  publicUrl: https://ekaty.com\nredis:\n  addr: cache:6379\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "https://ekaty.com", cfg.App.PublicURL)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{}
	cfg.App.Env = "production"
	cfg.Database.Driver = "memory"
	cfg.Email.Provider = "dev"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "STRIPE_WEBHOOK_SECRET")
	assert.Contains(t, err.Error(), "DATABASE_DRIVER=memory")

	ok := &Config{}
	ok.Auth.JWTSecret = "secret"
	ok.Database.Driver = "memory"
	assert.NoError(t, ok.Validate())

	shared := &Config{}
	shared.Auth.JWTSecret = "secret"
	shared.Database.Driver = "postgres"
	shared.Database.DSN = "postgres://ekaty@db/ekaty"
	shared.Partners.Driver = "pgx"
	shared.Partners.DSN = "postgres://ekaty@db/ekaty"
	assert.ErrorContains(t, shared.Validate(), "PARTNERS_DATABASE_URL")

	shared.Partners.DSN = "postgres://ekaty@db/partners"
	assert.NoError(t, shared.Validate())
}
