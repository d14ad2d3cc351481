package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/repository/memory"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productionConfig() *config.Config {
	return &config.Config{
		App:  config.AppConfig{Env: "production", PublicURL: "https://ekaty.com"},
		Auth: config.AuthConfig{JWTSecret: strings.Repeat("s", 48)},
		Stripe: config.StripeConfig{
			APIKey:        "sk_live_abc",
			WebhookSecret: "whsec_abc",
			Prices:        map[string]string{"basic": "price_b", "pro": "price_p", "premium": "price_x"},
		},
		Email: config.EmailConfig{Provider: "resend", ResendAPIKey: "re_123", From: "hello@ekaty.com"},
	}
}

func checks(r *VerifyReport) map[string]CheckResult {
	out := make(map[string]CheckResult, len(r.Checks))
	for _, c := range r.Checks {
		out[c.Name] = c
	}
	return out
}

func TestVerifier_ProductionReady(t *testing.T) {
	store := memory.NewStore()
	seedRestaurants(t, store)
	v := NewVerifier(productionConfig(), store.Restaurants(), logger.NewNop())
	v.AddPinger("postgres", func(context.Context) error { return nil })

	report := v.Run(context.Background())
	assert.True(t, report.OK(), "%+v", report.Checks)
	assert.Contains(t, checks(report), "postgres.reachable")
}

func TestVerifier_Failures(t *testing.T) {
	cfg := productionConfig()
	cfg.App.PublicURL = "http://localhost:8080"
	cfg.Auth.JWTSecret = "short"
	cfg.Stripe.APIKey = "sk_test_abc"
	cfg.Stripe.WebhookSecret = "secret"
	delete(cfg.Stripe.Prices, "premium")
	cfg.Email = config.EmailConfig{Provider: "dev"}

	v := NewVerifier(cfg, memory.NewStore().Restaurants(), logger.NewNop())
	v.AddPinger("redis", func(context.Context) error { return errors.New("connection refused") })

	report := v.Run(context.Background())
	require.False(t, report.OK())
	got := checks(report)
	for _, name := range []string{
		"config.public_url", "config.jwt_secret", "stripe.api_key", "stripe.webhook_secret",
		"stripe.prices", "email.provider", "redis.reachable", "catalog.not_empty",
	} {
		assert.False(t, got[name].OK, name)
		assert.NotEmpty(t, got[name].Detail, name)
	}
	assert.Contains(t, got["stripe.prices"].Detail, "PREMIUM")
}

func TestCheckStripeKey(t *testing.T) {
	assert.NoError(t, checkStripeKey("sk_test_1", false))
	assert.NoError(t, checkStripeKey("rk_live_1", true))
	assert.Error(t, checkStripeKey("sk_live_1", false))
	assert.Error(t, checkStripeKey("pk_test_1", false))
}
