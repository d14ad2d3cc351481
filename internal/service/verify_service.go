package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
)

const verifyPingTimeout = 5 * time.Second

// CheckResult результат одной проверки
type CheckResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// VerifyReport итог проверки окружения
type VerifyReport struct {
	Checks []CheckResult `json:"checks"`
}

// OK сообщает, что все проверки прошли
func (r *VerifyReport) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

func (r *VerifyReport) add(name string, err error) {
	res := CheckResult{Name: name, OK: err == nil}
	if err != nil {
		res.Detail = err.Error()
	}
	r.Checks = append(r.Checks, res)
}

// Pinger проверка доступности хранилища
type Pinger func(ctx context.Context) error

// Verifier проверяет готовность окружения к запуску
type Verifier struct {
	cfg         *config.Config
	restaurants repository.RestaurantRepository
	pingers     map[string]Pinger
	names       []string
	log         *logger.Logger
}

// NewVerifier создает проверку окружения
func NewVerifier(cfg *config.Config, restaurants repository.RestaurantRepository, log *logger.Logger) *Verifier {
	return &Verifier{cfg: cfg, restaurants: restaurants, pingers: map[string]Pinger{}, log: log}
}

// AddPinger добавляет проверку доступности зависимости
func (v *Verifier) AddPinger(name string, p Pinger) {
	if _, ok := v.pingers[name]; !ok {
		v.names = append(v.names, name)
	}
	v.pingers[name] = p
}

// Run выполняет все проверки
func (v *Verifier) Run(ctx context.Context) *VerifyReport {
	report := &VerifyReport{}
	production := v.cfg.App.Env == "production"

	report.add("config.public_url", checkPublicURL(v.cfg.App.PublicURL, production))
	report.add("config.jwt_secret", checkJWTSecret(v.cfg.Auth.JWTSecret, production))
	report.add("stripe.api_key", checkStripeKey(v.cfg.Stripe.APIKey, production))
	report.add("stripe.webhook_secret", checkWebhookSecret(v.cfg.Stripe.WebhookSecret))
	report.add("stripe.prices", checkPrices(v.cfg.Stripe.Prices))
	report.add("email.provider", checkEmail(v.cfg.Email, production))

	for _, name := range v.names {
		pctx, cancel := context.WithTimeout(ctx, verifyPingTimeout)
		err := v.pingers[name](pctx)
		cancel()
		report.add(name+".reachable", err)
	}

	if v.restaurants != nil {
		report.add("catalog.not_empty", v.checkCatalog(ctx))
	}

	for _, c := range report.Checks {
		if c.OK {
			v.log.Infow("Check passed", "check", c.Name)
		} else {
			v.log.Errorw("Check failed", "check", c.Name, "detail", c.Detail)
		}
	}
	return report
}

func (v *Verifier) checkCatalog(ctx context.Context) error {
	n, err := v.restaurants.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no active restaurants in catalog")
	}
	return nil
}

func checkPublicURL(raw string, production bool) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("PUBLIC_URL %q is not an absolute URL", raw)
	}
	if production && u.Scheme != "https" {
		return fmt.Errorf("PUBLIC_URL must use https in production")
	}
	if production && strings.HasPrefix(u.Hostname(), "localhost") {
		return fmt.Errorf("PUBLIC_URL points to localhost")
	}
	return nil
}

func checkJWTSecret(secret string, production bool) error {
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	if production && len(secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	return nil
}

// checkStripeKey проверяет, что режим ключа совпадает с окружением
func checkStripeKey(key string, production bool) error {
	switch {
	case key == "":
		return fmt.Errorf("STRIPE_SECRET_KEY is not set")
	case strings.HasPrefix(key, "sk_live_") || strings.HasPrefix(key, "rk_live_"):
		if !production {
			return fmt.Errorf("live Stripe key used outside production")
		}
	case strings.HasPrefix(key, "sk_test_") || strings.HasPrefix(key, "rk_test_"):
		if production {
			return fmt.Errorf("test Stripe key used in production")
		}
	default:
		return fmt.Errorf("STRIPE_SECRET_KEY has an unknown format")
	}
	return nil
}

func checkWebhookSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is not set")
	}
	if !strings.HasPrefix(secret, "whsec_") {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET must start with whsec_")
	}
	return nil
}

func checkPrices(prices map[string]string) error {
	var missing []string
	for _, tier := range domain.PaidTiers {
		p := prices[strings.ToLower(string(tier))]
		if !strings.HasPrefix(p, "price_") {
			missing = append(missing, string(tier))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing Stripe price ids for %s", strings.Join(missing, ", "))
	}
	return nil
}

func checkEmail(cfg config.EmailConfig, production bool) error {
	switch cfg.Provider {
	case "resend":
		if cfg.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is not set")
		}
	case "postmark":
		if cfg.PostmarkServerToken == "" {
			return fmt.Errorf("POSTMARK_SERVER_TOKEN is not set")
		}
	case "dev", "":
		if production {
			return fmt.Errorf("dev email sender used in production")
		}
	default:
		return fmt.Errorf("unknown EMAIL_PROVIDER %q", cfg.Provider)
	}
	if cfg.From == "" {
		return fmt.Errorf("EMAIL_FROM is not set")
	}
	return nil
}
