package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Partners  PartnersConfig  `mapstructure:"partners"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Email     EmailConfig     `mapstructure:"email"`
	Places    PlacesConfig    `mapstructure:"places"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Auth      AuthConfig      `mapstructure:"auth"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig общие параметры приложения
type AppConfig struct {
	Name      string `mapstructure:"name"`
	Env       string `mapstructure:"env"`
	PublicURL string `mapstructure:"publicUrl"`
}

// ServerConfig конфигурация HTTP сервера
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// DatabaseConfig конфигурация основной базы (каталог, подписки, аналитика)
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres | memory
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"maxConns"`
	MinConns int32  `mapstructure:"minConns"`
}

// PartnersConfig конфигурация базы партнеров (лиды, кампании, тарифы)
type PartnersConfig struct {
	Driver string `mapstructure:"driver"` // pgx | sqlite
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig конфигурация кеша
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cacheTtl"`
}

// KafkaConfig конфигурация брокера событий
type KafkaConfig struct {
	Brokers            []string `mapstructure:"brokers"`
	AnalyticsTopic     string   `mapstructure:"analyticsTopic"`
	SubscriptionsTopic string   `mapstructure:"subscriptionsTopic"`
	GroupID            string   `mapstructure:"groupId"`
}

// StripeConfig конфигурация Stripe
type StripeConfig struct {
	APIKey        string            `mapstructure:"apiKey"`
	WebhookSecret string            `mapstructure:"webhookSecret"`
	SuccessURL    string            `mapstructure:"successUrl"`
	CancelURL     string            `mapstructure:"cancelUrl"`
	PortalReturn  string            `mapstructure:"portalReturnUrl"`
	Prices        map[string]string `mapstructure:"prices"` // tier -> price id
}

// EmailConfig конфигурация отправки почты
type EmailConfig struct {
	Provider             string `mapstructure:"provider"` // resend | postmark | dev
	ResendAPIKey         string `mapstructure:"resendApiKey"`
	PostmarkServerToken  string `mapstructure:"postmarkServerToken"`
	PostmarkAccountToken string `mapstructure:"postmarkAccountToken"`
	From                 string `mapstructure:"from"`
	ReplyTo              string `mapstructure:"replyTo"`
	SenderName           string `mapstructure:"senderName"`
	DevDir               string `mapstructure:"devDir"`
}

// PlacesConfig конфигурация Google Places
type PlacesConfig struct {
	APIKey       string        `mapstructure:"apiKey"`
	BaseURL      string        `mapstructure:"baseUrl"`
	RatePerSec   float64       `mapstructure:"ratePerSecond"`
	Location     string        `mapstructure:"location"` // "lat,lng"
	RadiusMeters int           `mapstructure:"radiusMeters"`
	MaxPages     int           `mapstructure:"maxPages"`
	SyncInterval time.Duration `mapstructure:"syncInterval"`
}

// AnthropicConfig конфигурация генерации статей
type AnthropicConfig struct {
	APIKey    string        `mapstructure:"apiKey"`
	BaseURL   string        `mapstructure:"baseUrl"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"maxTokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AuthConfig конфигурация аутентификации
type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwtSecret"`
	TokenTTL     time.Duration `mapstructure:"tokenTtl"`
	CookieName   string        `mapstructure:"cookieName"`
	SecureCookie bool          `mapstructure:"secureCookie"`
}

// GRPCConfig конфигурация gRPC сервера
type GRPCConfig struct {
	Port string `mapstructure:"port"`
}

// RateLimitConfig ограничение частоты запросов публичного API
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// LoggingConfig конфигурация логгера
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// envBindings явные имена переменных окружения для ключей конфигурации
var envBindings = map[string]string{
	"app.env":                    "APP_ENV",
	"app.publicUrl":              "PUBLIC_URL",
	"server.port":                "PORT",
	"server.shutdownTimeout":     "SERVER_SHUTDOWN_TIMEOUT",
	"database.driver":            "DATABASE_DRIVER",
	"database.dsn":               "DATABASE_URL",
	"partners.driver":            "PARTNERS_DB_DRIVER",
	"partners.dsn":               "PARTNERS_DATABASE_URL",
	"redis.addr":                 "REDIS_ADDR",
	"redis.password":             "REDIS_PASSWORD",
	"redis.db":                   "REDIS_DB",
	"kafka.brokers":              "KAFKA_BROKERS",
	"kafka.groupId":              "KAFKA_GROUP_ID",
	"stripe.apiKey":              "STRIPE_SECRET_KEY",
	"stripe.webhookSecret":       "STRIPE_WEBHOOK_SECRET",
	"stripe.successUrl":          "STRIPE_SUCCESS_URL",
	"stripe.cancelUrl":           "STRIPE_CANCEL_URL",
	"stripe.prices.basic":        "STRIPE_PRICE_BASIC",
	"stripe.prices.pro":          "STRIPE_PRICE_PRO",
	"stripe.prices.premium":      "STRIPE_PRICE_PREMIUM",
	"email.provider":             "EMAIL_PROVIDER",
	"email.resendApiKey":         "RESEND_API_KEY",
	"email.postmarkServerToken":  "POSTMARK_SERVER_TOKEN",
	"email.postmarkAccountToken": "POSTMARK_ACCOUNT_TOKEN",
	"email.from":                 "EMAIL_FROM",
	"email.replyTo":              "EMAIL_REPLY_TO",
	"places.apiKey":              "GOOGLE_PLACES_API_KEY",
	"places.syncInterval":        "PLACES_SYNC_INTERVAL",
	"anthropic.apiKey":           "ANTHROPIC_API_KEY",
	"anthropic.model":            "ANTHROPIC_MODEL",
	"auth.jwtSecret":             "JWT_SECRET",
	"grpc.port":                  "GRPC_PORT",
	"logging.level":              "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ekaty")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.publicUrl", "http://localhost:3000")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 15*time.Second)
	v.SetDefault("server.writeTimeout", 15*time.Second)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.maxConns", 10)
	v.SetDefault("database.minConns", 2)

	v.SetDefault("partners.driver", "sqlite")
	v.SetDefault("partners.dsn", "file:partners.db?_pragma=foreign_keys(1)")

	v.SetDefault("redis.cacheTtl", 15*time.Minute)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.analyticsTopic", "ekaty.analytics")
	v.SetDefault("kafka.subscriptionsTopic", "ekaty.subscriptions")
	v.SetDefault("kafka.groupId", "ekaty-worker")

	v.SetDefault("stripe.successUrl", "http://localhost:3000/billing/success?session_id={CHECKOUT_SESSION_ID}")
	v.SetDefault("stripe.cancelUrl", "http://localhost:3000/billing/canceled")
	v.SetDefault("stripe.portalReturnUrl", "http://localhost:3000/account")

	v.SetDefault("email.provider", "dev")
	v.SetDefault("email.from", "eKaty <hello@ekaty.com>")
	v.SetDefault("email.senderName", "The eKaty Team")
	v.SetDefault("email.devDir", "tmp/emails")

	v.SetDefault("places.baseUrl", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("places.ratePerSecond", 5.0)
	v.SetDefault("places.location", "29.7858,-95.8245")
	v.SetDefault("places.radiusMeters", 16000)
	v.SetDefault("places.maxPages", 3)
	v.SetDefault("places.syncInterval", 24*time.Hour)

	v.SetDefault("anthropic.baseUrl", "https://api.anthropic.com/v1")
	v.SetDefault("anthropic.model", "claude-3-5-sonnet-latest")
	v.SetDefault("anthropic.maxTokens", 4096)
	v.SetDefault("anthropic.timeout", 120*time.Second)

	v.SetDefault("auth.tokenTtl", 24*time.Hour)
	v.SetDefault("auth.cookieName", "ekaty_session")

	v.SetDefault("grpc.port", "9090")

	v.SetDefault("rateLimit.rps", 10.0)
	v.SetDefault("rateLimit.burst", 20)

	v.SetDefault("logging.level", "info")
}

// LoadConfig загружает конфигурацию: значения по умолчанию, затем config.yml (если есть),
// затем переменные окружения. Файл .env читается вне production.
func LoadConfig(path string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		envFile := ".env"
		if path != "" {
			envFile = path + "/.env"
		}
		// Отсутствие .env не ошибка
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// KAFKA_BROKERS приходит строкой через запятую
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers[0])
	}
	if cfg.Stripe.Prices == nil {
		cfg.Stripe.Prices = map[string]string{}
	}
	for _, tier := range []string{"basic", "pro", "premium"} {
		if p := v.GetString("stripe.prices." + tier); p != "" {
			cfg.Stripe.Prices[tier] = p
		}
	}

	return &cfg, nil
}

// IsProduction сообщает, запущено ли приложение в production окружении
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Validate проверяет обязательные для production параметры
func (c *Config) Validate() error {
	var problems []string
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		problems = append(problems, "DATABASE_URL is required for the postgres driver")
	}
	// Схема партнеров повторяет таблицы Supabase, среди них restaurants, и нужна отдельная база
	if c.Database.Driver == "postgres" && c.Partners.Driver != "memory" && c.Partners.DSN != "" &&
		strings.TrimSpace(c.Partners.DSN) == strings.TrimSpace(c.Database.DSN) {
		problems = append(problems, "PARTNERS_DATABASE_URL must point to a separate database")
	}
	if c.IsProduction() {
		if c.Stripe.APIKey == "" {
			problems = append(problems, "STRIPE_SECRET_KEY is required in production")
		}
		if c.Stripe.WebhookSecret == "" {
			problems = append(problems, "STRIPE_WEBHOOK_SECRET is required in production")
		}
		if c.Email.Provider == "dev" {
			problems = append(problems, "EMAIL_PROVIDER=dev is not allowed in production")
		}
		if c.Database.Driver == "memory" {
			problems = append(problems, "DATABASE_DRIVER=memory is not allowed in production")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
