package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir  string        `mapstructure:"MIGRATIONS_DIR"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	RedisURL             string        `mapstructure:"REDIS_URL"`
	AvailabilityCacheTTL time.Duration `mapstructure:"AVAILABILITY_CACHE_TTL"`
	// AvailabilityCacheSize bounds the in-process cache used without Redis. 0 disables it.
	AvailabilityCacheSize int    `mapstructure:"AVAILABILITY_CACHE_SIZE"`
	AMQPURL               string `mapstructure:"AMQP_URL"`
	AMQPExchange          string `mapstructure:"AMQP_EXCHANGE"`

	PaymentWebhookSecret string `mapstructure:"PAYMENT_WEBHOOK_SECRET"`
	PaymentWebhookVerify bool   `mapstructure:"PAYMENT_WEBHOOK_VERIFY"`

	VideoAPIURL         string        `mapstructure:"VIDEO_API_URL"`
	VideoAPIKey         string        `mapstructure:"VIDEO_API_KEY"`
	VideoAPITimeout     time.Duration `mapstructure:"VIDEO_API_TIMEOUT"`
	VideoMaxCallSeconds int           `mapstructure:"VIDEO_MAX_CALL_SECONDS"`
	VideoRetryMax       int           `mapstructure:"VIDEO_RETRY_MAX"`
	WorkerConcurrency   int           `mapstructure:"WORKER_CONCURRENCY"`

	SlotMinutes              int `mapstructure:"SLOT_MINUTES"`
	AvailableDatesWindowDays int `mapstructure:"AVAILABLE_DATES_WINDOW_DAYS"`
	AvailableDatesMaxDays    int `mapstructure:"AVAILABLE_DATES_MAX_DAYS"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"REDIS_URL", "AVAILABILITY_CACHE_TTL", "AVAILABILITY_CACHE_SIZE", "AMQP_URL", "AMQP_EXCHANGE",
	"PAYMENT_WEBHOOK_SECRET", "PAYMENT_WEBHOOK_VERIFY",
	"VIDEO_API_URL", "VIDEO_API_KEY", "VIDEO_API_TIMEOUT", "VIDEO_MAX_CALL_SECONDS",
	"VIDEO_RETRY_MAX", "WORKER_CONCURRENCY",
	"SLOT_MINUTES", "AVAILABLE_DATES_WINDOW_DAYS", "AVAILABLE_DATES_MAX_DAYS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("AVAILABILITY_CACHE_TTL", "10m")
	v.SetDefault("AVAILABILITY_CACHE_SIZE", 1024)
	v.SetDefault("AMQP_EXCHANGE", "consultbook.events")
	v.SetDefault("PAYMENT_WEBHOOK_VERIFY", true)
	v.SetDefault("VIDEO_API_TIMEOUT", "10s")
	v.SetDefault("VIDEO_MAX_CALL_SECONDS", 3600)
	v.SetDefault("VIDEO_RETRY_MAX", 5)
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("SLOT_MINUTES", 30)
	v.SetDefault("AVAILABLE_DATES_WINDOW_DAYS", 90)
	v.SetDefault("AVAILABLE_DATES_MAX_DAYS", 366)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
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

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a token source must be configured and webhook verification cannot be
// switched off.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if !c.PaymentWebhookVerify && !c.IsDev() {
		return fmt.Errorf("PAYMENT_WEBHOOK_VERIFY may only be disabled in development (ENV=%q)", c.Env)
	}
	if c.PaymentWebhookVerify && c.PaymentWebhookSecret == "" {
		return fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required while PAYMENT_WEBHOOK_VERIFY is enabled")
	}
	if c.VideoMaxCallSeconds <= 0 {
		return fmt.Errorf("VIDEO_MAX_CALL_SECONDS must be positive, got %d", c.VideoMaxCallSeconds)
	}
	if c.VideoAPIURL != "" && c.VideoAPIKey == "" {
		return fmt.Errorf("VIDEO_API_KEY is required when VIDEO_API_URL is set")
	}
	if c.SlotMinutes <= 0 || c.SlotMinutes >= 24*60 {
		return fmt.Errorf("SLOT_MINUTES must be between 1 and 1439, got %d", c.SlotMinutes)
	}
	if c.AvailableDatesWindowDays <= 0 {
		return fmt.Errorf("AVAILABLE_DATES_WINDOW_DAYS must be positive, got %d", c.AvailableDatesWindowDays)
	}
	if c.AvailableDatesMaxDays < c.AvailableDatesWindowDays {
		return fmt.Errorf("AVAILABLE_DATES_MAX_DAYS (%d) must be at least AVAILABLE_DATES_WINDOW_DAYS (%d)", c.AvailableDatesMaxDays, c.AvailableDatesWindowDays)
	}
	if c.AvailabilityCacheSize < 0 {
		return fmt.Errorf("AVAILABILITY_CACHE_SIZE must not be negative, got %d", c.AvailabilityCacheSize)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
