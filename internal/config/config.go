package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"marketpay/internal/pkg/validator"
)

const defaultJWTSecret = "change-me-jwt-secret"

type Config struct {
	AppEnv   string `yaml:"app_env" env:"APP_ENV" env-default:"dev"`
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR" env-default:":8080" validate:"required"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=trace debug info warn warning error"`

	DatabaseURL       string `yaml:"database_url" env:"DATABASE_URL" env-default:"marketpay.db" validate:"required"`
	MigrationsEnabled bool   `yaml:"migrations_enabled" env:"MIGRATIONS_ENABLED" env-default:"true"`

	JWTSecret         string `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"change-me-jwt-secret"`
	InternalTokenHash string `yaml:"internal_token_hash" env:"INTERNAL_TOKEN_HASH"`

	StripeSecretKey     string        `yaml:"stripe_secret_key" env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `yaml:"stripe_webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	GatewayTimeout      time.Duration `yaml:"gateway_timeout" env:"GATEWAY_TIMEOUT" env-default:"15s" validate:"gt=0"`

	PlatformFeeRate string `yaml:"platform_fee_rate" env:"PLATFORM_FEE_RATE" env-default:"0.10"`
	DefaultCurrency string `yaml:"default_currency" env:"DEFAULT_CURRENCY" env-default:"aud" validate:"len=3"`
	DefaultCountry  string `yaml:"default_country" env:"DEFAULT_COUNTRY" env-default:"AU" validate:"len=2"`
	PublicAppURL    string `yaml:"public_app_url" env:"PUBLIC_APP_URL" env-default:"http://localhost:3000" validate:"url"`

	KafkaBrokers []string `yaml:"kafka_brokers" env:"KAFKA_BROKERS" env-separator:","`
	KafkaTopic   string   `yaml:"kafka_topic" env:"KAFKA_TOPIC" env-default:"settlement.events"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:","`

	ReconcileStaleAfter time.Duration `yaml:"reconcile_stale_after" env:"RECONCILE_STALE_AFTER" env-default:"24h" validate:"gt=0"`
	ReconcileBatchSize  int           `yaml:"reconcile_batch_size" env:"RECONCILE_BATCH_SIZE" env-default:"100" validate:"min=1,max=1000"`
	WebhookMaxAttempts  int           `yaml:"webhook_max_attempts" env:"WEBHOOK_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`

	feeRate decimal.Decimal
}

// FeeRate is PlatformFeeRate parsed.
func (c *Config) FeeRate() decimal.Decimal {
	return c.feeRate
}

// Load reads .env (when present), then CONFIG_PATH (when set), then the
// environment, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.DefaultCurrency = strings.ToLower(cfg.DefaultCurrency)
	cfg.DefaultCountry = strings.ToUpper(cfg.DefaultCountry)
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	cfg.CORSAllowedOrigins = compact(cfg.CORSAllowedOrigins)

	rate, err := decimal.NewFromString(strings.TrimSpace(cfg.PlatformFeeRate))
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_FEE_RATE %q: %w", cfg.PlatformFeeRate, err)
	}
	cfg.feeRate = rate

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if errs := validator.Validate(cfg); errs != nil {
		fields := make([]string, 0, len(errs))
		for field, rule := range errs {
			fields = append(fields, field+" ("+rule+")")
		}
		sort.Strings(fields)
		return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
	}
	if cfg.feeRate.IsNegative() || cfg.feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("PLATFORM_FEE_RATE must be in [0, 1)")
	}

	if cfg.IsProdLike() {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if strings.TrimSpace(cfg.InternalTokenHash) == "" {
			return fmt.Errorf("in prod/release INTERNAL_TOKEN_HASH must be set")
		}
		if strings.TrimSpace(cfg.StripeSecretKey) == "" {
			return fmt.Errorf("in prod/release STRIPE_SECRET_KEY must be set")
		}
		if strings.TrimSpace(cfg.StripeWebhookSecret) == "" {
			return fmt.Errorf("in prod/release STRIPE_WEBHOOK_SECRET must be set")
		}
	}
	return nil
}

func (c *Config) IsProdLike() bool {
	return isProdLike(c.AppEnv)
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
