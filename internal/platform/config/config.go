package config

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	MediaBackendLocal = "local"
	MediaBackendS3    = "s3"

	minSessionSecretLen = 32
)

var orderPrefixPattern = regexp.MustCompile(`^[A-Z]{1,6}$`)

type Config struct {
	AppEnv        string        `env:"APP_ENV" default:"development"`
	Port          string        `env:"PORT" default:"8080"`
	BaseURL       string        `env:"BASE_URL" default:"http://localhost:8080"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	RedisURL      string        `env:"REDIS_URL"`
	SessionSecret string        `env:"SESSION_SECRET"`
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" default:"168h"` // 7 days
	LogLevel      string        `env:"LOG_LEVEL" default:"info"`
	LogFormat     string        `env:"LOG_FORMAT" default:"text"`

	Currency           string `env:"CURRENCY" default:"BDT"`
	OrderNumberPrefix  string `env:"ORDER_NUMBER_PREFIX" default:"RM"`
	ShippingFeeInside  int64  `env:"SHIPPING_FEE_INSIDE" default:"6000"`
	ShippingFeeOutside int64  `env:"SHIPPING_FEE_OUTSIDE" default:"12000"`
	FreeShippingMin    int64  `env:"FREE_SHIPPING_MIN" default:"0"`
	LowStockThreshold  int    `env:"LOW_STOCK_THRESHOLD" default:"5"`

	CartTTL         time.Duration `env:"CART_TTL" default:"720h"`
	ProductCacheTTL time.Duration `env:"PRODUCT_CACHE_TTL" default:"30s"`

	MediaBackend     string        `env:"MEDIA_BACKEND" default:"local"`
	MediaLocalDir    string        `env:"MEDIA_LOCAL_DIR" default:"./data/media"`
	MediaMaxBytes    int64         `env:"MEDIA_MAX_BYTES" default:"5242880"`
	MediaOrphanAge   time.Duration `env:"MEDIA_ORPHAN_AGE" default:"24h"`
	S3Endpoint       string        `env:"S3_ENDPOINT"`
	S3Bucket         string        `env:"S3_BUCKET"`
	S3Region         string        `env:"S3_REGION" default:"us-east-1"`
	S3AccessKeyID    string        `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey      string        `env:"S3_SECRET_ACCESS_KEY"`
	S3PathStyle      bool          `env:"S3_PATH_STYLE" default:"false"`
	S3DisableSSL     bool          `env:"S3_DISABLE_SSL" default:"false"`

	PaymentGatewayURL string        `env:"PAYMENT_GATEWAY_URL"`
	PaymentGatewayKey string        `env:"PAYMENT_GATEWAY_KEY"`
	PaymentTimeout    time.Duration `env:"PAYMENT_TIMEOUT" default:"2h"`

	JobExpireOrdersSpec string `env:"JOB_EXPIRE_ORDERS_SPEC" default:"@every 5m"`
	JobPurgeMediaSpec   string `env:"JOB_PURGE_MEDIA_SPEC" default:"@every 1h"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" default:"20"`
}

// IsProduction reports whether cookies must be marked Secure.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// PaymentsEnabled reports whether online payment can be offered at checkout.
func (c *Config) PaymentsEnabled() bool {
	return c.PaymentGatewayURL != ""
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadForTools loads the same settings as Load but only requires
// DATABASE_URL. Operator commands that never serve traffic use it.
func LoadForTools() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"SESSION_SECRET", cfg.SessionSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(cfg.SessionSecret) < minSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLen)
	}

	switch cfg.MediaBackend {
	case MediaBackendLocal:
	case MediaBackendS3:
		if cfg.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when MEDIA_BACKEND=s3")
		}
	default:
		return fmt.Errorf("MEDIA_BACKEND must be %q or %q, got %q", MediaBackendLocal, MediaBackendS3, cfg.MediaBackend)
	}

	if cfg.ShippingFeeInside < 0 || cfg.ShippingFeeOutside < 0 || cfg.FreeShippingMin < 0 {
		return errors.New("shipping fees must not be negative")
	}

	if !orderPrefixPattern.MatchString(cfg.OrderNumberPrefix) {
		return errors.New("ORDER_NUMBER_PREFIX must be 1 to 6 uppercase letters")
	}

	if cfg.MediaMaxBytes <= 0 {
		return errors.New("MEDIA_MAX_BYTES must be positive")
	}

	return nil
}
