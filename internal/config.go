package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env       string `validate:"oneof=dev prod"`
	LogLevel  string `validate:"oneof=debug info warn error"`
	Cart      CartConfig
	Cache     CacheConfig
	Storage   StorageConfig
	Events    EventsConfig
	Wishlist  WishlistConfig
	DevServer DevServerConfig
	Metrics   MetricsConfig
	Sentry    SentryConfig
}

// CartConfig points the engine at the remote cart service.
// The guest cart lives on a distinct base from the authenticated cart.
type CartConfig struct {
	AuthBaseURL    string        `validate:"required,url"`
	GuestBaseURL   string        `validate:"required,url"`
	ProductBaseURL string        `validate:"required,url"`
	Timeout        time.Duration `validate:"gt=0"`

	// RateLimit caps outbound requests per second per backend (0 = unlimited).
	RateLimit float64 `validate:"gte=0"`
	RateBurst int     `validate:"gte=0"`

	// BreakerFailures consecutive failures open the circuit for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// CacheConfig holds the TTL for each cache class.
type CacheConfig struct {
	GuestCartTTL      time.Duration `validate:"gt=0"`
	ProductTTL        time.Duration `validate:"gt=0"`
	EnrichConcurrency int           `validate:"gte=1"`
}

type StorageConfig struct {
	Provider      string `validate:"oneof=memory local redis"`
	LocalPath     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Namespace     string
}

// EventsConfig enables the NATS relay for the event bus when NATSURL is set.
type EventsConfig struct {
	NATSURL string
	Subject string
}

type WishlistConfig struct {
	// CheckEnabled keeps GET /favorites/{id}/check live. When false,
	// membership is answered from the full list.
	CheckEnabled bool
}

type DevServerConfig struct {
	Port uint16
}

type MetricsConfig struct {
	Namespace string
}

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	DSN              string
	Enabled          bool
	Environment      string
	Release          string
	SampleRate       float64
	TracesSampleRate float64
	Debug            bool
}

func NewConfig() (*Config, error) {
	// Try to load .env from current directory, then walk up to find it (max 2 levels)
	err := godotenv.Load()
	if err != nil {
		dir, _ := os.Getwd()
		found := false
		for i := 0; i < 2; i++ {
			dir = filepath.Join(dir, "..")
			if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
				found = true
				break
			}
		}
		if !found {
			slog.Default().Debug(".env file not found, using environment variables and defaults")
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env:      v.GetString("env"),
		LogLevel: v.GetString("log_level"),
		Cart: CartConfig{
			AuthBaseURL:     v.GetString("cart.auth_base_url"),
			GuestBaseURL:    v.GetString("cart.guest_base_url"),
			ProductBaseURL:  v.GetString("cart.product_base_url"),
			Timeout:         v.GetDuration("cart.http_timeout"),
			RateLimit:       v.GetFloat64("cart.rate_limit"),
			RateBurst:       v.GetInt("cart.rate_burst"),
			BreakerFailures: v.GetUint32("cart.breaker_failures"),
			BreakerTimeout:  v.GetDuration("cart.breaker_timeout"),
		},
		Cache: CacheConfig{
			GuestCartTTL:      v.GetDuration("cache.guest_cart_ttl"),
			ProductTTL:        v.GetDuration("cache.product_ttl"),
			EnrichConcurrency: v.GetInt("enrich.concurrency"),
		},
		Storage: StorageConfig{
			Provider:      v.GetString("storage.provider"),
			LocalPath:     v.GetString("local.storage_path"),
			RedisAddr:     v.GetString("redis.addr"),
			RedisPassword: v.GetString("redis.password"),
			RedisDB:       v.GetInt("redis.db"),
			Namespace:     v.GetString("storage.namespace"),
		},
		Events: EventsConfig{
			NATSURL: v.GetString("events.nats_url"),
			Subject: v.GetString("events.nats_subject"),
		},
		Wishlist: WishlistConfig{
			CheckEnabled: v.GetBool("wishlist.check_enabled"),
		},
		DevServer: DevServerConfig{
			Port: uint16(v.GetUint("devserver.port")),
		},
		Metrics: MetricsConfig{
			Namespace: v.GetString("metrics.namespace"),
		},
		Sentry: SentryConfig{
			DSN:              v.GetString("sentry.dsn"),
			Enabled:          v.GetBool("sentry.enabled"),
			Environment:      v.GetString("sentry.environment"),
			Release:          v.GetString("sentry.release"),
			SampleRate:       v.GetFloat64("sentry.sample_rate"),
			TracesSampleRate: v.GetFloat64("sentry.traces_sample_rate"),
			Debug:            v.GetBool("sentry.debug"),
		},
	}

	// Validate env
	if cfg.Env != "dev" && cfg.Env != "prod" {
		slog.Default().Warn("Invalid environment. Using default: prod", slog.String("env", cfg.Env))
		cfg.Env = "prod"
	}

	// Validate log level
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		slog.Default().Warn("Invalid log level. Using default: info", slog.String("value", cfg.LogLevel))
		cfg.LogLevel = "info"
	}

	if cfg.Storage.Provider == "redis" && cfg.Storage.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR required when STORAGE_PROVIDER=redis")
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")

	v.SetDefault("cart.auth_base_url", "http://localhost:8081")
	v.SetDefault("cart.guest_base_url", "http://localhost:8081/guest")
	v.SetDefault("cart.product_base_url", "http://localhost:8081")
	v.SetDefault("cart.http_timeout", 10*time.Second)
	v.SetDefault("cart.rate_limit", 0)
	v.SetDefault("cart.rate_burst", 10)
	v.SetDefault("cart.breaker_failures", 5)
	v.SetDefault("cart.breaker_timeout", 30*time.Second)

	v.SetDefault("cache.guest_cart_ttl", 30*time.Minute)
	v.SetDefault("cache.product_ttl", 24*time.Hour)
	v.SetDefault("enrich.concurrency", 8)

	v.SetDefault("storage.provider", "memory")
	v.SetDefault("local.storage_path", defaultStoragePath())
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("storage.namespace", "cartsync")

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.nats_subject", "cartsync.events")

	v.SetDefault("wishlist.check_enabled", false)
	v.SetDefault("devserver.port", 8081)
	v.SetDefault("metrics.namespace", "cartsync")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.enabled", false) // Disabled by default for development
	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.release", "")
	v.SetDefault("sentry.sample_rate", 1.0)
	v.SetDefault("sentry.traces_sample_rate", 0.0)
	v.SetDefault("sentry.debug", false)
}

func defaultStoragePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "cartsync")
	}
	return ".cartsync"
}
