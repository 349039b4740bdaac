package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	MigrateOnStart     bool
	CORSAllowedOrigins []string

	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	AccessCookie string

	Currency       string
	TaxRate        decimal.Decimal
	ExpressFee     int64
	SponsoredRatio float64
	TimeZone       *time.Location

	CacheTTL          time.Duration
	AnalyticsCacheTTL time.Duration
	IdempotencyTTL    time.Duration
	CouponRateLimit   int64
	CouponRatePeriod  time.Duration
	BodyLimitBytes    int64

	NotifyQueue       string
	NotifyTimeout     time.Duration
	WorkerConcurrency int

	LogFormat          string
	LogLevel           string
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelSamplingRatio  float64
	HTTPMetricsBuckets string
	ShutdownTimeout    time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        valueOrDefault(k.String("DB_URL"), k.String("DATABASE_URL")),
		RedisURL:           k.String("REDIS_URL"),
		MigrateOnStart:     parseBool(k.String("DB_MIGRATE_ON_START")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:        strings.TrimSpace(k.String("JWT_AUDIENCE")),
		AccessCookie:       valueOrDefault(k.String("ACCESS_COOKIE"), "access_token"),
		Currency:           strings.ToUpper(valueOrDefault(k.String("CURRENCY"), "INR")),
		CacheTTL:           parseDuration(k.String("CACHE_TTL"), "60s"),
		AnalyticsCacheTTL:  parseDuration(k.String("ANALYTICS_CACHE_TTL"), "5m"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CouponRateLimit:    parseInt(k.String("COUPON_RATE_LIMIT"), 10),
		CouponRatePeriod:   parseDuration(k.String("COUPON_RATE_PERIOD"), "1m"),
		BodyLimitBytes:     parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20),
		NotifyQueue:        valueOrDefault(k.String("NOTIFY_QUEUE"), "notifications"),
		NotifyTimeout:      parseDuration(k.String("NOTIFY_TIMEOUT"), "2s"),
		WorkerConcurrency:  int(parseInt(k.String("WORKER_CONCURRENCY"), 5)),
		LogFormat:          valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("LOG_LEVEL"), "info"),
		OTelEnabled:        parseBool(k.String("OTEL_ENABLED")),
		OTelEndpoint:       strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTelServiceName:    valueOrDefault(k.String("OTEL_SERVICE_NAME"), "toko-marketplace"),
		HTTPMetricsBuckets: k.String("HTTP_METRICS_BUCKETS"),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "10s"),
	}

	var err error
	if cfg.TaxRate, err = parseDecimal(k.String("TAX_RATE"), "0.05"); err != nil {
		return nil, fmt.Errorf("TAX_RATE: %w", err)
	}
	if cfg.TaxRate.IsNegative() {
		return nil, errors.New("TAX_RATE must not be negative")
	}
	cfg.ExpressFee = parseInt(k.String("EXPRESS_FEE"), 99)
	if cfg.ExpressFee < 0 {
		return nil, errors.New("EXPRESS_FEE must not be negative")
	}
	cfg.SponsoredRatio = parseFloat(k.String("SPONSORED_RATIO"), 0.25)
	if cfg.SponsoredRatio < 0 || cfg.SponsoredRatio > 0.5 {
		return nil, errors.New("SPONSORED_RATIO must be within [0, 0.5]")
	}
	cfg.OTelSamplingRatio = parseFloat(k.String("OTEL_SAMPLING_RATIO"), 1)
	if cfg.TimeZone, err = time.LoadLocation(valueOrDefault(k.String("TIME_ZONE"), "UTC")); err != nil {
		return nil, fmt.Errorf("TIME_ZONE: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DB_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseDecimal(value, fallback string) (decimal.Decimal, error) {
	return decimal.NewFromString(valueOrDefault(strings.TrimSpace(value), fallback))
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
