package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName             string
	HTTPAddr                string
	LogLevel                string
	CRDBDSN                 string
	MongoURI                string
	MongoDatabase           string
	RedisAddr               string
	RabbitURL               string
	OTLPEndpoint            string
	QuoteCacheTTL           time.Duration
	IdempotencyTTL          time.Duration
	CompletionSweepInterval time.Duration
	OutboxPollInterval      time.Duration
	OverridePolicy          string
	DefaultCurrency         string
	PaymentQueue            string
	JWTSecret               string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:     getenv("SERVICE_NAME", "stays"),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		CRDBDSN:         os.Getenv("CRDB_DSN"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   getenv("MONGO_DATABASE", "stays"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RabbitURL:       os.Getenv("RABBIT_URL"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OverridePolicy:  getenv("OVERRIDE_POLICY", "cumulative"),
		DefaultCurrency: getenv("DEFAULT_CURRENCY", "DZD"),
		PaymentQueue:    getenv("PAYMENT_QUEUE", "bookings.payments"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
	}

	var err error
	if cfg.QuoteCacheTTL, err = duration("QUOTE_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = duration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CompletionSweepInterval, err = duration("COMPLETION_SWEEP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.OutboxPollInterval, err = duration("OUTBOX_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}

	switch cfg.OverridePolicy {
	case "cumulative", "last-wins":
	default:
		return nil, errors.Newf("OVERRIDE_POLICY must be cumulative or last-wins, got %q", cfg.OverridePolicy)
	}

	if cfg.CRDBDSN == "" {
		return nil, errors.New("CRDB_DSN is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	if d <= 0 {
		return 0, errors.Newf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}
