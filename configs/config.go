package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/lease"
	"github.com/avataralabs/queuelabs-sub000/internal/retry"
	"github.com/avataralabs/queuelabs-sub000/internal/scheduling"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Scheduling struct {
	DisplayOffsetHours int
	HorizonDays        int
	ReserveMaxAttempts int
}

type Dispatch struct {
	Cron              string
	BatchSize         int
	Concurrency       int
	LeaseStaleAfter   time.Duration
	ProcessingTimeout time.Duration
	PublishTimeout    time.Duration
	Retry             retry.Policy
}

type Publish struct {
	WebhookURL   string
	WebhookToken string
	RatePerSec   int
}

type Config struct {
	GoogleClientID     string
	GoogleClientSecret string
	PostgresURI        string
	RedisURI           string
	HTTPAddr           string
	FrontendURL        string
	LogLevel           string
	R2                 R2
	SecretKey          string
	CookieName         string
	Scheduling         Scheduling
	Dispatch           Dispatch
	Publish            Publish
}

func LoadConfig() *Config {
	defaults := retry.DefaultPolicy()

	cfg := &Config{
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		PostgresURI:        getEnv("POSTGRES_URI", ""),
		RedisURI:           getEnv("REDIS_URI", "localhost:6379"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":3000"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:5173"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", ""),
		Scheduling: Scheduling{
			DisplayOffsetHours: getEnvInt("DISPLAY_TZ_OFFSET_HOURS", scheduling.DefaultOffsetHours),
			HorizonDays:        getEnvInt("SCHEDULE_HORIZON_DAYS", scheduling.HorizonDays),
			ReserveMaxAttempts: getEnvInt("RESERVE_MAX_ATTEMPTS", 5),
		},
		Dispatch: Dispatch{
			Cron:              getEnv("DISPATCH_CRON", "@every 1m"),
			BatchSize:         getEnvInt("DISPATCH_BATCH_SIZE", 50),
			Concurrency:       getEnvInt("DISPATCH_CONCURRENCY", 4),
			LeaseStaleAfter:   getEnvDuration("LEASE_STALE_AFTER", 15*time.Minute),
			ProcessingTimeout: getEnvDuration("PROCESSING_TIMEOUT", 2*time.Hour),
			PublishTimeout:    getEnvDuration("PUBLISH_TIMEOUT", 10*time.Minute),
			Retry: retry.Policy{
				MaxRetries: getEnvInt("MAX_RETRIES", defaults.MaxRetries),
				Backoff:    getEnvBackoff("RETRY_BACKOFF", defaults.Backoff),
			},
		},
		Publish: Publish{
			WebhookURL:   getEnv("PUBLISH_WEBHOOK_URL", ""),
			WebhookToken: getEnv("PUBLISH_WEBHOOK_TOKEN", ""),
			RatePerSec:   getEnvInt("PUBLISH_RATE_PER_SEC", 2),
		},
	}

	if max := lease.MaxHold(cfg.Dispatch.LeaseStaleAfter); cfg.Dispatch.PublishTimeout > max {
		slog.Warn("PUBLISH_TIMEOUT must stay inside LEASE_STALE_AFTER, clamping",
			"publish_timeout", cfg.Dispatch.PublishTimeout, "lease_stale_after", cfg.Dispatch.LeaseStaleAfter, "clamped_to", max)
		cfg.Dispatch.PublishTimeout = max
	}
	return cfg
}

// Location returns the display zone slots are interpreted in. An invalid
// offset falls back to the default.
func (c *Config) Location() *time.Location {
	loc, err := scheduling.DisplayZone(c.Scheduling.DisplayOffsetHours)
	if err != nil {
		slog.Warn("invalid display offset, using default", "offset", c.Scheduling.DisplayOffsetHours, "error", err)
		loc, _ = scheduling.DisplayZone(scheduling.DefaultOffsetHours)
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", raw)
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", raw)
		return defaultValue
	}
	return v
}

func getEnvBackoff(key string, defaultValue []time.Duration) []time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := retry.ParseBackoff(raw)
	if err != nil || len(v) == 0 {
		slog.Warn("invalid backoff in environment, using default", "key", key, "value", raw)
		return defaultValue
	}
	return v
}
