package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
	Endpoint   string
}

type Scheduler struct {
	Interval     time.Duration
	BatchSize    int
	StaleAfter   time.Duration
	WorkerConcur int
}

type Publish struct {
	Concurrency    int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	RelayBaseURL   string
}

type Limits struct {
	FreePending  int
	ProPending   int
	RateRequests int
	RateWindow   time.Duration
	UploadURLTTL time.Duration
}

type Config struct {
	Port        string
	PostgresURI string
	RedisURI    string
	R2          R2
	SecretKey   string
	CookieName  string
	SessionTTL  time.Duration
	AutoMigrate bool
	Scheduler   Scheduler
	Publish     Publish
	Limits      Limits
}

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", "error", err)
	}

	return &Config{
		Port:        getEnv("PORT", "3000"),
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "localhost:6379"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
			Endpoint:   getEnv("R2_ENDPOINT", ""),
		},
		SecretKey:   getEnv("SECRET_KEY", ""),
		CookieName:  getEnv("COOKIE_NAME", "session"),
		SessionTTL:  getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", true),
		Scheduler: Scheduler{
			Interval:     getEnvDuration("SCHEDULER_INTERVAL", 60*time.Second),
			BatchSize:    getEnvInt("SCHEDULER_BATCH_SIZE", 100),
			StaleAfter:   getEnvDuration("STALE_PROCESSING_AFTER", 15*time.Minute),
			WorkerConcur: getEnvInt("WORKER_CONCURRENCY", 10),
		},
		Publish: Publish{
			Concurrency:    getEnvInt("PUBLISH_CONCURRENCY", 5),
			Timeout:        getEnvDuration("PUBLISH_TIMEOUT", 30*time.Second),
			MaxAttempts:    getEnvInt("PUBLISH_MAX_ATTEMPTS", 3),
			InitialBackoff: getEnvDuration("PUBLISH_INITIAL_BACKOFF", 2*time.Second),
			RelayBaseURL:   getEnv("RELAY_BASE_URL", ""),
		},
		Limits: Limits{
			FreePending:  getEnvInt("FREE_PENDING_LIMIT", 10),
			ProPending:   getEnvInt("PRO_PENDING_LIMIT", 100),
			RateRequests: getEnvInt("RATE_LIMIT_REQUESTS", 120),
			RateWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			UploadURLTTL: getEnvDuration("UPLOAD_URL_TTL", time.Hour),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
