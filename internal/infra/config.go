package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	// DatabaseURL is optional; when empty the service keeps generation jobs
	// in the in-memory store instead of PostgreSQL.
	DatabaseURL string

	StabilityAPIKey  string
	StabilityBaseURL string
	StabilityEngine  string
	LumaAPIKey       string
	LumaBaseURL      string

	StoragePath string

	PollInterval    time.Duration
	PollMaxAttempts int
	PollBackoffBase time.Duration
	PollWorkers     int
	ProviderTimeout time.Duration

	EventQueueSize int
	WSQueueSize    int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StabilityAPIKey:  os.Getenv("STABILITY_API_KEY"),
		StabilityBaseURL: getEnv("STABILITY_BASE_URL", "https://api.stability.ai/v1"),
		StabilityEngine:  getEnv("STABILITY_ENGINE", "stable-diffusion-xl-1024-v1-0"),
		LumaAPIKey:       os.Getenv("LUMAAI_API_KEY"),
		LumaBaseURL:      getEnv("LUMA_BASE_URL", "https://api.lumalabs.ai/dream-machine/v1"),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		PollInterval:     time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 2)),
		PollMaxAttempts:  getEnvInt("POLL_MAX_ATTEMPTS", 5),
		PollBackoffBase:  time.Second * time.Duration(getEnvInt("POLL_BACKOFF_BASE_SECONDS", 2)),
		PollWorkers:      getEnvInt("POLL_WORKERS", 4),
		ProviderTimeout:  time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 60)),
		EventQueueSize:   getEnvInt("EVENT_QUEUE_SIZE", 256),
		WSQueueSize:      getEnvInt("WS_QUEUE_SIZE", 64),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.PollMaxAttempts < 1 {
		return nil, fmt.Errorf("POLL_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.PollWorkers < 1 {
		return nil, fmt.Errorf("POLL_WORKERS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
