package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	DBMaxConns int
	DBMinConns int

	StoragePath    string
	StorageBaseURL string
	StorageSignKey string

	ProviderBaseURL string
	ProviderAPIKey  string
	ScraperBaseURL  string
	ScriptBaseURL   string
	ScriptAPIKey    string

	// Billing.
	CreditUnitUSD float64

	// Quality gate and regeneration policy.
	QualityMinScore      float64
	MaxAutoRegenerations int

	// Circuit breaker.
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration

	// Batch orchestration.
	BatchWindowSize      int
	BatchItemStagger     time.Duration
	BatchWindowDelay     time.Duration
	BatchReclaimInterval time.Duration
	BatchReclaimAge      time.Duration

	// Per-dependency requests-per-minute ceilings.
	ScrapeRPM   int
	ScriptRPM   int
	ProviderRPM int

	// Worker.
	PollInterval      time.Duration
	ProcessingTimeout time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		DBMaxConns: getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns: getEnvInt("DB_MIN_CONNS", 1),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		StorageSignKey: getEnv("STORAGE_SIGN_KEY", "dev-sign-key"),

		ProviderBaseURL: getEnv("VIDEO_PROVIDER_BASE_URL", "https://api.piapi.ai/v1"),
		ProviderAPIKey:  os.Getenv("VIDEO_PROVIDER_API_KEY"),
		ScraperBaseURL:  getEnv("SCRAPER_BASE_URL", "https://api.scraperbox.io/v1"),
		ScriptBaseURL:   getEnv("SCRIPT_BASE_URL", "https://api.openai.com/v1"),
		ScriptAPIKey:    os.Getenv("SCRIPT_API_KEY"),

		CreditUnitUSD: getEnvFloat("CREDIT_UNIT_USD", 0.005),

		QualityMinScore:      getEnvFloat("QUALITY_MIN_SCORE", 0.70),
		MaxAutoRegenerations: getEnvInt("MAX_AUTO_REGENERATIONS", 1),

		BreakerFailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerCooldown:         time.Second * time.Duration(getEnvInt("BREAKER_COOLDOWN_SECONDS", 60)),

		BatchWindowSize:      getEnvInt("BATCH_WINDOW_SIZE", 5),
		BatchItemStagger:     time.Millisecond * time.Duration(getEnvInt("BATCH_ITEM_STAGGER_MS", 500)),
		BatchWindowDelay:     time.Second * time.Duration(getEnvInt("BATCH_WINDOW_DELAY_SECONDS", 3)),
		BatchReclaimInterval: time.Second * time.Duration(getEnvInt("BATCH_RECLAIM_INTERVAL_SECONDS", 300)),
		BatchReclaimAge:      time.Minute * time.Duration(getEnvInt("BATCH_RECLAIM_AGE_MINUTES", 10)),

		ScrapeRPM:   getEnvInt("SCRAPE_RPM", 20),
		ScriptRPM:   getEnvInt("SCRIPT_RPM", 30),
		ProviderRPM: getEnvInt("PROVIDER_RPM", 10),

		PollInterval:      time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 15)),
		ProcessingTimeout: time.Minute * time.Duration(getEnvInt("PROCESSING_TIMEOUT_MINUTES", 60)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.CreditUnitUSD <= 0 {
		return nil, fmt.Errorf("CREDIT_UNIT_USD must be positive")
	}

	if cfg.QualityMinScore < 0 || cfg.QualityMinScore > 1 {
		return nil, fmt.Errorf("QUALITY_MIN_SCORE must be within [0, 1]")
	}

	if cfg.MaxAutoRegenerations < 0 {
		return nil, fmt.Errorf("MAX_AUTO_REGENERATIONS must not be negative")
	}

	if cfg.BatchWindowSize < 1 {
		return nil, fmt.Errorf("BATCH_WINDOW_SIZE must be at least 1")
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

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
