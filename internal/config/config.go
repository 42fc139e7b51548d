package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	DatabaseURL      string
	ServerPort       string
	BaseURL          string
	FrontendURL      string
	EnableHSTS       bool
	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int
	WorkerDebugMode  bool
	ServerDebugMode  bool
	OTELEnabled      bool
	OTELEndpoint     string

	// AI
	OpenAIKey     string
	AIBaseURL     string
	ReportModel   string
	ClassifyModel string
	AITimeout     time.Duration

	// Blob storage
	GCSBucket          string
	GCSCredentialsFile string
	GCSCredentialsJSON string
	SignedURLTTL       time.Duration

	// Report pipeline
	ReportBudgetCeiling      int
	ReportImageAllowance     int
	ReportPDFAllowance       int
	ReportResolveConcurrency int
	ReportRateLimit          string

	// OIDC
	OIDCIssuer        string
	OIDCJWKSURL       string
	OIDCClientID      string
	OIDCClientSecret  string
	OIDCRedirectURI   string
	SessionCookieName string

	// Stale external upload sweep (worker)
	UploadSweepSchedule string
	UploadSweepMaxAge   time.Duration
	// WorkerMetricsPort serves the worker's /metrics when set
	WorkerMetricsPort string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		BaseURL:          getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:       getEnvBool("ENABLE_HSTS", false),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
		WorkerDebugMode:  getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:  getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		AIBaseURL:     getEnv("AI_BASE_URL", ""),
		ReportModel:   getEnv("AI_REPORT_MODEL", "o4-mini-2025-04-16"),
		ClassifyModel: getEnv("AI_CLASSIFY_MODEL", "gpt-4o-2024-11-20"),
		AITimeout:     getEnvDuration("AI_TIMEOUT", 120*time.Second),

		GCSBucket:          getEnv("GCS_BUCKET", ""),
		GCSCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GCSCredentialsJSON: getEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", ""),
		SignedURLTTL:       getEnvDuration("GCS_SIGNED_URL_TTL", time.Hour),

		ReportBudgetCeiling:      getEnvInt("REPORT_BUDGET_CEILING", 20000),
		ReportImageAllowance:     getEnvInt("REPORT_IMAGE_ALLOWANCE", 800),
		ReportPDFAllowance:       getEnvInt("REPORT_PDF_ALLOWANCE", 1500),
		ReportResolveConcurrency: getEnvInt("REPORT_RESOLVE_CONCURRENCY", 4),
		ReportRateLimit:          getEnv("REPORT_RATE_LIMIT", "10-H"),

		OIDCIssuer:        getEnv("OIDC_ISSUER", ""),
		OIDCJWKSURL:       getEnv("OIDC_JWKS_URL", ""),
		OIDCClientID:      getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret:  getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURI:   getEnv("OIDC_REDIRECT_URI", ""),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "hr_session"),

		UploadSweepSchedule: getEnv("UPLOAD_SWEEP_SCHEDULE", "@hourly"),
		UploadSweepMaxAge:   getEnvDuration("UPLOAD_SWEEP_MAX_AGE", 24*time.Hour),
		WorkerMetricsPort:   getEnv("WORKER_METRICS_PORT", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("GCS_BUCKET is required")
	}

	if cfg.ReportBudgetCeiling <= 0 {
		return nil, fmt.Errorf("REPORT_BUDGET_CEILING must be positive, got %d", cfg.ReportBudgetCeiling)
	}

	if cfg.ReportImageAllowance < 0 || cfg.ReportPDFAllowance < 0 {
		return nil, fmt.Errorf("REPORT_IMAGE_ALLOWANCE and REPORT_PDF_ALLOWANCE must not be negative")
	}

	if cfg.ReportResolveConcurrency <= 0 {
		cfg.ReportResolveConcurrency = 1
	}

	return cfg, nil
}

// AllowedOrigins splits FrontendURL into the list of CORS origins.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimSuffix(o, "/"))
		}
	}
	return origins
}

// PrimaryFrontendURL is the first configured frontend origin, used for redirects.
func (c *Config) PrimaryFrontendURL() string {
	origins := c.AllowedOrigins()
	if len(origins) == 0 {
		return ""
	}
	return origins[0]
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
