package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// MinNonceSecretBytes is the shortest accepted NONCE_SECRET.
const MinNonceSecretBytes = 32

// Rate limit backends.
const (
	RateLimitSliding = "sliding"
	RateLimitFixed   = "fixed"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	DatabaseURL string
	RedisURL    string
	FormsFile   string

	StripeTestSecretKey     string
	StripeLiveSecretKey     string
	StripeWebhookSecret     string
	StripeAPIURL            string
	StripeMaxNetworkRetries int64
	ProcessorTimeout        time.Duration
	CircuitMinRequests      int
	CircuitFailureRatio     float64
	CircuitOpenFor          time.Duration

	NonceSecret          string
	NonceFormTTL         time.Duration
	NonceCustomerTTL     time.Duration
	RequireCustomerNonce bool

	RateLimitBackend string
	RateLimitWindow  time.Duration
	RateLimitMax     int
	IdempotencyTTL   time.Duration
	FormCacheTTL     time.Duration
	WebhookReplayTTL time.Duration
	BodyLimitBytes   int64

	TasksEnabled      bool
	WorkerConcurrency int
	StatsTTL          time.Duration

	CORSAllowedOrigins []string
	// TrustProxyHeaders lets X-Forwarded-For and friends replace the peer address.
	TrustProxyHeaders bool
	SecurityHeaders   bool
	HSTS              bool

	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	TracingSampling  float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(nil)
}

// LoadForTests reads the environment with overrides applied on top and skips .env files.
func LoadForTests(overrides map[string]string) (*Config, error) {
	return load(overrides)
}

func load(overrides map[string]string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	for key, val := range overrides {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL: strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:    strings.TrimSpace(k.String("REDIS_URL")),
		FormsFile:   strings.TrimSpace(k.String("FORMS_FILE")),

		StripeTestSecretKey:     strings.TrimSpace(k.String("STRIPE_SECRET_KEY")),
		StripeLiveSecretKey:     strings.TrimSpace(k.String("STRIPE_LIVE_SECRET_KEY")),
		StripeWebhookSecret:     strings.TrimSpace(k.String("STRIPE_WEBHOOK_SECRET")),
		StripeAPIURL:            strings.TrimSpace(k.String("STRIPE_API_URL")),
		StripeMaxNetworkRetries: int64(parseInt(k.String("STRIPE_MAX_NETWORK_RETRIES"), 2)),
		ProcessorTimeout:        parseDuration(k.String("PROCESSOR_TIMEOUT"), "30s"),
		CircuitMinRequests:      parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRatio:     parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:          parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		NonceSecret:          k.String("NONCE_SECRET"),
		NonceFormTTL:         parseDuration(k.String("NONCE_FORM_TTL"), "12h"),
		NonceCustomerTTL:     parseDuration(k.String("NONCE_CUSTOMER_TTL"), "2m"),
		RequireCustomerNonce: parseBool(k.String("REQUIRE_CUSTOMER_NONCE"), true),

		RateLimitBackend: strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), RateLimitSliding)),
		RateLimitWindow:  parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:     parseInt(k.String("RATE_LIMIT_MAX"), 30),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		FormCacheTTL:     parseDuration(k.String("FORM_CACHE_TTL"), "5m"),
		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "72h"),
		BodyLimitBytes:   int64(parseInt(k.String("BODY_LIMIT_BYTES"), 64<<10)),

		TasksEnabled:      parseBool(k.String("TASKS_ENABLED"), true),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 10),
		StatsTTL:          parseDuration(k.String("STATS_TTL"), "2160h"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		TrustProxyHeaders:  parseBool(k.String("TRUST_PROXY_HEADERS"), false),
		SecurityHeaders:    parseBool(k.String("SECURITY_HEADERS"), true),
		HSTS:               parseBool(k.String("SECURITY_HSTS"), false),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "payform"),
		MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
		TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:     k.String("OBS_OTLP_ENDPOINT"),
		TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing or malformed setting.
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	if len(c.NonceSecret) < MinNonceSecretBytes {
		return fmt.Errorf("NONCE_SECRET must be at least %d bytes", MinNonceSecretBytes)
	}
	if c.StripeTestSecretKey == "" && c.StripeLiveSecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY or STRIPE_LIVE_SECRET_KEY is required")
	}
	if c.DatabaseURL == "" && c.FormsFile == "" {
		return errors.New("DATABASE_URL or FORMS_FILE is required")
	}
	switch c.RateLimitBackend {
	case RateLimitSliding, RateLimitFixed:
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be %q or %q", RateLimitSliding, RateLimitFixed)
	}
	if c.CircuitFailureRatio <= 0 || c.CircuitFailureRatio > 1 {
		return errors.New("CIRCUIT_FAILURE_RATIO must be in (0, 1]")
	}
	return nil
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

// AllowedOrigins falls back to any origin when none are configured.
func (c *Config) AllowedOrigins() []string {
	if len(c.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return c.CORSAllowedOrigins
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
		return strings.TrimSpace(value)
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

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
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
