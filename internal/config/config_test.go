package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"REDIS_URL":         "redis://localhost:6379/0",
		"NONCE_SECRET":      "0123456789abcdef0123456789abcdef",
		"STRIPE_SECRET_KEY": "sk_test_123",
		"FORMS_FILE":        "forms.json",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, 12*time.Hour, cfg.NonceFormTTL)
	require.Equal(t, 2*time.Minute, cfg.NonceCustomerTTL)
	require.True(t, cfg.RequireCustomerNonce)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.Equal(t, 30*time.Second, cfg.ProcessorTimeout)
	require.Equal(t, RateLimitSliding, cfg.RateLimitBackend)
	require.Equal(t, 0.5, cfg.CircuitFailureRatio)
	require.Equal(t, []string{"*"}, cfg.AllowedOrigins())
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["NONCE_CUSTOMER_TTL"] = "90s"
	env["RATE_LIMIT_MAX"] = "5"
	env["RATE_LIMIT_BACKEND"] = "FIXED"
	env["REQUIRE_CUSTOMER_NONCE"] = "false"
	env["CORS_ALLOWED_ORIGINS"] = "https://a.example, https://b.example"
	env["PORT"] = ":9000"
	env["PROCESSOR_TIMEOUT"] = "not-a-duration"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, cfg.NonceCustomerTTL)
	require.Equal(t, 5, cfg.RateLimitMax)
	require.Equal(t, RateLimitFixed, cfg.RateLimitBackend)
	require.False(t, cfg.RequireCustomerNonce)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins())
	require.Equal(t, ":9000", cfg.HTTPAddr())
	require.Equal(t, 30*time.Second, cfg.ProcessorTimeout)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]func(map[string]string){
		"short nonce secret": func(e map[string]string) { e["NONCE_SECRET"] = "short" },
		"no stripe key":      func(e map[string]string) { e["STRIPE_SECRET_KEY"] = "" },
		"no form source":     func(e map[string]string) { e["FORMS_FILE"] = "" },
		"bad backend":        func(e map[string]string) { e["RATE_LIMIT_BACKEND"] = "token-bucket" },
		"bad ratio":          func(e map[string]string) { e["CIRCUIT_FAILURE_RATIO"] = "1.5" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			env := baseEnv()
			mutate(env)
			_, err := LoadForTests(env)
			require.Error(t, err)
		})
	}
}
