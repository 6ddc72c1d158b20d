package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/reelgen_test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.InDelta(t, 0.005, cfg.CreditUnitUSD, 1e-9)
	assert.InDelta(t, 0.70, cfg.QualityMinScore, 1e-9)
	assert.Equal(t, 1, cfg.MaxAutoRegenerations)
	assert.Equal(t, 5, cfg.BreakerFailureThreshold)
	assert.Equal(t, time.Minute, cfg.BreakerCooldown)
	assert.Equal(t, 5, cfg.BatchWindowSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchItemStagger)
	assert.Equal(t, 3*time.Second, cfg.BatchWindowDelay)
	assert.Equal(t, 20, cfg.ScrapeRPM)
	assert.Equal(t, 30, cfg.ScriptRPM)
	assert.Equal(t, 10, cfg.ProviderRPM)
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Hour, cfg.ProcessingTimeout)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/reelgen_test")
	t.Setenv("CREDIT_UNIT_USD", "0.01")
	t.Setenv("QUALITY_MIN_SCORE", "0.8")
	t.Setenv("MAX_AUTO_REGENERATIONS", "2")
	t.Setenv("BATCH_WINDOW_SIZE", "10")
	t.Setenv("POLL_INTERVAL_SECONDS", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.InDelta(t, 0.01, cfg.CreditUnitUSD, 1e-9)
	assert.InDelta(t, 0.8, cfg.QualityMinScore, 1e-9)
	assert.Equal(t, 2, cfg.MaxAutoRegenerations)
	assert.Equal(t, 10, cfg.BatchWindowSize)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing database url", env: map[string]string{"DATABASE_URL": ""}},
		{name: "negative credit unit", env: map[string]string{"CREDIT_UNIT_USD": "-1"}},
		{name: "score above one", env: map[string]string{"QUALITY_MIN_SCORE": "1.5"}},
		{name: "negative regenerations", env: map[string]string{"MAX_AUTO_REGENERATIONS": "-1"}},
		{name: "zero window", env: map[string]string{"BATCH_WINDOW_SIZE": "0"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/reelgen_test")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvHelpersIgnoreMalformedValues(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))

	t.Setenv("SOME_FLOAT", "abc")
	assert.InDelta(t, 1.5, getEnvFloat("SOME_FLOAT", 1.5), 1e-9)

	t.Setenv("SOME_STRING", "")
	assert.Equal(t, "fallback", getEnv("SOME_STRING", "fallback"))
}
