package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_STR", "value")
	t.Setenv("X_INT", "42")
	t.Setenv("X_FLOAT", "2.5")
	t.Setenv("X_BOOL", "true")
	t.Setenv("X_DUR", "30s")
	t.Setenv("X_BAD", "not-a-number")

	assert.Equal(t, "value", GetEnv("X_STR", "def"))
	assert.Equal(t, "def", GetEnv("X_MISSING", "def"))
	assert.Equal(t, 42, GetEnvInt("X_INT", 1))
	assert.Equal(t, 1, GetEnvInt("X_BAD", 1))
	assert.Equal(t, 2.5, GetEnvFloat("X_FLOAT", 1))
	assert.True(t, GetEnvBool("X_BOOL", false))
	assert.Equal(t, 30*time.Second, GetEnvDuration("X_DUR", time.Minute))
	assert.Equal(t, time.Minute, GetEnvDuration("X_BAD", time.Minute))
}

func TestLoadDerivesVenueEndpoints(t *testing.T) {
	t.Setenv("ENVIRONMENT", "NIGHTLY")
	t.Setenv("MAKER_ACCOUNT_NAME", "MAKER1")

	cfg := Load("market-maker", "MAKER")

	assert.Equal(t, "market-maker", cfg.ServiceName)
	assert.Equal(t, "nightly", cfg.Environment)
	assert.Equal(t, "wss://ws.api.nightly.paradigm.trade/v2/drfq", cfg.WSURL)
	assert.Equal(t, "https://api.nightly.paradigm.trade", cfg.HTTPURL)
	assert.Equal(t, "MAKER1", cfg.AccountName)
}

func TestLoadHonorsExplicitOverrides(t *testing.T) {
	t.Setenv("WS_URL", "ws://localhost:9999/v2/drfq")
	t.Setenv("HTTP_URL", "http://localhost:9998")

	cfg := Load("market-taker", "TAKER")

	assert.Equal(t, "ws://localhost:9999/v2/drfq", cfg.WSURL)
	assert.Equal(t, "http://localhost:9998", cfg.HTTPURL)
}
