package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PORT", "")
	t.Setenv("WALLET_CURRENCY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "VND", cfg.Currency)
	assert.Equal(t, 10*time.Second, cfg.MoMo.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.ReconcileAfter)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Equal(t, ":8080", cfg.Address())
}

func TestLoadDurations(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("IDEMPOTENCY_TTL", "90m")
	t.Setenv("MOMO_TIMEOUT", "4s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ShutdownPeriod)
	assert.Equal(t, 90*time.Minute, cfg.IdempotencyTTL)
	assert.Equal(t, 4*time.Second, cfg.MoMo.Timeout)

	t.Setenv("RECONCILE_INTERVAL", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "RECONCILE_INTERVAL")
}

func TestLoadProductionRequirements(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("DATABASE_URL", "postgres://localhost/learnhub")
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "REDIS_URL")

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("MOMO_PARTNER_CODE", "MOMO")
	t.Setenv("MOMO_ACCESS_KEY", "ak")
	t.Setenv("MOMO_SECRET_KEY", "sk")
	t.Setenv("TEST_TOPUP_ENABLED", "true")
	_, err = Load()
	assert.ErrorContains(t, err, "TEST_TOPUP_ENABLED")

	t.Setenv("TEST_TOPUP_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsDev())
}
