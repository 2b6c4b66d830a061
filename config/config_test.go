package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"ENVIRONMENT", "REDIS_URL", "AUTH_MODE", "STORE_DRIVER", "DISPATCH_RADIUS_KM", "ALERT_TTL", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "jwt", cfg.AuthMode)
	assert.Equal(t, StoreDriverMongo, cfg.StoreDriver)
	assert.Equal(t, 5.0, cfg.DispatchRadiusKm)
	assert.Equal(t, time.Hour, cfg.AlertTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_MODE", "HEADER")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("DISPATCH_RADIUS_KM", "3.5")
	t.Setenv("ALERT_TTL", "30m")
	t.Setenv("EXPIRY_SWEEP_ENABLED", "false")
	t.Setenv("RATE_LIMIT_CREATE_PER_MINUTE", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.org, ,https://b.example.org")

	cfg := Load()
	assert.Equal(t, "header", cfg.AuthMode)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 3.5, cfg.DispatchRadiusKm)
	assert.Equal(t, 30*time.Minute, cfg.AlertTTL)
	assert.False(t, cfg.ExpirySweepEnabled)
	assert.Equal(t, 3, cfg.RateLimitCreatePerMinute)
	assert.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, cfg.CORSOrigins)
}

func TestInitRedis(t *testing.T) {
	client, err := InitRedis(&Config{})
	require.NoError(t, err)
	assert.Nil(t, client)

	_, err = InitRedis(&Config{RedisURL: "://broken"})
	assert.Error(t, err)

	client, err = InitRedis(&Config{RedisURL: "redis://localhost:6379/2"})
	require.NoError(t, err)
	assert.Equal(t, 2, client.Options().DB)
	require.NoError(t, client.Close())
}

func TestInitNotificationServiceWithoutCredentials(t *testing.T) {
	svc := InitNotificationService(context.Background(), &Config{})
	require.NotNil(t, svc)
}
