package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("DESK_LOCK_TTL_MINUTES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 15*time.Minute, cfg.Desk.LockTTL())
	assert.Equal(t, 72*time.Hour, cfg.Desk.DedupTTL())
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.WhatsApp.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DESK_LOCK_TTL_MINUTES", "5")
	t.Setenv("WHATSAPP_TOKEN", "tok")
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "12345")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, 5*time.Minute, cfg.Desk.LockTTL())
	assert.True(t, cfg.WhatsApp.Enabled())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "abc")

	_, err := Load()
	require.Error(t, err)
}
