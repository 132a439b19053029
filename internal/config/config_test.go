package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SLA_SCAN_SCHEDULE", "")
	t.Setenv("ENTITLEMENT_CACHE_TTL_SECONDS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "@every 15m", cfg.SLA.ScanSchedule)
	assert.Equal(t, 60*time.Second, cfg.Entitlement.CacheTTL())
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLA_SCAN_SCHEDULE", "*/5 * * * *")
	t.Setenv("SLA_CALENDAR_CACHE_TTL_SECONDS", "0")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("APP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "*/5 * * * *", cfg.SLA.ScanSchedule)
	assert.Equal(t, time.Duration(0), cfg.SLA.CalendarCacheTTL())
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "primary")

	_, err := Load()
	require.Error(t, err)
}
