package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "X-Actor-ID", cfg.ActorHeader)
	require.Equal(t, 5*time.Minute, cfg.PermissionCacheTTL)
	require.Equal(t, 90*24*time.Hour, cfg.AuditRetention)
	require.Equal(t, 300, cfg.RateLimitPerMinute)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_ADDR", ":9999")
	t.Setenv("PERMISSION_CACHE_TTL", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.AppAddr)
	require.Equal(t, 30*time.Second, cfg.PermissionCacheTTL)
	require.True(t, cfg.IsProduction())
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv("QUESTDECK_TEST_MODE", "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv("QUESTDECK_TEST_MODE", "")
	RefreshTestMode()
	require.False(t, InTestMode())
}
