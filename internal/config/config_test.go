package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_Defaults(t *testing.T) {
	cfg, err := Process(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "/auth/token/refresh/", cfg.API.RefreshPath)
	assert.Equal(t, 0.0, cfg.API.RateLimit)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, 1, cfg.Booking.AutoRetries)
	assert.Equal(t, ":8000", cfg.Dev.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.IsDev())
}

func TestProcess_Overrides(t *testing.T) {
	cfg, err := Process(context.Background(), envconfig.MapLookuper(map[string]string{
		"ENV":                  "dev",
		"API_BASE_URL":         "https://api.example.com/api",
		"HTTP_TIMEOUT":         "45s",
		"STORE_BACKEND":        "redis",
		"REDIS_ADDR":           "cache:6379",
		"REDIS_DB":             "2",
		"BOOKING_AUTO_RETRIES": "3",
		"RATE_LIMIT_RPS":       "2.5",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, "https://api.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.API.Timeout)
	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 2, cfg.Store.RedisDB)
	assert.Equal(t, 3, cfg.Booking.AutoRetries)
	assert.Equal(t, 2.5, cfg.API.RateLimit)
}

func TestProcess_UnknownBackend(t *testing.T) {
	_, err := Process(context.Background(), envconfig.MapLookuper(map[string]string{"STORE_BACKEND": "sqlite"}))
	assert.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("BOOKING_AUTO_RETRIES=4\n"), 0o600))
	t.Setenv("BOOKING_AUTO_RETRIES", "")
	os.Unsetenv("BOOKING_AUTO_RETRIES")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Booking.AutoRetries)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
