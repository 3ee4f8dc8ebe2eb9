package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TMDB_TOKEN", "token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.Server.Port)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "reeldeck:", cfg.Storage.KeyPrefix)
	assert.Equal(t, "https://api.themoviedb.org/3", cfg.TMDB.BaseURL)
	assert.Equal(t, "es-ES", cfg.TMDB.Language)
	assert.Equal(t, 10*time.Second, cfg.TMDB.Timeout)
	assert.Equal(t, 8, cfg.Listing.FavoritesConcurrency)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TMDB_TOKEN", "token")
	t.Setenv("APP_ENV", "production")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("TMDB_TIMEOUT", "3s")
	t.Setenv("STORAGE_BACKEND", BackendPostgres)
	t.Setenv("DATABASE_URL", "postgres://localhost/reeldeck")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "cache:6379", cfg.RedisAddr())
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 3*time.Second, cfg.TMDB.Timeout)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing token", map[string]string{"TMDB_TOKEN": ""}},
		{"postgres without url", map[string]string{"TMDB_TOKEN": "t", "STORAGE_BACKEND": BackendPostgres, "DATABASE_URL": ""}},
		{"unknown backend", map[string]string{"TMDB_TOKEN": "t", "STORAGE_BACKEND": "sqlite"}},
		{"zero concurrency", map[string]string{"TMDB_TOKEN": "t", "FAVORITES_CONCURRENCY": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
