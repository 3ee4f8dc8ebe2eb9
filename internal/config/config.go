package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends understood by the user state store
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	TMDB     TMDBConfig
	Listing  ListingConfig
}

type ServerConfig struct {
	Env      string
	Port     string
	APIToken string
}

type StorageConfig struct {
	Backend   string
	KeyPrefix string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	TLS      bool
}

type TMDBConfig struct {
	Token        string
	BaseURL      string
	ImageBaseURL string
	Language     string
	Timeout      time.Duration
}

type ListingConfig struct {
	FavoritesConcurrency int
}

// Load reads environment variables and returns a Config struct
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Env:      getEnv("APP_ENV", "local"),
			Port:     getEnv("PORT", "4000"),
			APIToken: getEnv("API_TOKEN", ""),
		},
		Storage: StorageConfig{
			Backend:   getEnv("STORAGE_BACKEND", BackendRedis),
			KeyPrefix: getEnv("STORAGE_PREFIX", "reeldeck:"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TLS:      getEnv("REDIS_TLS", "false") == "true",
		},
		TMDB: TMDBConfig{
			Token:        getEnv("TMDB_TOKEN", ""),
			BaseURL:      getEnv("TMDB_URL", "https://api.themoviedb.org/3"),
			ImageBaseURL: getEnv("TMDB_IMAGE_URL", "https://image.tmdb.org/t/p/"),
			Language:     getEnv("TMDB_LANGUAGE", "es-ES"),
			Timeout:      getEnvDuration("TMDB_TIMEOUT", 10*time.Second),
		},
		Listing: ListingConfig{
			FavoritesConcurrency: getEnvInt("FAVORITES_CONCURRENCY", 8),
		},
	}

	// Validate required fields
	if cfg.TMDB.Token == "" {
		return nil, fmt.Errorf("TMDB_TOKEN is required")
	}
	switch cfg.Storage.Backend {
	case BackendRedis:
	case BackendPostgres:
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres storage backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Storage.Backend)
	}
	if cfg.Listing.FavoritesConcurrency < 1 {
		return nil, fmt.Errorf("FAVORITES_CONCURRENCY must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// RedisAddr returns the Redis address in host:port format
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}
