package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/liamwears/reeldeck/internal/config"
	"github.com/liamwears/reeldeck/internal/database"
	"github.com/liamwears/reeldeck/internal/handlers"
	"github.com/liamwears/reeldeck/internal/middleware"
	"github.com/liamwears/reeldeck/internal/models"
	"github.com/liamwears/reeldeck/internal/services"
)

func main() {
	// Check for migrate command
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrations(os.Args[2:])
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := log.New(os.Stdout, "[reeldeck] ", log.LstdFlags|log.Lshortfile)
	logger.Printf("Starting reeldeck server in %s mode with %s storage", cfg.Server.Env, cfg.Storage.Backend)

	kv, redisClient, err := openStore(context.Background(), cfg)
	if err != nil {
		logger.Fatalf("Failed to open %s storage: %v", cfg.Storage.Backend, err)
	}

	// Initialize services
	validate := validator.New(validator.WithRequiredStructEnabled())
	tmdbService := services.NewTMDBService(services.TMDBConfig{
		Token:        cfg.TMDB.Token,
		BaseURL:      cfg.TMDB.BaseURL,
		ImageBaseURL: cfg.TMDB.ImageBaseURL,
		Language:     cfg.TMDB.Language,
		Timeout:      cfg.TMDB.Timeout,
	})
	userState := services.NewUserStateService(kv, validate, logger)

	controllers := []*services.ListingController{
		services.NewListingController(services.ListingConfig{
			Screen:   "home",
			Category: models.CategoryPopular,
		}, tmdbService, userState, logger),
		services.NewListingController(services.ListingConfig{
			Screen:   "trending",
			Category: models.CategoryTrendingWeek,
		}, tmdbService, userState, logger),
		services.NewListingController(services.ListingConfig{
			Screen:               "favorites",
			Favorites:            true,
			FavoritesConcurrency: cfg.Listing.FavoritesConcurrency,
		}, tmdbService, userState, logger),
	}

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.Server.APIToken)

	// 100 req/min in production; the limiter needs Redis and is off otherwise
	var limiterClient *redis.Client
	if redisClient != nil {
		limiterClient = redisClient.Client
	}
	rateLimiter := middleware.NewRateLimiter(limiterClient, middleware.RateLimitConfig{
		Prefix:      cfg.Storage.KeyPrefix,
		MaxRequests: 100,
		Window:      time.Minute,
		Enabled:     cfg.IsProduction(),
	}, logger)
	if cfg.IsProduction() && limiterClient == nil {
		logger.Println("Rate limiting disabled: it requires the redis storage backend")
	}

	protect := func(h http.Handler) http.Handler {
		return authMiddleware.RequireToken(rateLimiter.Limit(h))
	}

	// Initialize handlers
	userStateHandler := handlers.NewUserStateHandler(userState, controllers, validate, logger)
	movieHandler := handlers.NewMovieHandler(tmdbService, userState, logger)
	screenHandler := handlers.NewScreenHandler(controllers, validate, logger)

	mux := http.NewServeMux()
	userStateHandler.Routes(mux, protect)
	movieHandler.Routes(mux, protect)
	screenHandler.Routes(mux, protect)
	mux.Handle("GET /health", handlers.NewHealthHandler(kv, cfg.Storage.Backend, logger))

	logger.Printf("Serving screens %v", screenHandler.Screens())

	// Wrap with logging middleware
	handler := middleware.Logger(logger)(mux)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("Server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("Server forced to shutdown: %v", err)
	}

	// Closing the store also closes its Redis client or Postgres pool
	if err := kv.Close(); err != nil {
		logger.Printf("Error closing storage: %v", err)
	}

	logger.Println("Server exited")
}

// openStore connects the configured storage backend. The Redis client is
// returned as well when the backend is Redis so the rate limiter can share it.
func openStore(ctx context.Context, cfg *config.Config) (database.KVStore, *database.RedisClient, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := database.New(ctx, database.Config{URL: cfg.Database.URL})
		if err != nil {
			return nil, nil, err
		}
		return database.NewPostgresKV(db, cfg.Storage.KeyPrefix), nil, nil
	default:
		client, err := database.NewRedisClient(database.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS:      cfg.Redis.TLS,
		})
		if err != nil {
			return nil, nil, err
		}
		return database.NewRedisKV(client, cfg.Storage.KeyPrefix), client, nil
	}
}

// runMigrations applies ("up", the default) or rolls back ("down") the
// Postgres schema.
func runMigrations(args []string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required to run migrations")
	}

	ctx := context.Background()
	db, err := database.New(ctx, database.Config{URL: cfg.Database.URL})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	logger := log.New(os.Stdout, "[reeldeck] ", log.LstdFlags)
	migrator := database.NewMigrator(db, logger)

	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}

	switch direction {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		err = migrator.Down(ctx)
	default:
		log.Fatalf("Unknown migrate direction %q (want up or down)", direction)
	}
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	logger.Printf("Migrations %s completed successfully", direction)
}
