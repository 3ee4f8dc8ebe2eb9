package middleware

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter limits requests per caller with a sliding window kept in a
// Redis sorted set.
type RateLimiter struct {
	redis       *redis.Client
	prefix      string
	maxRequests int
	window      time.Duration
	enabled     bool
	logger      *log.Logger
	now         func() time.Time
}

// RateLimitConfig holds rate limiter settings
type RateLimitConfig struct {
	Prefix      string
	MaxRequests int
	Window      time.Duration
	Enabled     bool
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *redis.Client, cfg RateLimitConfig, logger *log.Logger) *RateLimiter {
	return &RateLimiter{
		redis:       client,
		prefix:      cfg.Prefix,
		maxRequests: cfg.MaxRequests,
		window:      cfg.Window,
		enabled:     cfg.Enabled && client != nil,
		logger:      logger,
		now:         time.Now,
	}
}

// Limit returns a middleware that rate limits requests
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, err := rl.checkRateLimit(r.Context(), rl.getIdentifier(r))
		if err != nil {
			// fail open
			rl.logger.Printf("Rate limit check failed: %v", err)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"rate_limited","message":"Too many requests. Please try again later."}`)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getIdentifier returns the identifier for rate limiting
func (rl *RateLimiter) getIdentifier(r *http.Request) string {
	if client, ok := GetClientFromContext(r.Context()); ok {
		return "client:" + client
	}

	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
	}
	return "ip:" + ip
}

// checkRateLimit records the request and reports whether it is allowed
func (rl *RateLimiter) checkRateLimit(ctx context.Context, identifier string) (bool, error) {
	if !rl.enabled {
		return true, nil
	}

	key := rl.prefix + "ratelimit:" + identifier
	now := rl.now()
	windowStart := now.Add(-rl.window).UnixMilli()

	pipe := rl.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return countCmd.Val() < int64(rl.maxRequests), nil
}
