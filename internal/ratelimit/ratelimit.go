// Package ratelimit caps how fast a single user may hit the API, independently
// of the monthly story quota. Fixed one-hour windows in Redis: INCR the
// window's key, set the expiry on first hit.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dreamtales/dreamtales-api/internal/api"
	"github.com/dreamtales/dreamtales-api/internal/auth"
)

type RateLimiter struct {
	client *redis.Client
	log    *logrus.Logger
}

func NewRateLimiter(redisURL string, log *logrus.Logger) (*RateLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return &RateLimiter{client: redis.NewClient(opt), log: log}, nil
}

func (rl *RateLimiter) Allow(ctx context.Context, userID string, limit int) (bool, error) {
	key := fmt.Sprintf("ratelimit:user:%s:%s", userID, time.Now().Format("2006-01-02-15"))

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}

	if count == 1 {
		rl.client.Expire(ctx, key, time.Hour)
	}

	return count <= int64(limit), nil
}

// Middleware enforces the hourly cap for the authenticated user. Runs after
// auth; if Redis is down the request is allowed through rather than taking
// the whole API down with it.
func (rl *RateLimiter) Middleware(limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.UserFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := rl.Allow(r.Context(), claims.UserID, limit)
			if err != nil {
				rl.log.WithError(err).Warn("rate limit check failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				api.WriteError(w, http.StatusTooManyRequests, "rate_limited",
					"Too many requests. Please slow down.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) Close() error {
	return rl.client.Close()
}
