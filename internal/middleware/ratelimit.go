package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/breezeauth/riskgate/internal/metrics"
)

// RateLimitConfig holds configuration for a specific rate limit
type RateLimitConfig struct {
	Name   string
	Limit  int
	Window time.Duration
	KeyFn  func(*http.Request) string
}

// RateLimit creates a fixed-window rate limiting middleware backed by Redis.
// Redis failures let the request through.
func (m *Middleware) RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !m.cfg.Security.RateLimiting.Enabled || m.rdb == nil || cfg.Limit <= 0 {
			return next
		}
		if cfg.KeyFn == nil {
			cfg.KeyFn = m.IPKey
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := fmt.Sprintf("ratelimit:%s:%s", cfg.Name, cfg.KeyFn(r))

			count, err := m.rdb.IncrWithTTL(ctx, key, cfg.Window)
			if err != nil {
				m.log.Error().Err(err).Msg("failed to increment rate limit counter")
				next.ServeHTTP(w, r)
				return
			}

			ttl, _ := m.rdb.TTL(ctx, key).Result()
			if ttl < 0 {
				ttl = cfg.Window
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, cfg.Limit-int(count))))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

			if int(count) > cfg.Limit {
				metrics.RateLimitedTotal.WithLabelValues(cfg.Name).Inc()
				w.Header().Set("Retry-After", strconv.FormatInt(int64(ttl.Seconds()), 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"success":false,"error":"Too many requests","message":"Too many requests. Please try again later."}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKey returns the client IP address as the rate limit key. Callers cannot
// pick their own key by sending X-Forwarded-For unless they are a trusted proxy.
func (m *Middleware) IPKey(r *http.Request) string {
	return m.trustedClientIP(r)
}
