package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mkurtis/warden/pkg/httputil"
	"github.com/mkurtis/warden/pkg/observability"
)

// ThrottleConfig defines a fixed rate limiting window
type ThrottleConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// DefaultLoginThrottleConfig returns the limits applied to credential
// endpoints. Login and refresh are brute-force targets, so the window is
// deliberately tight.
func DefaultLoginThrottleConfig() *ThrottleConfig {
	return &ThrottleConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
	}
}

// LoginThrottle implements fixed-window rate limiting in Redis so the
// limit holds across all server processes. Redis failures fail open: a
// degraded cache must not take logins down with it.
type LoginThrottle struct {
	client  *redis.Client
	config  *ThrottleConfig
	prefix  string
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewLoginThrottle creates a Redis-backed throttle for credential endpoints
func NewLoginThrottle(client *redis.Client, config *ThrottleConfig, logger *observability.Logger, metrics *observability.Metrics) *LoginThrottle {
	if config == nil {
		config = DefaultLoginThrottleConfig()
	}
	return &LoginThrottle{
		client:  client,
		config:  config,
		prefix:  "throttle:login:",
		logger:  logger,
		metrics: metrics,
	}
}

// Allow counts one attempt for the key and reports whether it is under
// the limit, plus the time until the window resets
func (t *LoginThrottle) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := t.prefix + key

	pipe := t.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, t.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if incr.Val() <= int64(t.config.RequestsPerWindow) {
		return true, 0, nil
	}

	ttl, err := t.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = t.config.WindowDuration
	}
	return false, ttl, nil
}

// Reset clears the window for a key
func (t *LoginThrottle) Reset(ctx context.Context, key string) error {
	return t.client.Del(ctx, t.prefix+key).Err()
}

// Handler wraps an HTTP handler with per-client-IP rate limiting
func (t *LoginThrottle) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)

		allowed, retryAfter, err := t.Allow(r.Context(), key)
		if err != nil {
			t.logger.WithError(err).Warn("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			t.metrics.RateLimitRejectionsTotal.WithLabelValues("login").Inc()
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			httputil.WriteTooManyRequests(w, r, "Too many attempts, slow down")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the originating client address, trusting proxy
// headers when present
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// First hop is the original client
		if idx := strings.IndexByte(forwarded, ','); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
