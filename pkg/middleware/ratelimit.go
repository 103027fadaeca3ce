package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/vaidashi/trust-trace-api/pkg/logger"
	"github.com/vaidashi/trust-trace-api/pkg/ratelimit"
)

// KeyFunc picks the rate limit key of a request
type KeyFunc func(r *http.Request) string

// RateLimiterMiddleware gives every caller its own token bucket
type RateLimiterMiddleware struct {
	limiter           *ratelimit.KeyedLimiter
	key               KeyFunc
	logger            logger.Logger
	trustForwardedFor bool
}

// RateLimiterConfig configures the rate limiter middleware
type RateLimiterConfig struct {
	MaxTokens         float64
	RefillRate        float64
	TrustForwardedFor bool
}

// NewRateLimiterMiddleware creates a rate limiter keyed by key. Requests for which key
// returns "" are keyed by client IP.
func NewRateLimiterMiddleware(cfg RateLimiterConfig, key KeyFunc, logger logger.Logger) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		limiter:           ratelimit.NewKeyedLimiter(cfg.MaxTokens, cfg.RefillRate),
		key:               key,
		logger:            logger,
		trustForwardedFor: cfg.TrustForwardedFor,
	}
}

// Middleware limits mutating requests; reads pass through
func (m *RateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		key := ""
		if m.key != nil {
			key = m.key(r)
		}
		if key == "" {
			key = "ip:" + m.getClientIP(r)
		}

		if !m.limiter.Allow(key) {
			wait := m.limiter.RetryAfter(key)
			m.logger.Warn("Rate limit exceeded", "method", r.Method, "path", r.URL.Path, "key", key)

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "Rate limit exceeded. Please try again later.",
				"code":    "RATE_LIMITED",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP from the request
func (m *RateLimiterMiddleware) getClientIP(r *http.Request) string {
	if m.trustForwardedFor {
		if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
			ips := strings.Split(forwardedFor, ",")
			return strings.TrimSpace(ips[0])
		}
	}

	ip := r.RemoteAddr
	if i := strings.LastIndex(ip, ":"); i != -1 {
		ip = ip[:i]
	}
	return ip
}

// Stop stops the limiter's cleanup loop
func (m *RateLimiterMiddleware) Stop() {
	m.limiter.Stop()
}
