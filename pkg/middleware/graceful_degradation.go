package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/trust-trace-api/pkg/circuitbreaker"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

// GracefulDegradation sheds non-essential traffic while the backing store keeps failing
type GracefulDegradation struct {
	breaker   *circuitbreaker.CircuitBreaker
	essential []string
	logger    logger.Logger
}

// NewGracefulDegradation creates the middleware. Paths with one of the essential
// prefixes are never rejected and never count towards the breaker.
func NewGracefulDegradation(logger logger.Logger, essential ...string) *GracefulDegradation {
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             "http",
		FailureThreshold: 10,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 5,
	})

	return &GracefulDegradation{
		breaker:   breaker,
		essential: essential,
		logger:    logger,
	}
}

// Middleware returns a middleware function
func (gd *GracefulDegradation) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gd.isEssential(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if !gd.breaker.Allow() {
			gd.logger.Warn("Circuit is open, request rejected",
				"path", r.URL.Path,
				"method", r.Method,
				"state", gd.breaker.GetState().String())

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "Service is temporarily unavailable. Please try again later.",
				"code":    "UNAVAILABLE",
			})
			return
		}

		sw := NewStatusWriter(w)
		next.ServeHTTP(sw, r)

		switch status := sw.Status(); {
		case status >= 500:
			gd.breaker.Failure()
		case status < 400:
			gd.breaker.Success()
		}
	})
}

func (gd *GracefulDegradation) isEssential(path string) bool {
	for _, prefix := range gd.essential {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// GetMetrics returns metrics about the circuit breaker
func (gd *GracefulDegradation) GetMetrics() map[string]interface{} {
	return gd.breaker.GetMetrics()
}

// StatusWriter captures the status code written through it
type StatusWriter struct {
	http.ResponseWriter
	statusCode int
}

// NewStatusWriter wraps w; the status defaults to 200
func NewStatusWriter(w http.ResponseWriter) *StatusWriter {
	return &StatusWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader captures the status code and passes it to the wrapped ResponseWriter
func (sw *StatusWriter) WriteHeader(code int) {
	sw.statusCode = code
	sw.ResponseWriter.WriteHeader(code)
}

// Status returns the captured status code
func (sw *StatusWriter) Status() int {
	return sw.statusCode
}
