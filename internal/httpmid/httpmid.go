// Package httpmid provides gorilla/mux middleware for the lottery HTTP
// surface: request logging, panic recovery, Prometheus metrics, and a
// per-key admission throttle, following the chaining shape of the teacher's
// infrastructure/middleware package (LoggingMiddleware/MetricsMiddleware/
// RecoveryMiddleware/RateLimiter, each a mux.MiddlewareFunc wired via
// router.Use).
package httpmid

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/r3e-network/lottery-core/internal/errors"
	"github.com/r3e-network/lottery-core/internal/logging"
	"github.com/r3e-network/lottery-core/internal/metrics"
)

// responseWriter wraps http.ResponseWriter to capture the status code for
// logging and metrics middleware.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Logging logs every request with a trace ID, mirroring the teacher's
// LoggingMiddleware.
func Logging(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			logger.LogRequest(r.Context(), r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
		})
	}
}

// Recovery recovers from panics in handlers, logs the stack trace, and
// responds with a sanitized 500.
func Recovery(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithContext(r.Context()).WithFields(map[string]interface{}{
						"panic":  rec,
						"stack":  string(debug.Stack()),
						"path":   r.URL.Path,
						"method": r.Method,
					}).Error("panic recovered")
					writeServiceError(w, errors.Internal("internal server error", nil))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Metrics records Prometheus counters/histograms for every request, keyed by
// the matched mux route template rather than the raw path.
func Metrics(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.IncrementInFlight()
			defer m.DecrementInFlight()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}
			m.RecordHTTPRequest("lotteryd", r.Method, path, strconv.Itoa(wrapped.statusCode), time.Since(start))
		})
	}
}

// RateLimiter throttles requests per key (user ID header, falling back to
// remote address), grounded on the teacher's token-bucket RateLimiter.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimiter builds a per-key token-bucket limiter.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Handler enforces the throttle as a mux.MiddlewareFunc.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-User-ID")
		if key == "" {
			key = r.RemoteAddr
		}
		if !rl.limiterFor(key).Allow() {
			w.Header().Set("Retry-After", "1")
			writeServiceError(w, errors.New("ADM_RATE_LIMITED", "too many requests", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminAuth enforces a bcrypt-checked bearer token against the configured
// hash for admin-only routes.
func AdminAuth(bearerTokenHash string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearerTokenHash == "" {
				writeServiceError(w, errors.New("ADM_AUTH_NOT_CONFIGURED", "admin authentication is not configured", http.StatusServiceUnavailable))
				return
			}
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if len(auth) <= len(prefix) || subtle.ConstantTimeCompare([]byte(auth[:len(prefix)]), []byte(prefix)) != 1 {
				writeServiceError(w, errors.New("ADM_UNAUTHORIZED", "missing bearer token", http.StatusUnauthorized))
				return
			}
			token := auth[len(prefix):]
			if err := bcrypt.CompareHashAndPassword([]byte(bearerTokenHash), []byte(token)); err != nil {
				writeServiceError(w, errors.New("ADM_UNAUTHORIZED", "invalid bearer token", http.StatusUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("internal server error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(se.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    se.Code,
		"message": se.Message,
		"details": se.Details,
	})
}
