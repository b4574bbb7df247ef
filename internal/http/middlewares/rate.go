package middlewares

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/identsync/internal/observability/logger"
	"github.com/dropDatabas3/identsync/internal/rate"
)

// WithRateLimit limita requests por IP de cliente sobre la ruta dada.
// Con limiter nil es un no-op (rate limiting deshabilitado en config).
// Fail-open: si el backend del limiter no responde, el request pasa.
func WithRateLimit(limiter rate.Limiter, route string) Middleware {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("%s:%s", route, clientIP(r))
			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				retry := int(res.RetryAfter.Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","error_description":"too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
