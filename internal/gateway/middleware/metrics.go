package middleware

import (
	"net/http"
	"time"

	"github.com/aetherflow/collabedit/internal/gateway/metrics"
)

// MetricsMiddleware records request counts and latency.
func MetricsMiddleware(m *metrics.Metrics) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     200,
			}

			next(wrapped, r)

			m.ObserveHTTP(r.Method, r.URL.Path, wrapped.statusCode, time.Since(startTime))
		}
	}
}
