package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware applies a token-bucket limit across all
// requests.
func RateLimitMiddleware(r int, burst int) func(http.HandlerFunc) http.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(r), burst)

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next(w, r)
		}
	}
}
