package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit admits requests through a token bucket refilled at r per second
// with the given burst, and answers 429 once the bucket is empty.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
