package middleware

import (
	"net/http"
	"time"
)

// Timeout answers 503 "request timed out" when next has not finished
// within timeout. The request context carries the same deadline, so store
// calls made by next are cancelled as well.
func Timeout(timeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, "request timed out")
	}
}
