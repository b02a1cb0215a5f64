package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// Logging puts logger into every request context and writes one access
// line per request once the response is done. Redirects and server errors
// are logged at higher levels than plain successes.
func Logging(logger zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			var ev *zerolog.Event
			switch {
			case status >= 500:
				ev = hlog.FromRequest(r).Error()
			case status >= 300 && status < 400:
				ev = hlog.FromRequest(r).Info()
			default:
				ev = hlog.FromRequest(r).Debug()
			}
			ev.Str("method", r.Method).
				Stringer("url", r.URL).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("request")
		})
		return hlog.NewHandler(logger)(
			hlog.RemoteAddrHandler("remote")(
				hlog.RequestIDHandler("request_id", "X-Request-Id")(
					access(next))))
	}
}
