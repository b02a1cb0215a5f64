package edge

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// filterWriter decides on the first header write whether the response is
// passed through or converted into a redirect.
type filterWriter struct {
	http.ResponseWriter
	req      *http.Request
	marshall *Marshall
	log      *zerolog.Logger

	decided    bool
	redirected bool
}

func (w *filterWriter) WriteHeader(code int) {
	if w.decided {
		if !w.redirected {
			w.ResponseWriter.WriteHeader(code)
		}
		return
	}
	w.decided = true

	dest, err := w.marshall.Take()
	if err != nil {
		w.ResponseWriter.WriteHeader(code)
		return
	}

	w.redirected = true
	loc := Location(w.req, dest)
	h := w.ResponseWriter.Header()
	for k := range h {
		delete(h, k)
	}
	h.Set("Location", loc)
	w.ResponseWriter.WriteHeader(http.StatusTemporaryRedirect)
	w.log.Debug().Str("location", loc).Msg("temporary redirect")
}

// Write discards the body of a redirected response.
func (w *filterWriter) Write(b []byte) (int, error) {
	if !w.decided {
		w.WriteHeader(http.StatusOK)
	}
	if w.redirected {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

func (w *filterWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Location is the request URI with its authority replaced by dest. A dest
// carrying its own scheme ("https://host:port") replaces the scheme too.
func Location(r *http.Request, dest string) string {
	u := *r.URL
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	if r.URL.Scheme != "" {
		u.Scheme = r.URL.Scheme
	}
	u.Host = dest

	if strings.Contains(dest, "://") {
		if d, err := url.Parse(dest); err == nil && d.Host != "" {
			u.Scheme, u.Host = d.Scheme, d.Host
		}
	}
	return u.String()
}
