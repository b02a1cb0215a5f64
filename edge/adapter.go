// Package edge puts a redirector in front of an HTTP service.
//
// Flow per inbound call:
//
//	capture   stash caller host and a fresh Marshall in the request context
//	dispatch  ask the redirector; a decision is recorded, the real handler
//	          only runs when the answer is "serve locally"
//	filter    on the first header write, a pending decision replaces the
//	          response with 307 and a Location pointing at the destination
//
// Responses without a pending decision, 404s included, pass through as they
// were written.
package edge

import (
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mini-redirect/middleware"
	"mini-redirect/redirect"
)

var ErrNoRedirector = errors.New("edge: no redirector configured")

type Options struct {
	Redirector redirect.Redirector
	Logger     zerolog.Logger

	// Middleware runs inside the access log and outside the redirect
	// filter, in the order given.
	Middleware []middleware.Middleware

	// TrustProxyHeaders takes the caller host from X-Forwarded-For or
	// X-Real-IP. Only set it when every request arrives through a proxy
	// that overwrites those headers: the caller host keys the redirection
	// memory, so a caller choosing its own host defeats anti-flapping.
	TrustProxyHeaders bool
}

// Adapter is an http.Handler.
type Adapter struct {
	router     chi.Router
	redirector redirect.Redirector
	log        zerolog.Logger
}

// New fails when no redirector is configured.
func New(opts Options) (*Adapter, error) {
	if opts.Redirector == nil {
		return nil, ErrNoRedirector
	}

	a := &Adapter{
		router:     chi.NewRouter(),
		redirector: opts.Redirector,
		log:        opts.Logger,
	}
	a.router.Use(chimw.RequestID)
	if opts.TrustProxyHeaders {
		a.router.Use(chimw.RealIP)
	}
	a.router.Use(middleware.Logging(opts.Logger))
	a.router.Use(chimw.Recoverer)
	for _, mw := range opts.Middleware {
		a.router.Use(mw)
	}
	a.router.Use(a.capture)

	a.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return a, nil
}

// Handle routes httpMethod and pattern through the redirector under the
// given operation name, which is the method identity the redirector and its
// redirection memory see. An empty httpMethod matches every method and an
// empty operation names each call by its method and path. h serves the
// call when the redirector answers "serve locally"; a nil h answers those
// calls with 404.
func (a *Adapter) Handle(httpMethod, pattern, operation string, h http.Handler) {
	if h == nil {
		h = http.NotFoundHandler()
	}
	if httpMethod == "" {
		a.router.Handle(pattern, a.dispatch(operation, h))
		return
	}
	a.router.Method(httpMethod, pattern, a.dispatch(operation, h))
}

// Router exposes the underlying router for routes that are never
// redirected.
func (a *Adapter) Router() chi.Router {
	return a.router
}

func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// capture is the pre-call step and installs the post-call filter.
func (a *Adapter) capture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := &Marshall{}
		ctx := withMarshall(WithCallerHost(r.Context(), hostOf(r.RemoteAddr)), m)
		r = r.WithContext(ctx)

		fw := &filterWriter{ResponseWriter: w, req: r, marshall: m, log: &a.log}
		next.ServeHTTP(fw, r)

		// A decision with nothing written yet still has to reach the caller
		if !fw.decided && m.Pending() {
			fw.WriteHeader(http.StatusOK)
		}
	})
}

// dispatch stands in for the real handler and only consults the redirector.
func (a *Adapter) dispatch(operation string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		op := operation
		if op == "" {
			op = r.Method + " " + r.URL.Path
		}
		dest, err := a.redirector.RedirectionFor(ctx, CallerHost(ctx), op, callArgs(r)...)
		if err != nil {
			a.fail(w, r, op, err)
			return
		}
		if dest == "" {
			h.ServeHTTP(w, r)
			return
		}

		m := MarshallFrom(ctx)
		if m == nil {
			a.fail(w, r, op, ErrNoPendingRedirect)
			return
		}
		m.Record(dest)
		w.WriteHeader(http.StatusNoContent)
	})
}

func (a *Adapter) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	ev := a.log.Error()
	if !errors.Is(err, redirect.ErrNoLiveInstance) {
		ev = a.log.Warn()
	}
	ev.Err(err).Str("operation", operation).Str("host", CallerHost(r.Context())).Msg("redirection failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// callArgs are the URL parameters of the matched route, in order.
func callArgs(r *http.Request) []any {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	args := make([]any, 0, len(rctx.URLParams.Values))
	for _, v := range rctx.URLParams.Values {
		args = append(args, v)
	}
	return args
}

func hostOf(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
