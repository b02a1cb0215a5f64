// Package redirect decides where a call should be sent instead of being
// served locally.
//
// A decision reads the live instances of a service type, lets a policy pick
// one, and consults a short-lived redirection memory so the same caller is not
// bounced straight back to the instance it was just sent to:
//
//	live := stethoscope.Auscultate()          // {} ──► ErrNoLiveInstance
//	d    := policy.Pick(live, host)
//	if !IsRedirectionValid(host, d, method)   // d == last destination for (host, method)
//	        d = policy.Pick(live \ {d}, host) // unless nothing else is left
//	LogRedirect(host, d, method)              // remembered for the memory TTL
//
// The guard only compares against the immediately preceding destination.
// Longer cycles (A→B→A) are not prevented.
package redirect

import (
	"context"
	"errors"
)

var ErrNoLiveInstance = errors.New("redirect: no live instance")

// Redirector returns the destination a call from host to method should be
// sent to. An empty destination with a nil error means "serve locally".
type Redirector interface {
	RedirectionFor(ctx context.Context, host, method string, args ...any) (string, error)
}

// Func adapts a plain function to Redirector.
type Func func(ctx context.Context, host, method string, args ...any) (string, error)

func (f Func) RedirectionFor(ctx context.Context, host, method string, args ...any) (string, error) {
	return f(ctx, host, method, args...)
}
