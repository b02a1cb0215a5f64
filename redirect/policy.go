package redirect

import (
	"context"
	"fmt"

	"mini-redirect/cache"
	"mini-redirect/loadbalance"
)

// PolicyRedirector applies a load-balancing policy to the live set under the
// anti-flapping guard.
type PolicyRedirector struct {
	*Base
	balancer loadbalance.Balancer
}

func New(c *cache.Service, serviceType string, balancer loadbalance.Balancer, opts ...Option) *PolicyRedirector {
	return &PolicyRedirector{Base: NewBase(c, serviceType, opts...), balancer: balancer}
}

// NewRandom picks uniformly among the live instances.
func NewRandom(c *cache.Service, serviceType string, opts ...Option) *PolicyRedirector {
	return New(c, serviceType, loadbalance.NewRandom(), opts...)
}

func (r *PolicyRedirector) Policy() string {
	return r.balancer.Name()
}

func (r *PolicyRedirector) RedirectionFor(ctx context.Context, host, method string, args ...any) (string, error) {
	live, err := r.scope.Auscultate(ctx)
	if err != nil {
		return "", fmt.Errorf("redirect: live instances of %s: %w", r.serviceType, err)
	}
	if len(live) == 0 {
		r.log.Error().Str("service_type", r.serviceType).Str("host", host).Str("method", method).
			Msg("no live instance to redirect to")
		return "", fmt.Errorf("%w of %s", ErrNoLiveInstance, r.serviceType)
	}

	dest, err := r.balancer.Pick(live, host)
	if err != nil {
		return "", err
	}

	if !r.IsRedirectionValid(ctx, host, dest, method, args...) {
		if rest := without(live, dest); len(rest) > 0 {
			if dest, err = r.balancer.Pick(rest, host); err != nil {
				return "", err
			}
		}
		// Otherwise the rejected candidate is the only choice
	}

	r.LogRedirect(ctx, host, dest, method, args...)
	return dest, nil
}

func without(instances []string, drop string) []string {
	out := make([]string, 0, len(instances))
	for _, inst := range instances {
		if inst != drop {
			out = append(out, inst)
		}
	}
	return out
}
