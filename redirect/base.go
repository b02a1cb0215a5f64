package redirect

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mini-redirect/cache"
	"mini-redirect/heart"
)

const DefaultMemoryTTL = 20 * time.Second

// Base holds what every policy shares: the stethoscope for the redirected
// service type and the redirection memory used by the anti-flapping guard.
type Base struct {
	cache       *cache.Service
	scope       *heart.Stethoscope
	serviceType string
	namespace   string
	memoryTTL   time.Duration
	log         zerolog.Logger
}

type Option func(*Base)

// WithMemoryTTL sets how long a destination is remembered per caller.
func WithMemoryTTL(d time.Duration) Option {
	return func(b *Base) { b.memoryTTL = d }
}

// WithMemoryNamespace overrides the cache namespace of the redirection
// memory, which defaults to "redirect/<service type>".
func WithMemoryNamespace(ns string) Option {
	return func(b *Base) { b.namespace = ns }
}

func WithLogger(l zerolog.Logger) Option {
	return func(b *Base) { b.log = l }
}

func NewBase(c *cache.Service, serviceType string, opts ...Option) *Base {
	b := &Base{
		cache:       c,
		serviceType: serviceType,
		namespace:   "redirect/" + serviceType,
		memoryTTL:   DefaultMemoryTTL,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.scope = heart.NewStethoscope(c, serviceType, b.log)
	return b
}

func (b *Base) ServiceType() string {
	return b.serviceType
}

// Scope is the stethoscope for the redirected service type.
func (b *Base) Scope() *heart.Stethoscope {
	return b.scope
}

// IsRedirectionValid rejects destination when it is the one last chosen for
// the same caller and method within the memory TTL. A memory read failure
// is logged and the destination accepted; the memory only prevents
// oscillation.
func (b *Base) IsRedirectionValid(ctx context.Context, host, destination, method string, args ...any) bool {
	last, ok, err := cache.GetAs[string](ctx, b.cache, b.namespace, memoryKey(host, method))
	if err != nil {
		b.log.Warn().Err(err).Str("host", host).Str("method", method).Msg("redirection memory read failed")
		return true
	}
	if ok && last == destination {
		b.log.Debug().Str("host", host).Str("method", method).Str("destination", destination).
			Msg("rejecting repeat redirection")
		return false
	}
	return true
}

// LogRedirect remembers destination for the caller and method.
func (b *Base) LogRedirect(ctx context.Context, host, destination, method string, args ...any) {
	b.log.Debug().Str("host", host).Str("method", method).Str("destination", destination).Msg("redirecting")

	_, err := b.cache.Add(ctx, cache.AddRequest{
		Namespace: b.namespace,
		Key:       memoryKey(host, method),
		Value:     destination,
		TTL:       b.memoryTTL,
	})
	if err != nil {
		b.log.Warn().Err(err).Str("host", host).Str("method", method).Msg("redirection memory write failed")
	}
}

func memoryKey(host, method string) string {
	return host + "|" + method
}
