// Package heart keeps instances of a service type discoverable.
//
// A Heartbeat periodically writes a liveness marker for one instance into the
// cache service. The marker outlives the beat interval by the TTL ratio, so an
// instance can miss beats before it is considered dead:
//
//	beat ─────► add("__heartbeat:<instance>", ttl = heartRate * ttlRatio)
//	     ◄─ heartRate ─►
//	beat ─────► add(...)    marker refreshed
//	  (stopped)             marker expires after ttl, instance is gone
//
// A Stethoscope lists the markers of a service type to find the live set.
package heart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mini-redirect/cache"
)

const (
	// Sentinel prefixes every liveness marker key.
	Sentinel = "__heartbeat:"

	MinHeartRate     = time.Second
	DefaultHeartRate = 10 * time.Second
	DefaultTTLRatio  = 3.0
)

var (
	ErrConfig = errors.New("heart: invalid configuration")

	// ErrAlreadyBeating is returned by Start and by every setter while the
	// heartbeat runs. It is a configuration error.
	ErrAlreadyBeating = fmt.Errorf("%w: heartbeat already beating", ErrConfig)
)

// markerPayload is the value of every liveness marker; only presence matters.
var markerPayload = []byte{1}

// LivenessKey is the cache key of the marker for instance.
func LivenessKey(instance string) string {
	return Sentinel + instance
}

// Heartbeat moves between idle and beating with Start and Stop.
type Heartbeat struct {
	mu          sync.Mutex
	cache       *cache.Service
	serviceType string
	instance    string
	rate        time.Duration
	ratio       float64
	log         zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	beats    atomic.Uint64
	lastBeat atomic.Int64
}

type Option func(*Heartbeat)

func WithCacheService(c *cache.Service) Option {
	return func(h *Heartbeat) { h.cache = c }
}

func WithServiceType(serviceType string) Option {
	return func(h *Heartbeat) { h.serviceType = serviceType }
}

// WithInstanceName overrides the default instance name, the local address.
func WithInstanceName(name string) Option {
	return func(h *Heartbeat) { h.instance = name }
}

func WithHeartRate(d time.Duration) Option {
	return func(h *Heartbeat) { h.rate = d }
}

// WithTTLRatio sets the marker TTL as a multiple of the heart rate.
func WithTTLRatio(ratio float64) Option {
	return func(h *Heartbeat) { h.ratio = ratio }
}

func WithLogger(l zerolog.Logger) Option {
	return func(h *Heartbeat) { h.log = l }
}

// New builds an idle heartbeat. Cache service and service type may be left
// unset here and supplied later through the setters, but Start requires them.
func New(opts ...Option) (*Heartbeat, error) {
	h := &Heartbeat{
		instance: LocalName(),
		rate:     DefaultHeartRate,
		ratio:    DefaultTTLRatio,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if err := checkHeartRate(h.rate); err != nil {
		return nil, err
	}
	if err := checkInstanceName(h.instance); err != nil {
		return nil, err
	}
	if h.ratio <= 1 {
		return nil, fmt.Errorf("%w: ttl ratio %v must be greater than 1", ErrConfig, h.ratio)
	}
	return h, nil
}

func (h *Heartbeat) SetHeartRate(d time.Duration) error {
	if err := checkHeartRate(d); err != nil {
		return err
	}
	return h.mutate(func() { h.rate = d })
}

func (h *Heartbeat) SetCacheService(c *cache.Service) error {
	if c == nil {
		return fmt.Errorf("%w: cache service is nil", ErrConfig)
	}
	return h.mutate(func() { h.cache = c })
}

func (h *Heartbeat) SetServiceType(serviceType string) error {
	if serviceType == "" {
		return fmt.Errorf("%w: empty service type", ErrConfig)
	}
	return h.mutate(func() { h.serviceType = serviceType })
}

func (h *Heartbeat) SetInstanceName(name string) error {
	if err := checkInstanceName(name); err != nil {
		return err
	}
	return h.mutate(func() { h.instance = name })
}

func (h *Heartbeat) mutate(set func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.beatingLocked() {
		return ErrAlreadyBeating
	}
	set()
	return nil
}

func (h *Heartbeat) HeartRate() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rate
}

func (h *Heartbeat) ServiceType() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.serviceType
}

func (h *Heartbeat) InstanceName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.instance
}

// TTL is the lifetime given to each liveness marker.
func (h *Heartbeat) TTL() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ttlLocked()
}

func (h *Heartbeat) ttlLocked() time.Duration {
	return time.Duration(float64(h.rate) * h.ratio)
}

// Beats counts successful beats since construction.
func (h *Heartbeat) Beats() uint64 {
	return h.beats.Load()
}

// LastBeat is the time of the last successful beat, zero if none.
func (h *Heartbeat) LastBeat() time.Time {
	ns := h.lastBeat.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Start performs the first beat before returning, then keeps beating every
// heart rate until Stop is called or ctx is cancelled.
func (h *Heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.beatingLocked() {
		return ErrAlreadyBeating
	}
	switch {
	case h.cache == nil:
		return fmt.Errorf("%w: no cache service", ErrConfig)
	case h.serviceType == "":
		return fmt.Errorf("%w: no service type", ErrConfig)
	case h.instance == "":
		return fmt.Errorf("%w: no instance name", ErrConfig)
	}

	if h.cancel != nil {
		h.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})

	req := cache.AddRequest{
		Namespace: h.serviceType,
		Key:       LivenessKey(h.instance),
		Value:     markerPayload,
		TTL:       h.ttlLocked(),
	}
	log := h.log.With().Str("service_type", h.serviceType).Str("instance", h.instance).Logger()
	log.Info().Dur("heart_rate", h.rate).Dur("ttl", req.TTL).Msg("heartbeat started")

	h.beat(loopCtx, h.cache, req, log)
	go h.run(loopCtx, h.done, h.cache, h.rate, req, log)
	return nil
}

func (h *Heartbeat) run(ctx context.Context, done chan struct{}, c *cache.Service, rate time.Duration, req cache.AddRequest, log zerolog.Logger) {
	defer close(done)

	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.beat(ctx, c, req, log)
		case <-ctx.Done():
			log.Info().Msg("heartbeat stopped")
			return
		}
	}
}

// beat never fails the loop; the next tick retries.
func (h *Heartbeat) beat(ctx context.Context, c *cache.Service, req cache.AddRequest, log zerolog.Logger) {
	// Bound each write so a slow store cannot stack beats
	ctx, cancel := context.WithTimeout(ctx, req.TTL)
	defer cancel()

	if _, err := c.Add(ctx, req); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("heartbeat failed")
		}
		return
	}
	h.beats.Add(1)
	h.lastBeat.Store(time.Now().UnixNano())
	log.Debug().Msg("beat")
}

// Stop cancels the periodic task and waits for it to exit. It is safe to call
// on an idle heartbeat and more than once.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Deregister removes the liveness marker of a stopped heartbeat, so the
// instance leaves the live set without waiting for the TTL.
func (h *Heartbeat) Deregister(ctx context.Context) (bool, error) {
	h.mu.Lock()
	if h.beatingLocked() {
		h.mu.Unlock()
		return false, ErrAlreadyBeating
	}
	c, serviceType, instance := h.cache, h.serviceType, h.instance
	h.mu.Unlock()

	if c == nil || serviceType == "" {
		return false, fmt.Errorf("%w: nothing to deregister", ErrConfig)
	}
	return c.Remove(ctx, cache.RemoveRequest{Namespace: serviceType, Key: LivenessKey(instance)})
}

func (h *Heartbeat) IsBeating() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.beatingLocked()
}

// beatingLocked also reports false once the parent context of Start has
// ended the loop on its own.
func (h *Heartbeat) beatingLocked() bool {
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func checkHeartRate(d time.Duration) error {
	if d < MinHeartRate {
		return fmt.Errorf("%w: heart rate %s below minimum %s", ErrConfig, d, MinHeartRate)
	}
	return nil
}

func checkInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty instance name", ErrConfig)
	}
	return nil
}
