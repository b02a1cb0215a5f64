package heart

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mini-redirect/cache"
)

// Stethoscope lists the live instances of one service type. It keeps no
// state of its own; every call reads the cache.
type Stethoscope struct {
	cache       *cache.Service
	serviceType string
	log         zerolog.Logger
}

func NewStethoscope(c *cache.Service, serviceType string, log zerolog.Logger) *Stethoscope {
	return &Stethoscope{cache: c, serviceType: serviceType, log: log}
}

func (s *Stethoscope) ServiceType() string {
	return s.serviceType
}

// Auscultate returns the names of the instances whose liveness markers
// are present now.
func (s *Stethoscope) Auscultate(ctx context.Context) ([]string, error) {
	keys, err := s.cache.List(ctx, cache.ListRequest{Namespace: s.serviceType, Prefix: Sentinel})
	if err != nil {
		return nil, err
	}
	live := make([]string, 0, len(keys))
	for _, k := range keys {
		live = append(live, strings.TrimPrefix(k, Sentinel))
	}
	return live, nil
}

// Watch polls Auscultate every interval and emits the sorted live set
// whenever it changes, starting with the first successful read. The channel
// is closed when ctx is done. Failed polls are logged and skipped.
func (s *Stethoscope) Watch(ctx context.Context, interval time.Duration) <-chan []string {
	ch := make(chan []string, 1)

	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last []string
		first := true
		for {
			live, err := s.Auscultate(ctx)
			switch {
			case err != nil:
				if ctx.Err() == nil {
					s.log.Warn().Err(err).Str("service_type", s.serviceType).Msg("auscultate failed")
				}
			default:
				slices.Sort(live)
				if first || !slices.Equal(live, last) {
					select {
					case ch <- live:
					case <-ctx.Done():
						return
					}
					last, first = live, false
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}
