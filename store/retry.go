package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Retrying wraps a Store and retries failed calls with exponential backoff.
// Every Store operation is an idempotent full-entry write or a read, so
// replaying one is safe. Validation and cancellation errors are returned
// immediately.
type Retrying struct {
	Store
	maxRetries int
	baseDelay  time.Duration
	log        zerolog.Logger
}

func NewRetrying(inner Store, maxRetries int, baseDelay time.Duration, log zerolog.Logger) *Retrying {
	return &Retrying{Store: inner, maxRetries: maxRetries, baseDelay: baseDelay, log: log}
}

func (r *Retrying) Put(ctx context.Context, key, typeTag string, value []byte, ttl time.Duration) (bool, error) {
	var ok bool
	err := r.do(ctx, "put", key, func() (err error) {
		ok, err = r.Store.Put(ctx, key, typeTag, value, ttl)
		return err
	})
	return ok, err
}

func (r *Retrying) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		e  Entry
		ok bool
	)
	err := r.do(ctx, "get", key, func() (err error) {
		e, ok, err = r.Store.Get(ctx, key)
		return err
	})
	return e, ok, err
}

func (r *Retrying) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := r.do(ctx, "list", prefix, func() (err error) {
		keys, err = r.Store.ListByPrefix(ctx, prefix)
		return err
	})
	return keys, err
}

func (r *Retrying) Remove(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := r.do(ctx, "remove", key, func() (err error) {
		ok, err = r.Store.Remove(ctx, key)
		return err
	})
	return ok, err
}

func (r *Retrying) do(ctx context.Context, op, key string, call func() error) error {
	err := call()
	for i := 0; i < r.maxRetries; i++ {
		if err == nil || IsPermanent(err) {
			return err
		}
		r.log.Warn().Err(err).Str("op", op).Str("key", key).Int("attempt", i+1).Msg("retrying store call")

		timer := time.NewTimer(r.baseDelay * time.Duration(1<<i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		err = call()
	}
	return err
}
