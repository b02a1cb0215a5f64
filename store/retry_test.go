package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-redirect/store"
)

// flakyStore fails the first n calls to Put and Get.
type flakyStore struct {
	store.Store
	failures int
	calls    int
}

var errUnavailable = errors.New("backend unavailable")

func (f *flakyStore) Put(ctx context.Context, key, typeTag string, value []byte, ttl time.Duration) (bool, error) {
	f.calls++
	if f.calls <= f.failures {
		return false, errUnavailable
	}
	return f.Store.Put(ctx, key, typeTag, value, ttl)
}

func (f *flakyStore) Get(ctx context.Context, key string) (store.Entry, bool, error) {
	f.calls++
	if f.calls <= f.failures {
		return store.Entry{}, false, errUnavailable
	}
	return f.Store.Get(ctx, key)
}

func TestRetryingRecovers(t *testing.T) {
	flaky := &flakyStore{Store: store.NewMemory(), failures: 2}
	r := store.NewRetrying(flaky, 3, time.Millisecond, zerolog.Nop())

	ok, err := r.Put(context.Background(), "k", "t", []byte("v"), 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryingGivesUp(t *testing.T) {
	flaky := &flakyStore{Store: store.NewMemory(), failures: 10}
	r := store.NewRetrying(flaky, 2, time.Millisecond, zerolog.Nop())

	_, _, err := r.Get(context.Background(), "k")
	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, 3, flaky.calls, "one call plus two retries")
}

func TestRetryingSkipsPermanentErrors(t *testing.T) {
	flaky := &flakyStore{Store: store.NewMemory()}
	r := store.NewRetrying(flaky, 5, time.Millisecond, zerolog.Nop())

	_, err := r.Put(context.Background(), "", "t", nil, 0)
	assert.ErrorIs(t, err, store.ErrEmptyKey)
	assert.Equal(t, 1, flaky.calls)
}

func TestRetryingHonoursCancel(t *testing.T) {
	flaky := &flakyStore{Store: store.NewMemory(), failures: 10}
	r := store.NewRetrying(flaky, 5, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Put(ctx, "k", "t", nil, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
