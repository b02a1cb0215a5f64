package redirect_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-redirect/cache"
	"mini-redirect/heart"
	"mini-redirect/loadbalance"
	"mini-redirect/redirect"
	"mini-redirect/store"
)

const serviceType = "PolicyService"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newCache(t *testing.T) (*cache.Service, *clock) {
	t.Helper()
	clk := &clock{now: time.Unix(20_000, 0)}
	return cache.New(store.NewMemory(store.WithClock(clk.Now))), clk
}

func markAlive(t *testing.T, svc *cache.Service, instances ...string) {
	t.Helper()
	for _, inst := range instances {
		_, err := svc.Add(context.Background(), cache.AddRequest{
			Namespace: serviceType,
			Key:       heart.LivenessKey(inst),
			Value:     []byte{1},
			TTL:       time.Hour,
		})
		require.NoError(t, err)
	}
}

func TestNoLiveInstance(t *testing.T) {
	svc, _ := newCache(t)
	r := redirect.NewRandom(svc, serviceType)

	dest, err := r.RedirectionFor(context.Background(), "client", "read")
	assert.ErrorIs(t, err, redirect.ErrNoLiveInstance)
	assert.Empty(t, dest)
}

func TestRandomPicksLiveInstance(t *testing.T) {
	svc, _ := newCache(t)
	markAlive(t, svc, "a:1", "b:2", "c:3")
	r := redirect.NewRandom(svc, serviceType)
	assert.Equal(t, "Random", r.Policy())

	for i := 0; i < 20; i++ {
		dest, err := r.RedirectionFor(context.Background(), "client", "read")
		require.NoError(t, err)
		assert.Contains(t, []string{"a:1", "b:2", "c:3"}, dest)
	}
}

func TestAntiFlapping(t *testing.T) {
	ctx := context.Background()
	svc, clk := newCache(t)
	markAlive(t, svc, "a", "b")
	r := redirect.NewRandom(svc, serviceType)

	first, err := r.RedirectionFor(ctx, "H", "M")
	require.NoError(t, err)

	// Repeating the same call alternates while an alternative exists
	prev := first
	for i := 0; i < 10; i++ {
		next, err := r.RedirectionFor(ctx, "H", "M")
		require.NoError(t, err)
		assert.NotEqual(t, prev, next, "call %d repeated %s", i, prev)
		prev = next
	}

	// A different caller or method has its own memory
	_, err = r.RedirectionFor(ctx, "other-host", "M")
	require.NoError(t, err)
	_, err = r.RedirectionFor(ctx, "H", "other-method")
	require.NoError(t, err)

	// Once the memory has expired the previous destination is allowed again
	clk.Advance(redirect.DefaultMemoryTTL)
	assert.True(t, r.IsRedirectionValid(ctx, "H", prev, "M"))
}

func TestAntiFlappingSingleInstanceRepeats(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCache(t)
	markAlive(t, svc, "only")
	r := redirect.NewRandom(svc, serviceType)

	for i := 0; i < 3; i++ {
		dest, err := r.RedirectionFor(ctx, "H", "M")
		require.NoError(t, err)
		assert.Equal(t, "only", dest)
	}
}

func TestMemoryTTLOption(t *testing.T) {
	ctx := context.Background()
	svc, clk := newCache(t)
	markAlive(t, svc, "a", "b")
	r := redirect.NewRandom(svc, serviceType, redirect.WithMemoryTTL(time.Second))

	r.LogRedirect(ctx, "H", "a", "M")
	assert.False(t, r.IsRedirectionValid(ctx, "H", "a", "M"))
	assert.True(t, r.IsRedirectionValid(ctx, "H", "b", "M"))

	clk.Advance(time.Second)
	assert.True(t, r.IsRedirectionValid(ctx, "H", "a", "M"))
}

func TestGuardAppliesToStickyPolicy(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCache(t)
	markAlive(t, svc, "a", "b", "c")
	r := redirect.New(svc, serviceType, loadbalance.NewConsistentHashBalancer())

	first, err := r.RedirectionFor(ctx, "H", "M")
	require.NoError(t, err)
	second, err := r.RedirectionFor(ctx, "H", "M")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestFuncAdapter(t *testing.T) {
	var r redirect.Redirector = redirect.Func(func(_ context.Context, host, method string, _ ...any) (string, error) {
		return host + "/" + method, nil
	})
	dest, err := r.RedirectionFor(context.Background(), "h", "m")
	require.NoError(t, err)
	assert.Equal(t, "h/m", dest)
}
