// Package storetest runs the store.Store contract against an implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-redirect/store"
)

// Run exercises every part of the contract. newStore must return an empty
// store; it is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		ok, err := s.Put(ctx, "k", "string", []byte("v"), 0)
		require.NoError(t, err)
		assert.True(t, ok)

		e, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "string", e.TypeTag)
		assert.Equal(t, []byte("v"), e.Value)
	})

	t.Run("MissingKeyIsAbsent", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("OverwriteReplacesEntry", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Put(ctx, "k", "a", []byte("one"), time.Hour)
		require.NoError(t, err)
		_, err = s.Put(ctx, "k", "b", []byte("two"), 0)
		require.NoError(t, err)

		e, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "b", e.TypeTag)
		assert.Equal(t, []byte("two"), e.Value)
		assert.Equal(t, time.Duration(0), e.TTL)
	})

	t.Run("RejectsBadArguments", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Put(ctx, "", "t", []byte("v"), 0)
		assert.ErrorIs(t, err, store.ErrEmptyKey)
		_, err = s.Put(ctx, "   ", "t", []byte("v"), 0)
		assert.ErrorIs(t, err, store.ErrEmptyKey)
		_, err = s.Put(ctx, "k", "t", []byte("v"), -time.Second)
		assert.ErrorIs(t, err, store.ErrNegativeTTL)
		_, err = s.Put(ctx, "k", "", []byte("v"), 0)
		assert.ErrorIs(t, err, store.ErrEmptyTypeTag)
		_, _, err = s.Get(ctx, " ")
		assert.ErrorIs(t, err, store.ErrEmptyKey)
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Put(ctx, "ttl:k", "t", []byte("v"), time.Second)
		require.NoError(t, err)

		_, ok, err := s.Get(ctx, "ttl:k")
		require.NoError(t, err)
		assert.True(t, ok, "entry must be readable before its TTL")

		time.Sleep(1200 * time.Millisecond)

		_, ok, err = s.Get(ctx, "ttl:k")
		require.NoError(t, err)
		assert.False(t, ok, "entry must be gone after its TTL")

		keys, err := s.ListByPrefix(ctx, "ttl:")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("ListByPrefix", func(t *testing.T) {
		s := newStore(t)
		for _, k := range []string{"svc:a", "svc:b", "other:c"} {
			_, err := s.Put(ctx, k, "t", []byte("x"), 0)
			require.NoError(t, err)
		}

		keys, err := s.ListByPrefix(ctx, "svc:")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"svc:a", "svc:b"}, keys)

		// A snapshot can be walked twice
		again, err := s.ListByPrefix(ctx, "svc:")
		require.NoError(t, err)
		assert.ElementsMatch(t, keys, again)

		none, err := s.ListByPrefix(ctx, "missing:")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Remove", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Put(ctx, "k", "t", []byte("v"), 0)
		require.NoError(t, err)

		removed, err := s.Remove(ctx, "k")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.Remove(ctx, "k")
		require.NoError(t, err)
		assert.False(t, removed)

		_, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := s.Put(ctx, fmt.Sprintf("c:%d", n), "t", []byte{byte(n)}, time.Minute)
				assert.NoError(t, err)
				_, err = s.Put(ctx, "c:shared", "t", []byte{byte(n)}, time.Minute)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		keys, err := s.ListByPrefix(ctx, "c:")
		require.NoError(t, err)
		assert.Len(t, keys, 21)
	})
}
