// Package store defines the keyed byte storage that the cache service persists
// into, together with the implementations shipped with mini-redirect.
//
// Every entry carries a type tag and an optional time to live. An entry that
// has outlived its TTL is never returned by Get or ListByPrefix, whether or
// not the implementation has physically purged it yet.
//
//	Put(key, tag, bytes, ttl) ──► entry{tag, bytes, created, expires}
//	Get(key)                  ──► entry, ok   (ok=false once expired)
//	ListByPrefix(prefix)      ──► live keys only
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyKey     = errors.New("store: key cannot be empty")
	ErrEmptyTypeTag = errors.New("store: type tag cannot be empty")
	ErrNegativeTTL  = errors.New("store: time to live cannot be negative")
	ErrClosed       = errors.New("store: closed")
)

// Entry is a single stored value.
type Entry struct {
	Key     string
	TypeTag string        // Name of the Go type the value was encoded from
	Value   []byte        // Encoded bytes, opaque to the store
	TTL     time.Duration // Zero means the entry never expires
	Created time.Time
}

// Expired reports whether the entry is past its deadline at now.
func (e Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.Created.Add(e.TTL))
}

// Store is the contract every backing store satisfies.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes the whole entry, replacing any previous value, tag and TTL
	// under key. A zero ttl stores the entry without expiry.
	Put(ctx context.Context, key, typeTag string, value []byte, ttl time.Duration) (bool, error)

	// Get returns the entry under key. A missing or expired key is reported
	// with ok=false and a nil error.
	Get(ctx context.Context, key string) (entry Entry, ok bool, err error)

	// ListByPrefix returns every live key beginning with prefix.
	// The result is a snapshot and may be iterated any number of times.
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)

	// Remove deletes key and reports whether a live entry was present.
	Remove(ctx context.Context, key string) (bool, error)

	Close() error
}

// CheckKey rejects blank keys.
func CheckKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}

// CheckPut validates the arguments of a Put before anything is written.
func CheckPut(key, typeTag string, ttl time.Duration) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	if typeTag == "" {
		return ErrEmptyTypeTag
	}
	if ttl < 0 {
		return ErrNegativeTTL
	}
	return nil
}

// IsPermanent reports whether err is a caller error that retrying cannot fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrEmptyKey) ||
		errors.Is(err, ErrEmptyTypeTag) ||
		errors.Is(err, ErrNegativeTTL) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
