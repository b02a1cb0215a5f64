package edge

import (
	"context"
	"errors"
	"sync"
)

var ErrNoPendingRedirect = errors.New("edge: no redirection pending for this call")

// Marshall carries one redirection decision from the dispatch step of a
// call to the response filter of the same call. A decision can be taken
// exactly once.
type Marshall struct {
	mu      sync.Mutex
	dest    string
	pending bool
}

// Record stores the destination chosen for this call.
func (m *Marshall) Record(dest string) {
	m.mu.Lock()
	m.dest, m.pending = dest, true
	m.mu.Unlock()
}

// Pending reports whether a decision is waiting to be taken.
func (m *Marshall) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Take returns the recorded destination and clears it. Without a pending
// decision, including on a second Take, it returns ErrNoPendingRedirect.
func (m *Marshall) Take() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pending {
		return "", ErrNoPendingRedirect
	}
	dest := m.dest
	m.dest, m.pending = "", false
	return dest, nil
}

type ctxKey int

const (
	hostKey ctxKey = iota
	marshallKey
)

// WithCallerHost stashes the caller's host for the rest of the call.
func WithCallerHost(ctx context.Context, host string) context.Context {
	return context.WithValue(ctx, hostKey, host)
}

// CallerHost returns the host stashed by WithCallerHost, or "".
func CallerHost(ctx context.Context) string {
	h, _ := ctx.Value(hostKey).(string)
	return h
}

func withMarshall(ctx context.Context, m *Marshall) context.Context {
	return context.WithValue(ctx, marshallKey, m)
}

// MarshallFrom returns the marshall of the current call, or nil outside
// an adapter.
func MarshallFrom(ctx context.Context) *Marshall {
	m, _ := ctx.Value(marshallKey).(*Marshall)
	return m
}
