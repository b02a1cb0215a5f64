// Package cache is the typed, namespaced façade over a backing store.
//
// Every request names the namespace of the component making it. The
// namespace is folded into the stored key so two components can use the same
// literal key without ever seeing each other's entries:
//
//	namespace "heart.PolicyService", key "__heartbeat:10.0.0.7"
//	  ──► store key "heart.PolicyService:__heartbeat:10.0.0.7"
//
// Separator characters inside a namespace are escaped, so the boundary
// between namespace and key is never ambiguous.
package cache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"mini-redirect/codec"
	"mini-redirect/store"
)

const (
	// Separator joins the escaped namespace and the caller's key.
	Separator = ":"

	// DefaultMaxLocalTTL bounds how long a locally cacheable entry may be
	// served from process memory.
	DefaultMaxLocalTTL = 5 * time.Minute

	// DefaultReadTimeout bounds a coalesced store read. The read runs
	// detached from any one caller so a cancelled caller does not fail the
	// others waiting on it.
	DefaultReadTimeout = 5 * time.Second
)

var (
	ErrNoNamespace = errors.New("cache: namespace cannot be empty")
	ErrLocalTTL    = errors.New("cache: locally cacheable values need a TTL below the local maximum")
	ErrBadTarget   = errors.New("cache: decode target must be a non-nil pointer")
)

var namespaceEscaper = strings.NewReplacer("%", "%25", Separator, "%3A")

// AddRequest stores Value under Key in Namespace.
type AddRequest struct {
	Namespace string
	Key       string
	Value     any
	TTL       time.Duration // zero stores without expiry

	// LocallyCacheable lets readers in this process keep the value in
	// memory. Requires 0 < TTL < the service's max local TTL.
	LocallyCacheable bool
}

type GetRequest struct {
	Namespace string
	Key       string
}

type ListRequest struct {
	Namespace string
	Prefix    string
}

type RemoveRequest struct {
	Namespace string
	Key       string
}

// Service is safe for concurrent use by any number of callers.
type Service struct {
	store       store.Store
	codecs      *codec.Registry
	maxLocal    time.Duration
	readTimeout time.Duration
	log         zerolog.Logger
	now         func() time.Time

	mu    sync.RWMutex
	local map[string]localEntry
	gen   map[string]uint64 // bumped by every Add and Remove of the key
	reads singleflight.Group
}

type localEntry struct {
	entry store.Entry
	until time.Time
}

type Option func(*Service)

// WithCodecs shares a codec registry instead of creating a fresh one.
func WithCodecs(r *codec.Registry) Option {
	return func(s *Service) { s.codecs = r }
}

func WithMaxLocalTTL(d time.Duration) Option {
	return func(s *Service) { s.maxLocal = d }
}

// WithReadTimeout bounds each store read shared by concurrent Gets.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Service) { s.readTimeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:       st,
		maxLocal:    DefaultMaxLocalTTL,
		readTimeout: DefaultReadTimeout,
		log:         zerolog.Nop(),
		now:         time.Now,
		local:       make(map[string]localEntry),
		gen:         make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codecs == nil {
		s.codecs = codec.NewRegistry()
	}
	return s
}

// Codecs exposes the registry so components can register custom codecs.
func (s *Service) Codecs() *codec.Registry {
	return s.codecs
}

// Add encodes the value with the codec registered for its type and writes it.
func (s *Service) Add(ctx context.Context, req AddRequest) (bool, error) {
	base, err := baseKey(req.Namespace, req.Key)
	if err != nil {
		return false, err
	}
	if req.LocallyCacheable && (req.TTL <= 0 || req.TTL >= s.maxLocal) {
		return false, fmt.Errorf("%w (%s)", ErrLocalTTL, s.maxLocal)
	}

	t := reflect.TypeOf(req.Value)
	data, err := s.codecs.EncoderFor(t).Encode(req.Value)
	if err != nil {
		return false, fmt.Errorf("cache: encode %s: %w", base, err)
	}

	s.log.Debug().Str("key", base).Dur("ttl", req.TTL).Msg("cache add")
	ok, err := s.store.Put(ctx, base, codec.TypeTag(t), withMetadata(data, req.LocallyCacheable), req.TTL)
	// A failed put may still have landed
	s.invalidate(base)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Get decodes the entry under the request key into out, which must be a
// pointer to the expected type. A miss reports false with a nil error.
func (s *Service) Get(ctx context.Context, req GetRequest, out any) (bool, error) {
	base, err := baseKey(req.Namespace, req.Key)
	if err != nil {
		return false, err
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false, ErrBadTarget
	}

	value, ok, err := s.retrieve(ctx, base)
	if err != nil || !ok {
		return false, err
	}

	if err := s.codecs.DecoderFor(rv.Type().Elem()).Decode(value, out); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", base, err)
	}
	return true, nil
}

// GetAs is the generic form of Get.
func GetAs[T any](ctx context.Context, s *Service, namespace, key string) (T, bool, error) {
	var v T
	ok, err := s.Get(ctx, GetRequest{Namespace: namespace, Key: key}, &v)
	return v, ok, err
}

// List returns the caller keys in the namespace that start with the prefix,
// with the namespace stripped.
func (s *Service) List(ctx context.Context, req ListRequest) ([]string, error) {
	if req.Namespace == "" {
		return nil, ErrNoNamespace
	}
	ns := namespaceEscaper.Replace(req.Namespace) + Separator

	s.log.Debug().Str("prefix", ns+req.Prefix).Msg("cache list")
	keys, err := s.store.ListByPrefix(ctx, ns+req.Prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, ns))
	}
	return out, nil
}

func (s *Service) Remove(ctx context.Context, req RemoveRequest) (bool, error) {
	base, err := baseKey(req.Namespace, req.Key)
	if err != nil {
		return false, err
	}
	s.log.Debug().Str("key", base).Msg("cache remove")
	ok, err := s.store.Remove(ctx, base)
	s.invalidate(base)
	return ok, err
}

// retrieve returns the value bytes with metadata stripped, preferring the
// in-process copy. Concurrent store reads of one key are coalesced.
//
// A read only becomes the in-process copy if no Add or Remove of the key
// finished while it was in flight.
func (s *Service) retrieve(ctx context.Context, base string) ([]byte, bool, error) {
	if v, ok := s.lookupLocal(base); ok {
		return v, true, nil
	}

	type result struct {
		entry store.Entry
		ok    bool
		gen   uint64
	}
	ch := s.reads.DoChan(base, func() (any, error) {
		s.mu.RLock()
		gen := s.gen[base]
		s.mu.RUnlock()

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.readTimeout)
		defer cancel()
		e, ok, err := s.store.Get(rctx, base)
		return result{e, ok, gen}, err
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	if res.Err != nil {
		return nil, false, res.Err
	}
	r := res.Val.(result)
	if !r.ok {
		return nil, false, nil
	}

	value, localOK := stripMetadata(r.entry.Value)
	if localOK {
		s.keepLocal(base, r.gen, r.entry, value)
	}
	return value, true, nil
}

func (s *Service) lookupLocal(base string) ([]byte, bool) {
	s.mu.RLock()
	le, ok := s.local[base]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !s.now().Before(le.until) {
		s.forgetLocal(base)
		return nil, false
	}
	return le.entry.Value, true
}

func (s *Service) keepLocal(base string, gen uint64, e store.Entry, value []byte) {
	until := s.now().Add(s.maxLocal)
	if e.TTL > 0 {
		if deadline := e.Created.Add(e.TTL); deadline.Before(until) {
			until = deadline
		}
	}
	e.Value = value

	s.mu.Lock()
	if s.gen[base] == gen {
		s.local[base] = localEntry{entry: e, until: until}
	}
	s.mu.Unlock()
}

// invalidate drops the in-process copy, stops reads already in flight from
// installing theirs, and detaches later Gets from those reads.
func (s *Service) invalidate(base string) {
	s.mu.Lock()
	s.gen[base]++
	delete(s.local, base)
	s.mu.Unlock()
	s.reads.Forget(base)
}

func (s *Service) forgetLocal(base string) {
	s.mu.Lock()
	delete(s.local, base)
	s.mu.Unlock()
}

func baseKey(namespace, key string) (string, error) {
	if namespace == "" {
		return "", ErrNoNamespace
	}
	if err := store.CheckKey(key); err != nil {
		return "", err
	}
	return namespaceEscaper.Replace(namespace) + Separator + key, nil
}
