package codec

import (
	"reflect"
	"sync"
)

// Registry holds one encoder and one decoder per Go type.
// It is safe for concurrent registration and lookup.
type Registry struct {
	mu       sync.RWMutex
	encoders map[reflect.Type]Codec
	decoders map[reflect.Type]Codec
	fallback Codec
}

// NewRegistry returns a registry with the byte, string and JSON defaults.
func NewRegistry() *Registry {
	r := &Registry{
		encoders: make(map[reflect.Type]Codec),
		decoders: make(map[reflect.Type]Codec),
		fallback: JSONCodec{},
	}
	r.Register(TypeOf[[]byte](), BytesCodec{})
	r.Register(TypeOf[string](), StringCodec{})
	return r
}

// Register sets c as both encoder and decoder for t, replacing any
// previous registration.
func (r *Registry) Register(t reflect.Type, c Codec) {
	r.RegisterPair(t, c, c)
}

// RegisterPair sets separate encoder and decoder for t.
func (r *Registry) RegisterPair(t reflect.Type, enc, dec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[t] = enc
	r.decoders[t] = dec
}

// RegisterFuncs registers an encode/decode function pair for t.
func (r *Registry) RegisterFuncs(t reflect.Type, enc EncodeFunc, dec DecodeFunc) {
	c := Funcs(TypeTag(t), enc, dec)
	r.RegisterPair(t, c, c)
}

// Unregister drops the codecs for t. Missing registrations are ignored.
func (r *Registry) Unregister(t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.encoders, t)
	delete(r.decoders, t)
}

// EncoderFor never fails; unregistered types get the fallback codec.
func (r *Registry) EncoderFor(t reflect.Type) Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.encoders[t]; ok {
		return c
	}
	return r.fallback
}

// DecoderFor never fails; unregistered types get the fallback codec.
func (r *Registry) DecoderFor(t reflect.Type) Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.decoders[t]; ok {
		return c
	}
	return r.fallback
}

// Register is the generic shorthand for r.Register(TypeOf[T](), c).
func Register[T any](r *Registry, c Codec) {
	r.Register(TypeOf[T](), c)
}
