// Package codec maps Go types to the functions that turn their values into
// bytes and back, so the cache can persist arbitrary typed values.
//
// Lookups never fail: a type without a registration is handled by the
// catch-all JSON codec.
//
//	[]byte ──► Bytes   (identity)
//	string ──► String  (UTF-8)
//	  *    ──► JSON    (fallback)
package codec

import (
	"fmt"
	"reflect"
)

// Codec encodes values of a single Go type. Decode is given a pointer to
// the destination.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}

// EncodeFunc and DecodeFunc let a caller register a codec pair without
// declaring a type.
type (
	EncodeFunc func(v any) ([]byte, error)
	DecodeFunc func(data []byte, v any) error
)

type funcCodec struct {
	name string
	enc  EncodeFunc
	dec  DecodeFunc
}

func (c funcCodec) Encode(v any) ([]byte, error)    { return c.enc(v) }
func (c funcCodec) Decode(data []byte, v any) error { return c.dec(data, v) }
func (c funcCodec) Name() string                    { return c.name }

// Funcs builds a Codec from a function pair.
func Funcs(name string, enc EncodeFunc, dec DecodeFunc) Codec {
	return funcCodec{name: name, enc: enc, dec: dec}
}

// TypeOf returns the reflect.Type for T, including interface types.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// TypeTag is the stable string stored next to encoded bytes.
func TypeTag(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

func wrongType(codec string, want string, got any) error {
	return fmt.Errorf("codec %s: want %s, got %T", codec, want, got)
}
