package codec

import (
	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec is a compact binary alternative to JSON for structured
// values. It is not registered by default; register it per type:
//
//	codec.Register[Decision](reg, codec.MsgpackCodec{})
type MsgpackCodec struct{}

func (c MsgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (c MsgpackCodec) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (c MsgpackCodec) Name() string {
	return "msgpack"
}
