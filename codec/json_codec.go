package codec

import (
	"encoding/json"
)

// JSONCodec is the catch-all codec for every type without its own
// registration. Pros: human-readable, works for any exported struct.
// Cons: slower due to reflection, larger payload (field names repeated).
type JSONCodec struct{}

func (c JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c JSONCodec) Name() string {
	return "json"
}
