package codec

// BytesCodec stores []byte values unchanged.
type BytesCodec struct{}

func (c BytesCodec) Encode(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, wrongType(c.Name(), "[]byte", v)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (c BytesCodec) Decode(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return wrongType(c.Name(), "*[]byte", v)
	}
	*p = append([]byte(nil), data...)
	return nil
}

func (c BytesCodec) Name() string {
	return "bytes"
}

// StringCodec stores strings as their UTF-8 bytes.
type StringCodec struct{}

func (c StringCodec) Encode(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, wrongType(c.Name(), "string", v)
	}
	return []byte(s), nil
}

func (c StringCodec) Decode(data []byte, v any) error {
	p, ok := v.(*string)
	if !ok {
		return wrongType(c.Name(), "*string", v)
	}
	*p = string(data)
	return nil
}

func (c StringCodec) Name() string {
	return "string"
}
