package cache

// Stored values carry a one-byte header ahead of the codec output.
//
//	┌────────┬──────────────────┐
//	│ flags  │ encoded value    │
//	└────────┴──────────────────┘
const flagLocallyCacheable byte = 1 << 0

func withMetadata(data []byte, locallyCacheable bool) []byte {
	var flags byte
	if locallyCacheable {
		flags |= flagLocallyCacheable
	}
	out := make([]byte, 0, len(data)+1)
	out = append(out, flags)
	return append(out, data...)
}

// stripMetadata returns the encoded value and whether it may be kept in
// process memory.
func stripMetadata(stored []byte) ([]byte, bool) {
	if len(stored) == 0 {
		return stored, false
	}
	return stored[1:], stored[0]&flagLocallyCacheable != 0
}
