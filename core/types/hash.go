package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Hash32 is a 32-byte content hash: dispute evidence, resolution explanations
// and derived identifiers all use this shape.
type Hash32 [32]byte

// Hash32FromBytes converts a raw slice into a Hash32, rejecting any input that
// is not exactly 32 bytes.
func Hash32FromBytes(b []byte) (Hash32, error) {
	var h Hash32
	if len(b) != len(h) {
		return h, fmt.Errorf("types: hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ParseHash32 decodes a hex encoded 32-byte hash.
func ParseHash32(s string) (Hash32, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash32{}, fmt.Errorf("types: invalid hash encoding: %w", err)
	}
	return Hash32FromBytes(raw)
}

// IsZero reports whether the hash is the all-zero value, used as the "absent"
// sentinel for optional hash fields.
func (h Hash32) IsZero() bool {
	return bytes.Equal(h[:], make([]byte, len(h)))
}

// String renders the hash as lowercase hex.
func (h Hash32) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash32) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash32) UnmarshalText(text []byte) error {
	parsed, err := ParseHash32(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
