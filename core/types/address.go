package types

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressLength is the byte length of every ledger address, whether it names a
// wallet or a derived custody object.
const AddressLength = 32

// Address identifies an account on the ledger. Wallet addresses are supplied
// by callers; custody addresses (escrow records, vaults) are derived
// deterministically and render in the same base58 form so tooling can
// recompute them from public identifiers.
type Address [AddressLength]byte

// AddressFromBytes converts a raw byte slice into an Address, rejecting any
// input that is not exactly AddressLength bytes.
func AddressFromBytes(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, fmt.Errorf("types: address must be %d bytes, got %d", AddressLength, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// ParseAddress decodes the canonical base58 representation of an address.
func ParseAddress(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("types: invalid address encoding: %w", err)
	}
	return AddressFromBytes(raw)
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is the all-zero value, used as the
// "absent" sentinel for optional address fields.
func (a Address) IsZero() bool {
	return bytes.Equal(a[:], make([]byte, AddressLength))
}

// String renders the address in base58.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// MarshalText implements encoding.TextMarshaler so addresses serialise as
// base58 strings in JSON payloads and storage records.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
